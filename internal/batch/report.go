package batch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/docsplit/internal/segment"
	"gopkg.in/yaml.v3"
)

// reportDocument summarizes one finished document in the job report.
type reportDocument struct {
	Number  int      `yaml:"number"`
	Trigger string   `yaml:"trigger"`
	Pages   []int    `yaml:"pages"`
	Name    string   `yaml:"name,omitempty"`
	Paths   []string `yaml:"paths,omitempty"`
}

// report is the YAML job report written next to the output documents. It
// records what was decided and why so an operator can audit a batch after
// the fact.
type report struct {
	Job        string           `yaml:"job"`
	Source     string           `yaml:"source"`
	CreatedAt  time.Time        `yaml:"created_at"`
	WrittenAt  time.Time        `yaml:"written_at"`
	Pages      int              `yaml:"pages"`
	Documents  []reportDocument `yaml:"documents"`
	Dropped    []reportDropped  `yaml:"dropped_pages,omitempty"`
	Suppressed []reportSignal   `yaml:"suppressed_boundaries,omitempty"`
	Warnings   []Warning        `yaml:"warnings,omitempty"`
}

type reportDropped struct {
	Page   int    `yaml:"page"`
	Reason string `yaml:"reason"`
}

type reportSignal struct {
	Before int    `yaml:"before_page"`
	Signal string `yaml:"signal"`
}

// writeReport persists the job report. Report failures never affect the
// job outcome; they are only logged.
func (r *Runner) writeReport(job *Job, plan segment.Plan, log *slog.Logger) {
	if r.opts.ReportDir == "" {
		return
	}

	snap := job.Snapshot()
	rep := report{
		Job:       snap.ID,
		Source:    snap.Source,
		CreatedAt: snap.CreatedAt,
		WrittenAt: time.Now(),
		Pages:     snap.Captured,
		Warnings:  snap.Warnings,
	}
	artifacts := job.Artifacts()
	for i, b := range plan.Documents {
		doc := reportDocument{Number: i + 1, Trigger: string(b.Trigger), Pages: b.Pages}
		for _, a := range artifacts {
			if a.Number == i+1 {
				doc.Name = a.Name
				doc.Paths = a.Paths
				break
			}
		}
		rep.Documents = append(rep.Documents, doc)
	}
	for _, d := range plan.Dropped {
		rep.Dropped = append(rep.Dropped, reportDropped{Page: d.Index, Reason: string(d.Reason)})
	}
	for _, s := range plan.Suppressed {
		rep.Suppressed = append(rep.Suppressed, reportSignal{Before: s.Before, Signal: string(s.Signal)})
	}

	data, err := yaml.Marshal(&rep)
	if err != nil {
		log.Warn("marshal job report", "error", err)
		return
	}
	if err := os.MkdirAll(r.opts.ReportDir, 0o750); err != nil {
		log.Warn("create report directory", "error", err)
		return
	}
	path := filepath.Join(r.opts.ReportDir, fmt.Sprintf("job-%s.yaml", snap.ID[:8]))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		log.Warn("write job report", "error", err)
		return
	}
	log.Info("job report written", "path", path)
}
