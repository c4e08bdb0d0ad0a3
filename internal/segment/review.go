package segment

import (
	"context"
	"fmt"
)

// Reviewer is the manual-review collaborator. It receives the proposed plan
// and returns a confirmed or edited partition over the same kept pages.
type Reviewer interface {
	Review(ctx context.Context, proposal Plan) ([][]int, error)
}

// AutoConfirm is the deterministic non-interactive default reviewer: it
// returns the proposal unchanged.
type AutoConfirm struct{}

func (AutoConfirm) Review(_ context.Context, proposal Plan) ([][]int, error) {
	return proposal.Partition(), nil
}

// ValidateRevision checks an edited partition against the proposal.
// Edits are validated only for partition shape and the minimum-pages floor,
// never against the original trigger signals: the reviewer is allowed to
// move boundaries anywhere, but not to lose, duplicate or reorder pages.
func ValidateRevision(proposal Plan, revised [][]int, cfg Config) error {
	if cfg.MinimumPages < 1 {
		cfg.MinimumPages = 1
	}

	var want []int
	for _, d := range proposal.Documents {
		want = append(want, d.Pages...)
	}

	var got []int
	for i, doc := range revised {
		if len(doc) == 0 {
			return fmt.Errorf("revised document %d is empty", i+1)
		}
		if len(doc) < cfg.MinimumPages {
			terminal := i == len(revised)-1
			if !terminal || cfg.EnforceMinimumOnTail {
				return fmt.Errorf("revised document %d has %d pages, minimum is %d",
					i+1, len(doc), cfg.MinimumPages)
			}
		}
		got = append(got, doc...)
	}

	if len(got) != len(want) {
		return fmt.Errorf("revision covers %d pages, proposal has %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("revision alters the page sequence at position %d (page %d, expected %d)",
				i, got[i], want[i])
		}
	}
	return nil
}

// ApplyRevision turns a validated partition back into a plan, preserving
// the proposal's dropped pages. Boundaries moved by the reviewer carry no
// signal trigger.
func ApplyRevision(proposal Plan, revised [][]int) Plan {
	out := Plan{Dropped: proposal.Dropped, Suppressed: proposal.Suppressed}
	for _, doc := range revised {
		pages := make([]int, len(doc))
		copy(pages, doc)
		out.Documents = append(out.Documents, Boundary{
			Start:   pages[0],
			End:     pages[len(pages)-1],
			Pages:   pages,
			Trigger: TriggerNone,
		})
	}
	return out
}
