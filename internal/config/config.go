// Package config resolves the docsplit configuration from files,
// environment variables and flags, and translates it into the option
// structs of the pipeline packages.
package config

import (
	"fmt"
	"time"

	"github.com/MeKo-Tech/docsplit/internal/barcode"
	"github.com/MeKo-Tech/docsplit/internal/batch"
	"github.com/MeKo-Tech/docsplit/internal/classify"
	"github.com/MeKo-Tech/docsplit/internal/enhance"
	"github.com/MeKo-Tech/docsplit/internal/export"
	"github.com/MeKo-Tech/docsplit/internal/finish"
	"github.com/MeKo-Tech/docsplit/internal/segment"
)

// DefaultConfig returns the complete default configuration.
func DefaultConfig() *Config {
	eo := enhance.DefaultOptions()
	sc := segment.DefaultConfig()
	fc := finish.DefaultConfig()
	bo := batch.DefaultOptions()

	return &Config{
		LogLevel: "info",
		Enhance: EnhanceConfig{
			Deskew:     eo.Deskew,
			AutoRotate: eo.AutoRotate,
			AutoCrop:   eo.AutoCrop,
			Brightness: eo.Brightness,
			Contrast:   eo.Contrast,
			Gamma:      eo.Gamma,
			Sharpen:    eo.Sharpen,
			Descreen:   eo.Descreen,
		},
		Classify: ClassifyConfig{
			BarcodeEnabled:   true,
			BlankSensitivity: sc.BlankSensitivity,
		},
		Separation: SeparationConfig{
			Enabled:             sc.Enabled,
			UseBlankPages:       sc.UseBlankPages,
			BlankSensitivity:    sc.BlankSensitivity,
			DeleteBlankPages:    sc.DeleteBlankPages,
			UseBarcodes:         sc.UseBarcodes,
			BarcodePattern:      sc.BarcodePattern,
			ExcludeMarkerPages:  sc.ExcludeMarkerPages,
			UseContentAnalysis:  sc.UseContentAnalysis,
			SimilarityThreshold: sc.SimilarityThreshold,
			MinimumPages:        sc.MinimumPages,
		},
		Finish: FinishConfig{
			Destination:       fc.Destination,
			Format:            string(fc.Format),
			NamingTemplate:    fc.Naming.Template,
			SuggestionTimeout: 5,
			Collision:         string(fc.Collision),
			ImprintPosition:   "bottom-right",
			ImprintOpacity:    0.85,
		},
		Batch: BatchConfig{
			Workers:       bo.Workers,
			QueueDepth:    bo.QueueDepth,
			PageTimeout:   int(bo.PageTimeout / time.Second),
			FinishWorkers: bo.FinishWorkers,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
		},
	}
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if s := c.Separation.BlankSensitivity; s < 0 || s > 1 {
		return fmt.Errorf("separation.blank_sensitivity must be in [0,1], got %g", s)
	}
	if t := c.Separation.SimilarityThreshold; t < 0 || t > 1 {
		return fmt.Errorf("separation.similarity_threshold must be in [0,1], got %g", t)
	}
	if c.Separation.MinimumPages < 0 {
		return fmt.Errorf("separation.minimum_pages must not be negative, got %d", c.Separation.MinimumPages)
	}
	if _, err := export.ParseFormat(c.Finish.Format); err != nil {
		return fmt.Errorf("finish.format: %w", err)
	}
	if _, err := finish.ParseCollisionPolicy(c.Finish.Collision); err != nil {
		return fmt.Errorf("finish.collision: %w", err)
	}
	if len(c.Classify.BarcodeFormats) > 0 {
		if _, err := barcode.ParseFormats(c.Classify.BarcodeFormats); err != nil {
			return fmt.Errorf("classify.barcode_formats: %w", err)
		}
	}
	if o := c.Finish.ImprintOpacity; o < 0 || o > 1 {
		return fmt.Errorf("finish.imprint_opacity must be in [0,1], got %g", o)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// EnhanceOptions translates the enhancement section.
func (c *Config) EnhanceOptions() enhance.Options {
	opts := enhance.DefaultOptions()
	opts.Deskew = c.Enhance.Deskew
	opts.AutoRotate = c.Enhance.AutoRotate
	opts.AutoCrop = c.Enhance.AutoCrop
	opts.Brightness = c.Enhance.Brightness
	opts.Contrast = c.Enhance.Contrast
	opts.Gamma = c.Enhance.Gamma
	opts.Sharpen = c.Enhance.Sharpen
	opts.Descreen = c.Enhance.Descreen
	opts.Invert = c.Enhance.Invert
	return opts
}

// ClassifyConfig translates the classification section. Formats were
// validated beforehand; unknown names fall back to the default set.
func (c *Config) ClassifyConfig() classify.Config {
	cfg := classify.DefaultConfig()
	cfg.Blank.Sensitivity = c.Separation.BlankSensitivity
	cfg.Barcode.Enabled = c.Classify.BarcodeEnabled
	cfg.Barcode.TryHarder = c.Classify.BarcodeTryHard
	cfg.OCR = c.Classify.OCREnabled
	if len(c.Classify.BarcodeFormats) > 0 {
		if formats, err := barcode.ParseFormats(c.Classify.BarcodeFormats); err == nil {
			cfg.Barcode.Formats = formats
		}
	}
	return cfg
}

// SegmentConfig translates the separation section.
func (c *Config) SegmentConfig() segment.Config {
	return segment.Config{
		Enabled:               c.Separation.Enabled,
		UseBlankPages:         c.Separation.UseBlankPages,
		BlankSensitivity:      c.Separation.BlankSensitivity,
		DeleteBlankPages:      c.Separation.DeleteBlankPages,
		UseBarcodes:           c.Separation.UseBarcodes,
		BarcodePattern:        c.Separation.BarcodePattern,
		ExcludeMarkerPages:    c.Separation.ExcludeMarkerPages,
		UseContentAnalysis:    c.Separation.UseContentAnalysis,
		SimilarityThreshold:   c.Separation.SimilarityThreshold,
		MinimumPages:          c.Separation.MinimumPages,
		EnforceMinimumOnTail:  c.Separation.EnforceMinimumOnTail,
		AllowManualAdjustment: c.Separation.AllowManualAdjustment,
	}
}

// FinishConfig translates the output section. Format and collision policy
// were validated beforehand.
func (c *Config) FinishConfig() finish.Config {
	format, _ := export.ParseFormat(c.Finish.Format)
	collision, _ := finish.ParseCollisionPolicy(c.Finish.Collision)
	cfg := finish.DefaultConfig()
	cfg.Destination = c.Finish.Destination
	cfg.Format = format
	cfg.Collision = collision
	cfg.Naming.UseSuggestion = c.Finish.UseSuggestion
	cfg.Naming.SuggestionTimeout = time.Duration(c.Finish.SuggestionTimeout) * time.Second
	if c.Finish.NamingTemplate != "" {
		cfg.Naming.Template = c.Finish.NamingTemplate
	}
	cfg.Imprint = finish.ImprintConfig{
		Enabled:  c.Finish.ImprintEnabled,
		Text:     c.Finish.ImprintText,
		Position: c.Finish.ImprintPosition,
		Rotation: c.Finish.ImprintRotation,
		Opacity:  c.Finish.ImprintOpacity,
	}
	return cfg
}

// RunnerOptions translates the batch section.
func (c *Config) RunnerOptions() batch.Options {
	opts := batch.DefaultOptions()
	if c.Batch.Workers > 0 {
		opts.Workers = c.Batch.Workers
	}
	if c.Batch.QueueDepth > 0 {
		opts.QueueDepth = c.Batch.QueueDepth
	}
	if c.Batch.PageTimeout > 0 {
		opts.PageTimeout = time.Duration(c.Batch.PageTimeout) * time.Second
	}
	if c.Batch.FinishWorkers > 0 {
		opts.FinishWorkers = c.Batch.FinishWorkers
	}
	opts.ReportDir = c.Batch.ReportDir
	opts.Separation = c.SegmentConfig()
	return opts
}
