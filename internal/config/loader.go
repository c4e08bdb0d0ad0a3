package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "docsplit"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "DOCSPLIT"
)

// Loader resolves configuration from files, environment variables and
// bound flags.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so cobra flag
// bindings participate in resolution.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// Load resolves and validates the configuration. A missing config file is
// fine; defaults and environment variables apply.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.LoadWithoutValidation()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithoutValidation resolves the configuration without validating it.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// LoadWithFile resolves the configuration from a specific file path.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}

	l.v.SetConfigFile(configFile)
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Set overrides a value in the configuration.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for flag binding.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	l.v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(home)
	}

	l.v.AddConfigPath("/etc/docsplit")

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		l.v.AddConfigPath(filepath.Join(configDir, "docsplit"))
	} else if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(filepath.Join(home, ".config", "docsplit"))
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so AutomaticEnv and Unmarshal see the
// full tree.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("enhance.deskew", d.Enhance.Deskew)
	l.v.SetDefault("enhance.auto_rotate", d.Enhance.AutoRotate)
	l.v.SetDefault("enhance.auto_crop", d.Enhance.AutoCrop)
	l.v.SetDefault("enhance.brightness", d.Enhance.Brightness)
	l.v.SetDefault("enhance.contrast", d.Enhance.Contrast)
	l.v.SetDefault("enhance.gamma", d.Enhance.Gamma)
	l.v.SetDefault("enhance.sharpen", d.Enhance.Sharpen)
	l.v.SetDefault("enhance.descreen", d.Enhance.Descreen)
	l.v.SetDefault("enhance.invert", d.Enhance.Invert)

	l.v.SetDefault("classify.barcode_enabled", d.Classify.BarcodeEnabled)
	l.v.SetDefault("classify.barcode_formats", d.Classify.BarcodeFormats)
	l.v.SetDefault("classify.barcode_try_hard", d.Classify.BarcodeTryHard)
	l.v.SetDefault("classify.ocr_enabled", d.Classify.OCREnabled)
	l.v.SetDefault("classify.blank_sensitivity", d.Classify.BlankSensitivity)

	l.v.SetDefault("separation.enabled", d.Separation.Enabled)
	l.v.SetDefault("separation.use_blank_pages", d.Separation.UseBlankPages)
	l.v.SetDefault("separation.blank_sensitivity", d.Separation.BlankSensitivity)
	l.v.SetDefault("separation.delete_blank_pages", d.Separation.DeleteBlankPages)
	l.v.SetDefault("separation.use_barcodes", d.Separation.UseBarcodes)
	l.v.SetDefault("separation.barcode_pattern", d.Separation.BarcodePattern)
	l.v.SetDefault("separation.exclude_marker_pages", d.Separation.ExcludeMarkerPages)
	l.v.SetDefault("separation.use_content_analysis", d.Separation.UseContentAnalysis)
	l.v.SetDefault("separation.similarity_threshold", d.Separation.SimilarityThreshold)
	l.v.SetDefault("separation.minimum_pages", d.Separation.MinimumPages)
	l.v.SetDefault("separation.enforce_minimum_on_tail", d.Separation.EnforceMinimumOnTail)
	l.v.SetDefault("separation.allow_manual_adjustment", d.Separation.AllowManualAdjustment)

	l.v.SetDefault("finish.destination", d.Finish.Destination)
	l.v.SetDefault("finish.format", d.Finish.Format)
	l.v.SetDefault("finish.naming_template", d.Finish.NamingTemplate)
	l.v.SetDefault("finish.use_suggestion", d.Finish.UseSuggestion)
	l.v.SetDefault("finish.suggestion_timeout", d.Finish.SuggestionTimeout)
	l.v.SetDefault("finish.collision", d.Finish.Collision)
	l.v.SetDefault("finish.imprint_enabled", d.Finish.ImprintEnabled)
	l.v.SetDefault("finish.imprint_text", d.Finish.ImprintText)
	l.v.SetDefault("finish.imprint_position", d.Finish.ImprintPosition)
	l.v.SetDefault("finish.imprint_rotation", d.Finish.ImprintRotation)
	l.v.SetDefault("finish.imprint_opacity", d.Finish.ImprintOpacity)

	l.v.SetDefault("batch.workers", d.Batch.Workers)
	l.v.SetDefault("batch.queue_depth", d.Batch.QueueDepth)
	l.v.SetDefault("batch.page_timeout", d.Batch.PageTimeout)
	l.v.SetDefault("batch.finish_workers", d.Batch.FinishWorkers)
	l.v.SetDefault("batch.report_dir", d.Batch.ReportDir)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
		paths = append(paths, filepath.Join(home, ".config", "docsplit"))
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, "docsplit"))
	}

	paths = append(paths, "/etc/docsplit")

	return paths
}
