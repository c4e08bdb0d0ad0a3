package config

// Config is the complete configuration for the docsplit application. It is
// resolved from configuration files, environment variables and command-line
// flags, in ascending precedence.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level"  yaml:"log_level"  json:"log_level"`
	Verbose  bool   `mapstructure:"verbose"    yaml:"verbose"    json:"verbose"`

	Enhance    EnhanceConfig    `mapstructure:"enhance"    yaml:"enhance"    json:"enhance"`
	Classify   ClassifyConfig   `mapstructure:"classify"   yaml:"classify"   json:"classify"`
	Separation SeparationConfig `mapstructure:"separation" yaml:"separation" json:"separation"`
	Finish     FinishConfig     `mapstructure:"finish"     yaml:"finish"     json:"finish"`
	Batch      BatchConfig      `mapstructure:"batch"      yaml:"batch"      json:"batch"`
	Server     ServerConfig     `mapstructure:"server"     yaml:"server"     json:"server"`
}

// EnhanceConfig contains page image correction settings.
type EnhanceConfig struct {
	Deskew     bool    `mapstructure:"deskew"      yaml:"deskew"      json:"deskew"`
	AutoRotate bool    `mapstructure:"auto_rotate" yaml:"auto_rotate" json:"auto_rotate"`
	AutoCrop   bool    `mapstructure:"auto_crop"   yaml:"auto_crop"   json:"auto_crop"`
	Brightness float64 `mapstructure:"brightness"  yaml:"brightness"  json:"brightness"`
	Contrast   float64 `mapstructure:"contrast"    yaml:"contrast"    json:"contrast"`
	Gamma      float64 `mapstructure:"gamma"       yaml:"gamma"       json:"gamma"`
	Sharpen    bool    `mapstructure:"sharpen"     yaml:"sharpen"     json:"sharpen"`
	Descreen   bool    `mapstructure:"descreen"    yaml:"descreen"    json:"descreen"`
	Invert     bool    `mapstructure:"invert"      yaml:"invert"      json:"invert"`
}

// ClassifyConfig contains page analysis settings.
type ClassifyConfig struct {
	BarcodeEnabled   bool     `mapstructure:"barcode_enabled"   yaml:"barcode_enabled"   json:"barcode_enabled"`
	BarcodeFormats   []string `mapstructure:"barcode_formats"   yaml:"barcode_formats"   json:"barcode_formats"`
	BarcodeTryHard   bool     `mapstructure:"barcode_try_hard"  yaml:"barcode_try_hard"  json:"barcode_try_hard"`
	OCREnabled       bool     `mapstructure:"ocr_enabled"       yaml:"ocr_enabled"       json:"ocr_enabled"`
	BlankSensitivity float64  `mapstructure:"blank_sensitivity" yaml:"blank_sensitivity" json:"blank_sensitivity"`
}

// SeparationConfig contains document boundary settings.
type SeparationConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	UseBlankPages    bool    `mapstructure:"use_blank_pages"   yaml:"use_blank_pages"   json:"use_blank_pages"`
	BlankSensitivity float64 `mapstructure:"blank_sensitivity" yaml:"blank_sensitivity" json:"blank_sensitivity"`
	DeleteBlankPages bool    `mapstructure:"delete_blank_pages" yaml:"delete_blank_pages" json:"delete_blank_pages"`

	UseBarcodes        bool   `mapstructure:"use_barcodes"         yaml:"use_barcodes"         json:"use_barcodes"`
	BarcodePattern     string `mapstructure:"barcode_pattern"      yaml:"barcode_pattern"      json:"barcode_pattern"`
	ExcludeMarkerPages bool   `mapstructure:"exclude_marker_pages" yaml:"exclude_marker_pages" json:"exclude_marker_pages"`

	UseContentAnalysis  bool    `mapstructure:"use_content_analysis" yaml:"use_content_analysis" json:"use_content_analysis"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" yaml:"similarity_threshold" json:"similarity_threshold"`

	MinimumPages          int  `mapstructure:"minimum_pages"            yaml:"minimum_pages"            json:"minimum_pages"`
	EnforceMinimumOnTail  bool `mapstructure:"enforce_minimum_on_tail"  yaml:"enforce_minimum_on_tail"  json:"enforce_minimum_on_tail"`
	AllowManualAdjustment bool `mapstructure:"allow_manual_adjustment"  yaml:"allow_manual_adjustment"  json:"allow_manual_adjustment"`
}

// FinishConfig contains document output settings.
type FinishConfig struct {
	Destination string `mapstructure:"destination" yaml:"destination" json:"destination"`
	Format      string `mapstructure:"format"      yaml:"format"      json:"format"`

	NamingTemplate    string `mapstructure:"naming_template"    yaml:"naming_template"    json:"naming_template"`
	UseSuggestion     bool   `mapstructure:"use_suggestion"     yaml:"use_suggestion"     json:"use_suggestion"`
	SuggestionTimeout int    `mapstructure:"suggestion_timeout" yaml:"suggestion_timeout" json:"suggestion_timeout"` // seconds
	Collision         string `mapstructure:"collision"          yaml:"collision"          json:"collision"`

	ImprintEnabled  bool    `mapstructure:"imprint_enabled"  yaml:"imprint_enabled"  json:"imprint_enabled"`
	ImprintText     string  `mapstructure:"imprint_text"     yaml:"imprint_text"     json:"imprint_text"`
	ImprintPosition string  `mapstructure:"imprint_position" yaml:"imprint_position" json:"imprint_position"`
	ImprintRotation float64 `mapstructure:"imprint_rotation" yaml:"imprint_rotation" json:"imprint_rotation"`
	ImprintOpacity  float64 `mapstructure:"imprint_opacity"  yaml:"imprint_opacity"  json:"imprint_opacity"`
}

// BatchConfig contains pipeline execution settings.
type BatchConfig struct {
	Workers       int    `mapstructure:"workers"        yaml:"workers"        json:"workers"`
	QueueDepth    int    `mapstructure:"queue_depth"    yaml:"queue_depth"    json:"queue_depth"`
	PageTimeout   int    `mapstructure:"page_timeout"   yaml:"page_timeout"   json:"page_timeout"` // seconds
	FinishWorkers int    `mapstructure:"finish_workers" yaml:"finish_workers" json:"finish_workers"`
	ReportDir     string `mapstructure:"report_dir"     yaml:"report_dir"     json:"report_dir"`
}

// ServerConfig contains HTTP status-server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host"             yaml:"host"             json:"host"`
	Port            int    `mapstructure:"port"             yaml:"port"             json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin"      yaml:"cors_origin"      json:"cors_origin"`
	TimeoutSec      int    `mapstructure:"timeout_sec"      yaml:"timeout_sec"      json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}
