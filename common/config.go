package common

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration, loaded from config.yaml.
type Config struct {
	Paths     PathsConfig     `yaml:"paths"`
	Slides    SlidesConfig    `yaml:"slides"`
	Narration NarrationConfig `yaml:"narration"`
	Timing    TimingConfig    `yaml:"timing"`
	Video     VideoConfig     `yaml:"video"`
	Figures   FiguresConfig   `yaml:"figures"`
	Logging   LoggingConfig   `yaml:"logging"`
	Server    ServerConfig    `yaml:"server"`
	Watch     WatchConfig     `yaml:"watch"`
	Sink      SinkConfig      `yaml:"sink"`
}

type PathsConfig struct {
	Output     string `yaml:"output"`
	Temp       string `yaml:"temp"`
	Icons      string `yaml:"icons"`
	Background string `yaml:"background"`
}

type SlidesConfig struct {
	MaxCount   int    `yaml:"max_count"`
	DeckFormat string `yaml:"deck_format"` // "pdf" or "docx"
	Handout    bool   `yaml:"handout"`
}

type NarrationConfig struct {
	Enabled bool   `yaml:"enabled"`
	Engine  string `yaml:"engine"` // "espeak", "sarvam" or "gemini"
	Voice   string `yaml:"voice"`
	Rate    int    `yaml:"rate"`

	// Language is only used by sarvam.
	Language string `yaml:"language"`
	Model    string `yaml:"model"`

	SarvamKey string `yaml:"-"`
	GeminiKey string `yaml:"-"`
}

// TimingConfig holds the slide timing constants, all in seconds except FadeRatio.
type TimingConfig struct {
	MinDuration      float64 `yaml:"min_duration"`
	FallbackDuration float64 `yaml:"fallback_duration"`
	FadeRatio        float64 `yaml:"fade_ratio"`
	FadeMin          float64 `yaml:"fade_min"`
	FadeMax          float64 `yaml:"fade_max"`
	FadeEpsilon      float64 `yaml:"fade_epsilon"`
}

type VideoConfig struct {
	FPS              int     `yaml:"fps"`
	Width            int     `yaml:"width"`
	Height           int     `yaml:"height"`
	Codec            string  `yaml:"codec"`
	Preset           string  `yaml:"preset"`
	AudioCodec       string  `yaml:"audio_codec"`
	BackgroundVolume float64 `yaml:"background_volume"`
}

type FiguresConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ModelPath string `yaml:"model_path"`
	LibPath   string `yaml:"lib_path"`
	MaxIcons  int    `yaml:"max_icons"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Addr          string `yaml:"addr"`
	Workers       int    `yaml:"workers"`
	QueueSize     int    `yaml:"queue_size"`
	UploadDir     string `yaml:"upload_dir"`
	DBDriver      string `yaml:"db_driver"` // "sqlite" or "postgres"
	DBDSN         string `yaml:"db_dsn"`
	RetentionDays int    `yaml:"retention_days"`
	JanitorSpec   string `yaml:"janitor_spec"`
}

type WatchConfig struct {
	Input         string `yaml:"input"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

type SinkConfig struct {
	Provider  string `yaml:"provider"` // "local" or "s3"
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	BasePath  string `yaml:"base_path"`
	CDNDomain string `yaml:"cdn_domain"`

	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

// Default returns a validated configuration with every default filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.Narration.Enabled = true
	_ = cfg.Validate()
	return cfg
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{Narration: NarrationConfig{Enabled: true}}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate fills defaults and rejects inconsistent settings.
func (c *Config) Validate() error {
	if c.Paths.Output == "" {
		c.Paths.Output = "output"
	}
	if c.Paths.Icons == "" {
		c.Paths.Icons = "assets/icons"
	}
	if c.Paths.Background == "" {
		c.Paths.Background = "assets/background.mp3"
	}

	if c.Slides.MaxCount == 0 {
		c.Slides.MaxCount = 8
	}
	if c.Slides.DeckFormat == "" {
		c.Slides.DeckFormat = "pdf"
	}
	if c.Slides.DeckFormat != "pdf" && c.Slides.DeckFormat != "docx" {
		return fmt.Errorf("slides.deck_format must be pdf or docx, got %q", c.Slides.DeckFormat)
	}

	if c.Narration.Engine == "" {
		c.Narration.Engine = "espeak"
	}
	switch c.Narration.Engine {
	case "espeak", "sarvam", "gemini":
	default:
		return fmt.Errorf("narration.engine %q is not supported", c.Narration.Engine)
	}
	if c.Narration.Rate == 0 {
		c.Narration.Rate = 150
	}
	if c.Narration.Language == "" {
		c.Narration.Language = "English"
	}

	if err := c.Timing.validate(); err != nil {
		return err
	}

	if c.Video.FPS == 0 {
		c.Video.FPS = 24
	}
	if c.Video.Width == 0 {
		c.Video.Width = 1280
	}
	if c.Video.Height == 0 {
		c.Video.Height = 720
	}
	if c.Video.Codec == "" {
		c.Video.Codec = "libx264"
	}
	if c.Video.Preset == "" {
		c.Video.Preset = "medium"
	}
	if c.Video.AudioCodec == "" {
		c.Video.AudioCodec = "aac"
	}
	if c.Video.BackgroundVolume == 0 {
		c.Video.BackgroundVolume = 0.05
	}
	if c.Video.FPS < 0 || c.Video.Width < 0 || c.Video.Height < 0 {
		return fmt.Errorf("video fps and dimensions must be positive")
	}

	if c.Figures.LibPath == "" {
		c.Figures.LibPath = "/usr/lib/libonnxruntime.so"
	}
	if c.Figures.MaxIcons == 0 {
		c.Figures.MaxIcons = 12
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.Workers == 0 {
		c.Server.Workers = 2
	}
	if c.Server.QueueSize == 0 {
		c.Server.QueueSize = 100
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = "uploads"
	}
	if c.Server.DBDriver == "" {
		c.Server.DBDriver = "sqlite"
	}
	if c.Server.DBDSN == "" {
		c.Server.DBDSN = "slidecast.db"
	}
	if c.Server.RetentionDays == 0 {
		c.Server.RetentionDays = 7
	}
	if c.Server.JanitorSpec == "" {
		c.Server.JanitorSpec = "0 0 * * * *"
	}

	if c.Watch.Input == "" {
		c.Watch.Input = "inbox"
	}
	if c.Watch.MaxConcurrent == 0 {
		c.Watch.MaxConcurrent = 2
	}

	if c.Sink.Provider == "" {
		c.Sink.Provider = "local"
	}
	if c.Sink.Provider == "s3" && c.Sink.Bucket == "" {
		return fmt.Errorf("sink.bucket is required for the s3 provider")
	}

	return nil
}

func (t *TimingConfig) validate() error {
	if t.MinDuration == 0 {
		t.MinDuration = 1.5
	}
	if t.FallbackDuration == 0 {
		t.FallbackDuration = 5.0
	}
	if t.FadeRatio == 0 {
		t.FadeRatio = 0.12
	}
	if t.FadeMin == 0 {
		t.FadeMin = 0.15
	}
	if t.FadeMax == 0 {
		t.FadeMax = 1.5
	}
	if t.FadeEpsilon == 0 {
		t.FadeEpsilon = 0.01
	}

	if t.FadeEpsilon < 0 {
		return fmt.Errorf("timing.fade_epsilon must not be negative")
	}
	// Fades must stay positive for the shortest possible clip.
	if t.MinDuration <= 2*t.FadeEpsilon {
		return fmt.Errorf("timing.min_duration must exceed twice timing.fade_epsilon")
	}
	if t.FallbackDuration < t.MinDuration {
		return fmt.Errorf("timing.fallback_duration must not be below timing.min_duration")
	}
	if t.FadeMin <= 0 || t.FadeMax < t.FadeMin {
		return fmt.Errorf("timing fade bounds are inconsistent: [%v, %v]", t.FadeMin, t.FadeMax)
	}
	if t.FadeRatio < 0 {
		return fmt.Errorf("timing.fade_ratio must not be negative")
	}
	return nil
}
