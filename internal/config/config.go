package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Speakers and merge
	OtherOn         string  `env:"OTHER_ON" envDefault:"left"`
	YouName         string  `env:"YOU_NAME" envDefault:"You"`
	OtherName       string  `env:"OTHER_NAME"`
	MergeGap        float64 `env:"MERGE_GAP" envDefault:"0.8"`
	EventConfidence float64 `env:"EVENT_CONFIDENCE" envDefault:"0.40"`
	SplitGap        float64 `env:"SPLIT_GAP" envDefault:"0.40"`
	MinLogprob      float64 `env:"MIN_LOGPROB" envDefault:"-1.2"`
	LRCHeaders      bool    `env:"LRC_HEADERS" envDefault:"true"`

	// Audio preparation
	Normalize  string `env:"NORMALIZE" envDefault:"loudnorm"`
	SampleRate int    `env:"SAMPLE_RATE" envDefault:"16000"`
	TmpDir     string `env:"TMP_DIR"`

	// Speech-to-text
	STTProvider     string        `env:"STT_PROVIDER" envDefault:"whisper"`
	WhisperURL      string        `env:"WHISPER_URL" envDefault:"http://localhost:8000/v1/audio/transcriptions"`
	WhisperModel    string        `env:"WHISPER_MODEL" envDefault:"large-v3"`
	WhisperTimeout  time.Duration `env:"WHISPER_TIMEOUT" envDefault:"10m"`
	WhisperLanguage string        `env:"WHISPER_LANGUAGE" envDefault:"en"`
	WhisperBeamSize int           `env:"WHISPER_BEAM_SIZE" envDefault:"5"`
	WhisperVAD      bool          `env:"WHISPER_VAD" envDefault:"true"`
	WhisperPrompt   string        `env:"WHISPER_PROMPT"`
	Hotwords        string        `env:"WHISPER_HOTWORDS"`

	ElevenLabsAPIKey   string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsModel    string `env:"ELEVENLABS_MODEL" envDefault:"scribe_v1"`
	ElevenLabsKeyterms string `env:"ELEVENLABS_KEYTERMS"`

	// Output
	OutputDir string   `env:"OUTPUT_DIR"`
	S3        S3Config `envPrefix:"S3_"`

	// Optional transcript index and notifications
	DatabaseURL     string `env:"DATABASE_URL"`
	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"callscribe"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"callscribe"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`

	// Watch mode
	WatchDir      string        `env:"WATCH_DIR"`
	WatchBackfill bool          `env:"WATCH_BACKFILL" envDefault:"true"`
	WatchRescan   time.Duration `env:"WATCH_RESCAN" envDefault:"10m"`
	Workers       int           `env:"WORKERS" envDefault:"1"`
	QueueSize     int           `env:"QUEUE_SIZE" envDefault:"64"`
	JobTimeout    time.Duration `env:"JOB_TIMEOUT" envDefault:"30m"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8085"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// S3Config configures the optional S3 transcript mirror.
type S3Config struct {
	Bucket    string `env:"BUCKET"`
	Endpoint  string `env:"ENDPOINT"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Prefix    string `env:"PREFIX"`
}

// Enabled reports whether an S3 bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	OtherOn     string
	YouName     string
	OtherName   string
	Normalize   string
	OutputDir   string
	WatchDir    string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string

	// Pointer fields distinguish "flag not given" from a zero value.
	MergeGap        *float64
	EventConfidence *float64
	LRCHeaders      *bool
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	setString(&cfg.OtherOn, overrides.OtherOn)
	setString(&cfg.YouName, overrides.YouName)
	setString(&cfg.OtherName, overrides.OtherName)
	setString(&cfg.Normalize, overrides.Normalize)
	setString(&cfg.OutputDir, overrides.OutputDir)
	setString(&cfg.WatchDir, overrides.WatchDir)
	setString(&cfg.HTTPAddr, overrides.HTTPAddr)
	setString(&cfg.LogLevel, overrides.LogLevel)
	setString(&cfg.DatabaseURL, overrides.DatabaseURL)
	if overrides.MergeGap != nil {
		cfg.MergeGap = *overrides.MergeGap
	}
	if overrides.EventConfidence != nil {
		cfg.EventConfidence = *overrides.EventConfidence
	}
	if overrides.LRCHeaders != nil {
		cfg.LRCHeaders = *overrides.LRCHeaders
	}

	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks enumerations and ranges that the pipeline cannot recover
// from once work has started. Speaker names and merge thresholds are
// checked again by the dialogue package.
func (c *Config) Validate() error {
	var problems []string
	switch strings.ToLower(c.OtherOn) {
	case "left", "right":
	default:
		problems = append(problems, fmt.Sprintf("OTHER_ON=%q must be left or right", c.OtherOn))
	}
	switch strings.ToLower(c.Normalize) {
	case "loudnorm", "dynaudnorm", "none":
	default:
		problems = append(problems, fmt.Sprintf("NORMALIZE=%q must be loudnorm, dynaudnorm or none", c.Normalize))
	}
	switch c.STTProvider {
	case "whisper":
		if c.WhisperURL == "" {
			problems = append(problems, "WHISPER_URL is required for STT_PROVIDER=whisper")
		}
	case "elevenlabs":
		if c.ElevenLabsAPIKey == "" {
			problems = append(problems, "ELEVENLABS_API_KEY is required for STT_PROVIDER=elevenlabs")
		}
	default:
		problems = append(problems, fmt.Sprintf("STT_PROVIDER=%q must be whisper or elevenlabs", c.STTProvider))
	}
	if c.SampleRate <= 0 {
		problems = append(problems, fmt.Sprintf("SAMPLE_RATE=%d must be positive", c.SampleRate))
	}
	if c.SplitGap < 0 {
		problems = append(problems, fmt.Sprintf("SPLIT_GAP=%v must be >= 0", c.SplitGap))
	}
	if c.Workers < 1 {
		problems = append(problems, fmt.Sprintf("WORKERS=%d must be at least 1", c.Workers))
	}
	if c.QueueSize < 1 {
		problems = append(problems, fmt.Sprintf("QUEUE_SIZE=%d must be at least 1", c.QueueSize))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("LOG_FORMAT=%q must be json or console", c.LogFormat))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
