package common

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Inbox     InboxConfig     `mapstructure:"inbox"`
	Retention RetentionConfig `mapstructure:"retention"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds the listener configuration for the HTTP and gRPC transports.
type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" validate:"gt=0"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN              string        `mapstructure:"dsn" validate:"required"`
	MaxConns         int32         `mapstructure:"max_conns" validate:"gte=0"`
	MinConns         int32         `mapstructure:"min_conns" validate:"gte=0"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// CacheConfig selects the extracted-text cache backend.
type CacheConfig struct {
	Backend    string `mapstructure:"backend" validate:"oneof=memory redis sql"`
	RedisURL   string `mapstructure:"redis_url"`
	MemorySize int    `mapstructure:"memory_size" validate:"gt=0"`
	// Enabled is the default for submissions that don't say otherwise.
	Enabled    bool   `mapstructure:"enabled"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	DefaultStrategy string        `mapstructure:"default_strategy" validate:"oneof=marker tesseract"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Rasterizer      string        `mapstructure:"rasterizer" validate:"oneof=pdftoppm fitz"`
	Recognizer      string        `mapstructure:"recognizer" validate:"oneof=cli gosseract"`
	Pdftoppm        string        `mapstructure:"pdftoppm"`
	Tesseract       string        `mapstructure:"tesseract"`
	TesseractLang   string        `mapstructure:"tesseract_lang"`
	TessdataDir     string        `mapstructure:"tessdata_dir"`
	DPI             int           `mapstructure:"dpi" validate:"gt=0"`
	MaxPages        int           `mapstructure:"max_pages" validate:"gte=0"`
	Marker          string        `mapstructure:"marker"`
	WorkDir         string        `mapstructure:"work_dir"`
}

// LLMConfig holds the generation service configuration
type LLMConfig struct {
	BaseURL       string        `mapstructure:"base_url" validate:"required,url"`
	DefaultModel  string        `mapstructure:"default_model" validate:"required"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
	StreamTimeout time.Duration `mapstructure:"stream_timeout" validate:"gt=0"`
	PullTimeout   time.Duration `mapstructure:"pull_timeout" validate:"gt=0"`
}

// QueueConfig sizes the worker pool.
type QueueConfig struct {
	Workers        int           `mapstructure:"workers" validate:"gt=0"`
	Size           int           `mapstructure:"size" validate:"gt=0"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout" validate:"gt=0"`
}

// InboxConfig configures the optional watched directory. An empty Dir disables it.
type InboxConfig struct {
	Dir         string        `mapstructure:"dir"`
	Debounce    time.Duration `mapstructure:"debounce"`
	InitialScan bool          `mapstructure:"initial_scan"`
	Strategy    string        `mapstructure:"strategy"`
	Prompt      string        `mapstructure:"prompt"`
	Model       string        `mapstructure:"model"`
}

// RetentionConfig controls pruning of finished jobs. A zero MaxAge keeps everything.
type RetentionConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
	MaxAge   time.Duration `mapstructure:"max_age" validate:"gte=0"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// EnvPrefix is prepended to every environment override, e.g. OCRJOBS_LLM_BASE_URL.
const EnvPrefix = "OCRJOBS"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.grpc_addr", ":9090")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_upload_bytes", 64<<20)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:ocrjobs.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("database.max_conn_idle_time", 5*time.Minute)
	v.SetDefault("database.dial_timeout", 3*time.Second)
	v.SetDefault("database.statement_timeout", time.Duration(0))

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_url", "redis://localhost:6379/1")
	v.SetDefault("cache.memory_size", 512)
	v.SetDefault("cache.enabled", true)

	v.SetDefault("ocr.default_strategy", "tesseract")
	v.SetDefault("ocr.timeout", 5*time.Minute)
	v.SetDefault("ocr.rasterizer", "pdftoppm")
	v.SetDefault("ocr.recognizer", "cli")
	v.SetDefault("ocr.pdftoppm", "pdftoppm")
	v.SetDefault("ocr.tesseract", "tesseract")
	v.SetDefault("ocr.tesseract_lang", "eng")
	v.SetDefault("ocr.tessdata_dir", "")
	v.SetDefault("ocr.dpi", 300)
	v.SetDefault("ocr.max_pages", 0)
	v.SetDefault("ocr.marker", "marker_single")
	v.SetDefault("ocr.work_dir", "")

	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.default_model", "llama3")
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("llm.stream_timeout", 10*time.Minute)
	v.SetDefault("llm.pull_timeout", 30*time.Minute)

	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.size", 256)
	v.SetDefault("queue.process_timeout", 15*time.Minute)

	v.SetDefault("inbox.dir", "")
	v.SetDefault("inbox.debounce", 500*time.Millisecond)
	v.SetDefault("inbox.initial_scan", false)
	v.SetDefault("inbox.strategy", "")
	v.SetDefault("inbox.prompt", "")
	v.SetDefault("inbox.model", "")

	v.SetDefault("retention.interval", time.Hour)
	v.SetDefault("retention.max_age", 7*24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig reads configuration from defaults, an optional YAML file and OCRJOBS_* environment variables.
// An empty path looks for ./config.yaml and silently skips it if absent.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, NewAppError("CONFIG_ERROR", "read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, NewAppError("CONFIG_ERROR", "decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if err := ValidateStruct(c); err != nil {
		return NewAppError("CONFIG_ERROR", err.Error(), ErrInvalidInput)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisURL == "" {
		return NewAppError("CONFIG_ERROR", "cache.redis_url is required for the redis backend", ErrInvalidInput)
	}
	if c.Database.MinConns > c.Database.MaxConns && c.Database.MaxConns > 0 {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("database.min_conns (%d) exceeds max_conns (%d)", c.Database.MinConns, c.Database.MaxConns), ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" && c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "at least one of server.http_addr or server.grpc_addr is required", ErrInvalidInput)
	}
	return nil
}
