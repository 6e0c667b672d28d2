package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

type Config struct {
	Mode Mode `mapstructure:"mode"`

	ListenAddr string `mapstructure:"listen_addr"`
	LogLevel   string `mapstructure:"log_level"`

	// Web front end allowed to call the API cross-origin; empty means same-origin only.
	AllowedOrigin string `mapstructure:"allowed_origin"`

	// "gemini", "openai" or "mock"
	LLMProvider         string `mapstructure:"llm_provider"`
	GeminiAPIKey        string `mapstructure:"gemini_api_key"`
	GCPProjectID        string `mapstructure:"gcp_project"`
	GCPLocation         string `mapstructure:"gcp_location"`
	ModelName           string `mapstructure:"model_name"`
	OpenAIAPIKey        string `mapstructure:"openai_api_key"`
	OpenAIModel         string `mapstructure:"openai_model"`
	OpenAIBaseURL       string `mapstructure:"openai_base_url"`
	AIRequestsPerMinute int    `mapstructure:"ai_requests_per_minute"`

	// "memory", "sqlite", "postgres" or "firestore"
	StorageBackend string `mapstructure:"storage_backend"`
	SQLitePath     string `mapstructure:"sqlite_path"`
	DatabaseURL    string `mapstructure:"database_url"`

	// Emergency action
	Locale            string  `mapstructure:"locale"`
	DeviceLatitude    float64 `mapstructure:"device_latitude"`
	DeviceLongitude   float64 `mapstructure:"device_longitude"`
	DeviceLocationSet bool    `mapstructure:"device_location_set"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(ModeLocal))
	v.SetDefault("listen_addr", "127.0.0.1:8080")
	v.SetDefault("allowed_origin", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("llm_provider", "mock")
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gcp_project", "")
	v.SetDefault("gcp_location", "us-central1")
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("openai_base_url", "")
	v.SetDefault("ai_requests_per_minute", 20)

	v.SetDefault("storage_backend", "sqlite")
	v.SetDefault("sqlite_path", defaultSQLitePath())
	v.SetDefault("database_url", "")

	v.SetDefault("locale", envLocale())
	v.SetDefault("device_latitude", 0.0)
	v.SetDefault("device_longitude", 0.0)
	v.SetDefault("device_location_set", false)
}

// Load reads defaults, an optional YAML file and TRIAGE_* env vars, in that order of precedence
// (env wins). path may be empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeLocal, ModeGCP:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}

	switch c.LLMProvider {
	case "mock":
	case "gemini":
		if c.GeminiAPIKey == "" && c.GCPProjectID == "" {
			return fmt.Errorf("gemini provider needs TRIAGE_GEMINI_API_KEY or TRIAGE_GCP_PROJECT")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai provider needs TRIAGE_OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLMProvider)
	}

	switch c.StorageBackend {
	case "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite backend needs TRIAGE_SQLITE_PATH")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("postgres backend needs TRIAGE_DATABASE_URL")
		}
	case "firestore":
		if c.GCPProjectID == "" {
			return fmt.Errorf("firestore backend needs TRIAGE_GCP_PROJECT")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	// Minimal validation in GCP mode
	if c.Mode == ModeGCP && c.GCPProjectID == "" {
		return fmt.Errorf("TRIAGE_GCP_PROJECT must be set in gcp mode")
	}
	return nil
}

func defaultSQLitePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "suma.db"
	}
	return filepath.Join(dir, "suma", "suma.db")
}

// envLocale derives a BCP 47 tag from LANG (es_PE.UTF-8 -> es-PE).
func envLocale() string {
	lang := os.Getenv("LANG")
	if lang == "" {
		return ""
	}
	lang, _, _ = strings.Cut(lang, ".")
	return strings.ReplaceAll(lang, "_", "-")
}
