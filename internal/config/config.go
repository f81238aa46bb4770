package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds the application configuration. It is built once by Load and
// treated as read-only afterwards.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Reasoning  ReasoningConfig  `mapstructure:"reasoning"`
	Vision     VisionConfig     `mapstructure:"vision"`
	Cache      CacheConfig      `mapstructure:"cache"`
	LocalModel LocalModelConfig `mapstructure:"local_model"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// DetectionConfig controls normalization and proximity scoring
type DetectionConfig struct {
	// Backend is "vision" (hosted API) or "local" (in-process model)
	Backend           string            `mapstructure:"backend"`
	DefaultConfidence float64           `mapstructure:"default_confidence"`
	ThresholdUnit     float64           `mapstructure:"threshold_unit"`
	CanvasWidth       int               `mapstructure:"canvas_width"`
	CanvasHeight      int               `mapstructure:"canvas_height"`
	MinImageSize      int               `mapstructure:"min_image_size"`
	CategoryOverrides map[string]string `mapstructure:"category_overrides"`
}

type ReasoningConfig struct {
	// Provider is one of gemini, chatcompletion or ollama
	Provider        string  `mapstructure:"provider"`
	Model           string  `mapstructure:"model"`
	Endpoint        string  `mapstructure:"endpoint"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
	// APIKeys are tried in order. For ollama they are host URLs.
	APIKeys     []string      `mapstructure:"api_keys"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Language    string        `mapstructure:"language"`
}

type VisionConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	Model         string        `mapstructure:"model"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxUploadDim  int           `mapstructure:"max_upload_dim"`
	MinConfidence float64       `mapstructure:"min_confidence"`
}

type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type LocalModelConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	ModelPath           string  `mapstructure:"model_path"`
	ConfigPath          string  `mapstructure:"config_path"`
	InputSize           int     `mapstructure:"input_size"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
}

const maxNumberedKeys = 9

// Load reads .env, an optional YAML file and the environment. An empty path
// skips the file.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	cfg.Reasoning.APIKeys = collectAPIKeys(cfg.Reasoning.APIKeys, os.Getenv)
	if cfg.Vision.APIKey == "" {
		cfg.Vision.APIKey = firstNonEmpty(os.Getenv("VISION_API_KEY"), os.Getenv("ROBOFLOW_API_KEY"))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.max_body_bytes", 20<<20)

	v.SetDefault("detection.backend", "vision")
	v.SetDefault("detection.default_confidence", 0.5)
	v.SetDefault("detection.threshold_unit", 3.0)
	v.SetDefault("detection.canvas_width", 1000)
	v.SetDefault("detection.canvas_height", 1000)
	v.SetDefault("detection.min_image_size", 32)
	v.SetDefault("detection.category_overrides", map[string]string{})

	v.SetDefault("reasoning.provider", "gemini")
	v.SetDefault("reasoning.model", "gemini-1.5-flash")
	v.SetDefault("reasoning.endpoint", "")
	v.SetDefault("reasoning.temperature", 0.2)
	v.SetDefault("reasoning.max_output_tokens", 4096)
	v.SetDefault("reasoning.api_keys", []string{})
	v.SetDefault("reasoning.timeout", 30*time.Second)
	v.SetDefault("reasoning.max_attempts", 0)
	v.SetDefault("reasoning.language", "English")

	v.SetDefault("vision.endpoint", "https://detect.roboflow.com")
	v.SetDefault("vision.model", "construction-site-safety/27")
	v.SetDefault("vision.api_key", "")
	v.SetDefault("vision.timeout", 20*time.Second)
	v.SetDefault("vision.max_upload_dim", 1280)
	v.SetDefault("vision.min_confidence", 0.0)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 10*time.Minute)

	v.SetDefault("local_model.enabled", false)
	v.SetDefault("local_model.model_path", "models/ssd_mobilenet_v2_coco.pb")
	v.SetDefault("local_model.config_path", "")
	v.SetDefault("local_model.input_size", 300)
	v.SetDefault("local_model.confidence_threshold", 0.4)
}

// collectAPIKeys merges configured keys with REASONING_API_KEYS and the
// numbered GEMINI_API_KEY variables, keeping declared order and dropping
// blanks and duplicates
func collectAPIKeys(configured []string, getenv func(string) string) []string {
	var candidates []string
	for _, k := range configured {
		candidates = append(candidates, strings.Split(k, ",")...)
	}
	candidates = append(candidates, strings.Split(getenv("REASONING_API_KEYS"), ",")...)
	candidates = append(candidates, getenv("GEMINI_API_KEY"))
	for i := 2; i <= maxNumberedKeys; i++ {
		candidates = append(candidates, getenv(fmt.Sprintf("GEMINI_API_KEY_%d", i)))
	}

	seen := make(map[string]bool, len(candidates))
	keys := make([]string, 0, len(candidates))
	for _, k := range candidates {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

func firstNonEmpty(values ...string) string {
	for _, s := range values {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// Validate checks value ranges. Missing credentials are not a load error;
// they surface when a request needs them.
func (c *Config) Validate() error {
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return errors.Errorf("server.mode must be debug, release or test, got %q", c.Server.Mode)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}

	switch c.Detection.Backend {
	case "vision", "local":
	default:
		return errors.Errorf("detection.backend must be vision or local, got %q", c.Detection.Backend)
	}
	if c.Detection.DefaultConfidence < 0 || c.Detection.DefaultConfidence > 1 {
		return errors.New("detection.default_confidence must be between 0 and 1")
	}
	if c.Detection.ThresholdUnit <= 0 {
		return errors.New("detection.threshold_unit must be positive")
	}
	if c.Detection.CanvasWidth <= 0 || c.Detection.CanvasHeight <= 0 {
		return errors.New("detection.canvas_width and canvas_height must be positive")
	}

	switch c.Reasoning.Provider {
	case "gemini", "chatcompletion", "ollama":
	default:
		return errors.Errorf("reasoning.provider must be gemini, chatcompletion or ollama, got %q", c.Reasoning.Provider)
	}
	if c.Reasoning.Provider == "chatcompletion" && c.Reasoning.Endpoint == "" {
		return errors.New("reasoning.endpoint is required for the chatcompletion provider")
	}
	if c.Reasoning.Timeout <= 0 {
		return errors.New("reasoning.timeout must be positive")
	}
	if c.Reasoning.MaxAttempts < 0 {
		return errors.New("reasoning.max_attempts cannot be negative")
	}
	if c.Reasoning.Temperature < 0 || c.Reasoning.Temperature > 2 {
		return errors.New("reasoning.temperature must be between 0 and 2")
	}

	if c.Vision.MinConfidence < 0 || c.Vision.MinConfidence > 1 {
		return errors.New("vision.min_confidence must be between 0 and 1")
	}
	if c.Vision.Timeout <= 0 {
		return errors.New("vision.timeout must be positive")
	}

	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be positive when the cache is enabled")
	}
	if c.Detection.Backend == "local" && !c.LocalModel.Enabled {
		return errors.New("detection.backend is local but local_model.enabled is false")
	}
	return nil
}
