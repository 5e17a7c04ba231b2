package config

import (
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

const (
	DefaultModel           = "gpt-4o"
	DefaultImageModel      = "dall-e-3"
	DefaultBaseURL         = "https://api.openai.com/v1"
	DefaultMaxTokens       = 1024
	DefaultTemperature     = 1.0
	DefaultMaxToolRounds   = 5
	DefaultHistoryWindow   = 20
	DefaultSummaryInterval = 10
	DefaultLogCapacity     = 200
	DefaultLogRecent       = 20
	DefaultSweepSchedule   = "0 30 3 * * *"
	DefaultBufSize         = 100
)

type Config struct {
	Log       LogConfig      `yaml:"log"`
	Telegram  TelegramConfig `yaml:"telegram"`
	LLM       LLMConfig      `yaml:"llm"`
	Access    AccessConfig   `yaml:"access"`
	Chat      ChatConfig     `yaml:"chat"`
	Workspace string         `yaml:"workspace"`
}

type LogConfig struct {
	// debug, info, warn or error
	Level string `yaml:"level" example:"info"`
	// Optional Telegram sink for error reports
	Report ReportConfig `yaml:"report"`
}

type ReportConfig struct {
	// Bot token for the reporting bot, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID receiving the reports
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

type TelegramConfig struct {
	// Bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789" validate:"required"`
	// Optional HTTP proxy for the Bot API
	Proxy string `yaml:"proxy,omitempty"`
}

type LLMConfig struct {
	// Operator API key, used by allow-listed chats
	APIKey string `yaml:"api_key" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX"`
	// OpenAI-compatible base URL
	BaseURL string `yaml:"base_url" example:"https://api.openai.com/v1"`
	// Chat model
	Model string `yaml:"model" example:"gpt-4o" validate:"required"`
	// Image generation model
	ImageModel string `yaml:"image_model" example:"dall-e-3"`
	// Completion token cap per request
	MaxTokens int `yaml:"max_tokens"`
	// Sampling temperature
	Temperature float32 `yaml:"temperature"`
	// Stream partial replies into the chat
	Streaming bool `yaml:"streaming"`
}

type AccessConfig struct {
	// Chats that use the operator credentials; everyone else
	// has to bring their own key via /settings
	AllowChats []string `yaml:"allow_chats"`
}

type ChatConfig struct {
	HistoryWindow   int    `yaml:"history_window"`
	SummaryInterval int    `yaml:"summary_interval"`
	LogCapacity     int    `yaml:"log_capacity"`
	LogRecent       int    `yaml:"log_recent"`
	MaxToolRounds   int    `yaml:"max_tool_rounds"`
	SweepSchedule   string `yaml:"sweep_schedule"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Log: LogConfig{Level: "info"},
		LLM: LLMConfig{
			BaseURL:     DefaultBaseURL,
			Model:       DefaultModel,
			ImageModel:  DefaultImageModel,
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
			Streaming:   true,
		},
		Chat: ChatConfig{
			HistoryWindow:   DefaultHistoryWindow,
			SummaryInterval: DefaultSummaryInterval,
			LogCapacity:     DefaultLogCapacity,
			LogRecent:       DefaultLogRecent,
			MaxToolRounds:   DefaultMaxToolRounds,
			SweepSchedule:   DefaultSweepSchedule,
		},
		Workspace: filepath.Join(home, ".mnemo", "workspace"),
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".mnemo")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func DataDir() string {
	return filepath.Join(ConfigDir(), "data")
}

// Load reads the config file at path (ConfigPath when empty), layering it
// over the defaults. A missing file is fine; environment variables win over
// the file so secrets can stay out of it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, oops.Errorf("read config: %w", err)
		}
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, oops.Errorf("parse config: %w", err)
		}
	}

	if token := os.Getenv("MNEMO_TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if key := os.Getenv("MNEMO_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = key
	}
	if url := os.Getenv("MNEMO_BASE_URL"); url != "" {
		cfg.LLM.BaseURL = url
	}

	applyFallbacks(cfg)

	return cfg, nil
}

func applyFallbacks(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = DefaultBaseURL
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel
	}
	if cfg.LLM.ImageModel == "" {
		cfg.LLM.ImageModel = DefaultImageModel
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = DefaultMaxTokens
	}
	if cfg.Chat.HistoryWindow <= 0 {
		cfg.Chat.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.Chat.SummaryInterval <= 0 {
		cfg.Chat.SummaryInterval = DefaultSummaryInterval
	}
	if cfg.Chat.LogCapacity <= 0 {
		cfg.Chat.LogCapacity = DefaultLogCapacity
	}
	if cfg.Chat.LogRecent <= 0 {
		cfg.Chat.LogRecent = DefaultLogRecent
	}
	if cfg.Chat.MaxToolRounds <= 0 {
		cfg.Chat.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.Chat.SweepSchedule == "" {
		cfg.Chat.SweepSchedule = DefaultSweepSchedule
	}
	if cfg.Workspace == "" {
		cfg.Workspace = DefaultConfig().Workspace
	}
}

// Validate checks the fields the gateway cannot run without. Load stays
// lenient so onboard and status work on a fresh machine.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return oops.Errorf("validate config: %w", err)
	}
	return nil
}

func Save(cfg *Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return oops.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return oops.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}
