package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type AIConfig struct {
	OpenAIKey      string        `yaml:"openai_key"`
	GeminiKey      string        `yaml:"gemini_key"`
	GeminiURL      string        `yaml:"gemini_url"`
	ChatModel      string        `yaml:"chat_model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	Timeout        time.Duration `yaml:"timeout"` // per generation/embedding call
}

type SearchConfig struct {
	MilvusURL       string `yaml:"milvus_url"`
	Collection      string `yaml:"collection"`
	ElasticURL      string `yaml:"elastic_url"`
	ElasticUser     string `yaml:"elastic_user"`
	ElasticPassword string `yaml:"elastic_password"`
	FAQIndex        string `yaml:"faq_index"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TicketTTL time.Duration `yaml:"ticket_ttl"`
}

type ChatConfig struct {
	EscalationThreshold int           `yaml:"escalation_threshold"`
	TopK                int           `yaml:"top_k"`
	HistoryTokenBudget  int           `yaml:"history_token_budget"`
	InitialFAQCount     int           `yaml:"initial_faq_count"`
	FAQRefreshInterval  time.Duration `yaml:"faq_refresh_interval"`
	Workers             int           `yaml:"workers"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	AI       AIConfig       `yaml:"ai"`
	Search   SearchConfig   `yaml:"search"`
	Auth     AuthConfig     `yaml:"auth"`
	Chat     ChatConfig     `yaml:"chat"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file, applies env overrides for secrets and
// fills defaults. Secrets never have YAML defaults.
func LoadConfig(path string, dev bool) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.AI.OpenAIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.AI.GeminiKey = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.AI.ChatModel == "" {
		c.AI.ChatModel = "gpt-4o-mini"
	}
	if c.AI.EmbeddingModel == "" {
		c.AI.EmbeddingModel = "text-embedding-3-small"
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 30 * time.Second
	}
	if c.Search.Collection == "" {
		c.Search.Collection = "knowledge_base_dynamic"
	}
	if c.Search.FAQIndex == "" {
		c.Search.FAQIndex = "faq_index"
	}
	if c.Auth.TicketTTL == 0 {
		c.Auth.TicketTTL = time.Minute
	}
	if c.Chat.EscalationThreshold == 0 {
		c.Chat.EscalationThreshold = 1
	}
	if c.Chat.TopK == 0 {
		c.Chat.TopK = 5
	}
	if c.Chat.HistoryTokenBudget == 0 {
		c.Chat.HistoryTokenBudget = 3000
	}
	if c.Chat.InitialFAQCount == 0 {
		c.Chat.InitialFAQCount = 3
	}
	if c.Chat.FAQRefreshInterval == 0 {
		c.Chat.FAQRefreshInterval = time.Hour
	}
	if c.Chat.Workers == 0 {
		c.Chat.Workers = 16
	}
}

func (c *Config) validate() error {
	if c.Redis.URL == "" {
		return errors.New("config: redis.url is required")
	}
	if c.Auth.JWTSecret == "" && !c.Runtime.Dev {
		return errors.New("config: auth.jwt_secret is required outside dev mode")
	}
	return nil
}
