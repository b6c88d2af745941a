package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/diasbot/insta-consultant/internal/models"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Instagram InstagramConfig `mapstructure:"instagram"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Bot       BotConfig       `mapstructure:"bot"`
	Reminder  ReminderConfig  `mapstructure:"reminder"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type InstagramConfig struct {
	Token       string `mapstructure:"token"`
	VerifyToken string `mapstructure:"verify_token"`
	APIBase     string `mapstructure:"api_base"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	PromptFile  string  `mapstructure:"prompt_file"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

// TelegramConfig configures optional operator alerts; alerts are disabled
// when the token is empty.
type TelegramConfig struct {
	Token       string `mapstructure:"token"`
	AdminChatID int64  `mapstructure:"admin_chat_id"`
}

type BotConfig struct {
	QuietWindowSeconds   int `mapstructure:"quiet_window_seconds"`
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
	DedupCapacity        int `mapstructure:"dedup_capacity"`
}

type ReminderConfig struct {
	LeadTargeting bool         `mapstructure:"lead_targeting"`
	LeadPassHours int          `mapstructure:"lead_pass_hours"`
	Tiers         []TierConfig `mapstructure:"tiers"`
}

type TierConfig struct {
	Hours int    `mapstructure:"hours"`
	Label string `mapstructure:"label"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("server.address", ":8080")
	v.SetDefault("instagram.api_base", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.prompt_file", "prompts/consultant.txt")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", true)
	v.SetDefault("bot.quiet_window_seconds", 5)
	v.SetDefault("bot.sweep_interval_seconds", 5)
	v.SetDefault("bot.dedup_capacity", 100)
	v.SetDefault("reminder.lead_targeting", false)
	v.SetDefault("reminder.lead_pass_hours", 12)

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file if present; env-only deployments are fine.
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		dbConfig.UseInMemory = false
		config.Database = dbConfig
	}

	// Get other environment variables
	if token := v.GetString("INSTAGRAM_TOKEN"); token != "" {
		config.Instagram.Token = token
	}
	if token := v.GetString("VERIFY_TOKEN"); token != "" {
		config.Instagram.VerifyToken = token
	}
	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if chatID := v.GetInt64("TELEGRAM_ADMIN_CHAT_ID"); chatID != 0 {
		config.Telegram.AdminChatID = chatID
	}

	return &config, nil
}

// Validate reports the missing required credentials. The process must not
// serve traffic without them.
func (c *Config) Validate() error {
	var missing []string
	if c.Instagram.Token == "" {
		missing = append(missing, "INSTAGRAM_TOKEN")
	}
	if c.Instagram.VerifyToken == "" {
		missing = append(missing, "VERIFY_TOKEN")
	}
	if c.OpenAI.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required configuration not set: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Tiers converts the configured reminder cadence, falling back to the
// built-in defaults when none is configured.
func (c *Config) Tiers() []models.Tier {
	if len(c.Reminder.Tiers) == 0 {
		return models.DefaultTiers()
	}
	tiers := make([]models.Tier, 0, len(c.Reminder.Tiers))
	for _, t := range c.Reminder.Tiers {
		tiers = append(tiers, models.Tier{
			Interval: time.Duration(t.Hours) * time.Hour,
			Label:    t.Label,
		})
	}
	return tiers
}
