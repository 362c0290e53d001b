package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"waitlist/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App         AppConfig          `yaml:"app"`
	Database    DatabaseConfig     `yaml:"database"`
	Redis       RedisConfig        `yaml:"redis"`
	Monitoring  MonitoringConfig   `yaml:"monitoring"`
	Logging     LoggingConfig      `yaml:"logging"`
	API         APIConfig          `yaml:"api"`
	SMS         SMSConfig          `yaml:"sms"`
	Waitlist    WaitlistConfig     `yaml:"waitlist"`
	FanOut      FanOutConfig       `yaml:"fanout"`
	Restaurants []RestaurantConfig `yaml:"restaurants"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	// Path of the SQLite file. Empty keeps all records in memory.
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP        APIHTTPConfig      `yaml:"http"`
	Auth        APIAuthConfig      `yaml:"auth"`
	RateLimit   APIRateLimitConfig `yaml:"rate_limit"`
	CORSOrigins []string           `yaml:"cors_origins"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
	// Restaurants limits the key to the listed restaurant ids; empty allows all.
	Restaurants []string `yaml:"restaurants"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type SMSConfig struct {
	Provider      string        `yaml:"provider"` // twilio or log
	AccountSID    string        `yaml:"account_sid"`
	AuthToken     string        `yaml:"auth_token"`
	From          string        `yaml:"from"`
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	WebhookToken  string        `yaml:"webhook_token"`
	DefaultRegion string        `yaml:"default_region"`

	// InvalidReplyLimit caps invalidResponse answers per phone within InvalidReplyWindow.
	InvalidReplyLimit  int           `yaml:"invalid_reply_limit"`
	InvalidReplyWindow time.Duration `yaml:"invalid_reply_window"`
}

type WaitlistConfig struct {
	GracePeriodMinutes    int  `yaml:"grace_period_minutes"`
	FollowUpBeforeMinutes int  `yaml:"follow_up_before_minutes"`
	AverageTurnMinutes    int  `yaml:"average_turn_minutes"`
	CleanAfterComplete    bool `yaml:"clean_after_complete"`
	TimerWorkers          int  `yaml:"timer_workers"`
	DispatchWorkers       int  `yaml:"dispatch_workers"`
	DispatchQueueSize     int  `yaml:"dispatch_queue_size"`
}

type FanOutConfig struct {
	Channel        string        `yaml:"channel"`
	InstanceID     string        `yaml:"instance_id"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	SendBuffer     int           `yaml:"send_buffer"`
	OutboxSize     int           `yaml:"outbox_size"`
}

type RestaurantConfig struct {
	models.Restaurant `yaml:",inline"`
	Tables            []models.Table `yaml:"tables"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.SMS.Provider {
	case "log":
	case "twilio":
		if c.SMS.AccountSID == "" || c.SMS.AuthToken == "" {
			return errors.New("sms.account_sid and sms.auth_token are required for twilio")
		}
		if c.SMS.From == "" {
			return errors.New("sms.from is required for twilio")
		}
	default:
		return fmt.Errorf("unknown sms provider %q", c.SMS.Provider)
	}

	if c.Waitlist.FollowUpBeforeMinutes >= c.Waitlist.GracePeriodMinutes {
		return fmt.Errorf("waitlist.follow_up_before_minutes (%d) must be shorter than grace_period_minutes (%d)",
			c.Waitlist.FollowUpBeforeMinutes, c.Waitlist.GracePeriodMinutes)
	}

	return ValidateRestaurants(c.Restaurants)
}

func ValidateRestaurants(restaurants []RestaurantConfig) error {
	ids := make(map[string]bool)
	for _, r := range restaurants {
		if r.ID == "" {
			return fmt.Errorf("restaurant '%s' has empty id", r.Name)
		}
		if ids[r.ID] {
			return fmt.Errorf("duplicate restaurant id found: %s", r.ID)
		}
		ids[r.ID] = true

		tableIDs := make(map[string]bool)
		for _, t := range r.Tables {
			if t.ID == "" {
				return fmt.Errorf("restaurant %s: table '%s' has empty id", r.ID, t.Label)
			}
			if tableIDs[t.ID] {
				return fmt.Errorf("restaurant %s: duplicate table id %s", r.ID, t.ID)
			}
			if t.Capacity <= 0 {
				return fmt.Errorf("restaurant %s: table %s has invalid capacity %d", r.ID, t.ID, t.Capacity)
			}
			tableIDs[t.ID] = true
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "waitlist"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.SMS.Provider == "" {
		c.SMS.Provider = "log"
	}
	if c.SMS.Timeout == 0 {
		c.SMS.Timeout = 10 * time.Second
	}
	if c.SMS.MaxAttempts == 0 {
		c.SMS.MaxAttempts = 3
	}
	if c.SMS.BaseDelay == 0 {
		c.SMS.BaseDelay = time.Second
	}
	if c.SMS.MaxDelay == 0 {
		c.SMS.MaxDelay = 30 * time.Second
	}
	if c.SMS.DefaultRegion == "" {
		c.SMS.DefaultRegion = "CA"
	}
	if c.SMS.InvalidReplyLimit == 0 {
		c.SMS.InvalidReplyLimit = 3
	}
	if c.SMS.InvalidReplyWindow == 0 {
		c.SMS.InvalidReplyWindow = 10 * time.Minute
	}

	if c.Waitlist.GracePeriodMinutes == 0 {
		c.Waitlist.GracePeriodMinutes = models.DefaultGracePeriodMinutes
	}
	if c.Waitlist.FollowUpBeforeMinutes == 0 {
		c.Waitlist.FollowUpBeforeMinutes = models.DefaultFollowUpBeforeMinutes
	}
	if c.Waitlist.AverageTurnMinutes == 0 {
		c.Waitlist.AverageTurnMinutes = models.DefaultAverageTurnMinutes
	}
	if c.Waitlist.TimerWorkers == 0 {
		c.Waitlist.TimerWorkers = 4
	}
	if c.Waitlist.DispatchWorkers == 0 {
		c.Waitlist.DispatchWorkers = 4
	}
	if c.Waitlist.DispatchQueueSize == 0 {
		c.Waitlist.DispatchQueueSize = 256
	}

	if c.FanOut.Channel == "" {
		c.FanOut.Channel = "waitlist:events"
	}
	if c.FanOut.PublishTimeout == 0 {
		c.FanOut.PublishTimeout = 2 * time.Second
	}
	if c.FanOut.WriteTimeout == 0 {
		c.FanOut.WriteTimeout = 5 * time.Second
	}
	if c.FanOut.SendBuffer == 0 {
		c.FanOut.SendBuffer = 64
	}
	if c.FanOut.OutboxSize == 0 {
		c.FanOut.OutboxSize = 1024
	}

	for i := range c.Restaurants {
		r := &c.Restaurants[i]
		if r.GracePeriodMinutes == 0 {
			r.GracePeriodMinutes = c.Waitlist.GracePeriodMinutes
		}
		if r.FollowUpBeforeMinutes == 0 {
			r.FollowUpBeforeMinutes = c.Waitlist.FollowUpBeforeMinutes
		}
		if r.AverageTurnMinutes == 0 {
			r.AverageTurnMinutes = c.Waitlist.AverageTurnMinutes
		}
		for j := range r.Tables {
			if r.Tables[j].Status == "" {
				r.Tables[j].Status = models.TableAvailable
			}
		}
	}
}
