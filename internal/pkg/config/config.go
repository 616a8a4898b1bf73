package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	PollInterval       time.Duration
	ReaderTimeout      time.Duration
	DeviceConfig       string
	CredentialsFile    string
	DatabaseURL        string
	MigrationsFolder   string
	MqttCfg            *MqttConfig
	KafkaCfg           *KafkaConfig
	SerialCfg          *SerialConfig
	HTTPAddr           string
	APITokenHash       string
	IrrigationSchedule string
	IrrigationDuration time.Duration
	Simulate           bool
	LogLevel           string
}

type MqttConfig struct {
	Host     string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type SerialConfig struct {
	SerialdumpPath string
	Device         string
	Baud           int
}

// EnvConfig holds settings that are only read from the environment.
type EnvConfig struct {
	MqttClientID    string `env:"MQTT_CLIENT_ID" envDefault:"irrigation-controller"`
	RetentionDays   int    `env:"RETENTION_DAYS" envDefault:"30"`
	CleanupSchedule string `env:"CLEANUP_SCHEDULE" envDefault:"0 3 * * *"`
	CronTZ          string `env:"CRON_TZ" envDefault:"Australia/Adelaide"`
	HistoryCapacity int    `env:"FLOW_HISTORY_CAPACITY" envDefault:"17280"`
	SinkBufferSize  int    `env:"SINK_BUFFER_SIZE" envDefault:"1000"`
}

func LoadEnv() (*EnvConfig, error) {
	cfg, err := env.ParseAs[EnvConfig]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.RetentionDays <= 0 {
		return nil, fmt.Errorf("RETENTION_DAYS must be positive, got %d", cfg.RetentionDays)
	}
	return &cfg, nil
}

func (e *EnvConfig) Retention() time.Duration {
	return time.Duration(e.RetentionDays) * 24 * time.Hour
}

// Schedule prefixes expr with the configured cron timezone.
func (e *EnvConfig) Schedule(expr string) string {
	if e.CronTZ == "" {
		return expr
	}
	return "CRON_TZ=" + e.CronTZ + " " + expr
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Authenticated reports whether both keys were present.
func (c Credentials) Authenticated() bool {
	return c.Username != "" && c.Password != ""
}

// LoadCredentials reads a {username, password} JSON file. A missing file
// yields empty credentials.
func LoadCredentials(path string) (Credentials, error) {
	var creds Credentials
	if path == "" {
		return creds, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return creds, nil
	}
	if err != nil {
		return creds, err
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("parse credentials file %s: %w", path, err)
	}
	if !creds.Authenticated() {
		return Credentials{}, nil
	}
	return creds, nil
}

// Apply fills in credentials that were not set explicitly.
func (c *Config) Apply(creds Credentials) error {
	if !creds.Authenticated() {
		return nil
	}
	if c.MqttCfg != nil && c.MqttCfg.Username == "" {
		c.MqttCfg.Username = creds.Username
		c.MqttCfg.Password = creds.Password
	}
	if c.DatabaseURL == "" {
		return nil
	}
	u, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	if u.User == nil || u.User.Username() == "" {
		u.User = url.UserPassword(creds.Username, creds.Password)
		c.DatabaseURL = u.String()
	}
	return nil
}
