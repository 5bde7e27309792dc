package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Database  DatabaseConfig  `yaml:"database"`
	AI        AIConfig        `yaml:"ai"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`
	// MachineIDPath points at a host-stable secret used to derive the
	// server id. Startup refuses if the file is missing.
	MachineIDPath string `yaml:"machine_id_path"`
}

// WebSocketConfig contains WebSocket settings
type WebSocketConfig struct {
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendQueueSize  int           `yaml:"send_queue_size"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	DBName         string `yaml:"dbname"`
	SSLMode        string `yaml:"sslmode"`
	MaxConnections int    `yaml:"max_connections"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// AIConfig contains settings for the AI server and for talking to it
type AIConfig struct {
	// ServerURL is where the game server POSTs new AI game triggers
	ServerURL string `yaml:"server_url"`
	// GameServerURL is the websocket endpoint AI clients dial
	GameServerURL string `yaml:"game_server_url"`
	// DataPath is the AI server's local policy-state database
	DataPath string `yaml:"data_path"`
	// Policy selects the play policy for spawned clients
	Policy string `yaml:"policy"`
	// ErrorSleepPeriod is how long a client waits before resending a
	// rejected action
	ErrorSleepPeriod time.Duration `yaml:"error_sleep_period"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8888,
			Environment:   "development",
			MachineIDPath: "/etc/machine-id",
		},
		WebSocket: WebSocketConfig{
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			PingInterval:   30 * time.Second,
			MaxMessageSize: 8192,
			SendQueueSize:  100,
		},
		Database: DatabaseConfig{
			Host:           "127.0.0.1",
			Port:           5432,
			User:           "igo",
			Password:       "igo",
			DBName:         "igo",
			SSLMode:        "disable",
			MaxConnections: 8,
		},
		AI: AIConfig{
			ServerURL:        "http://127.0.0.1:1918",
			GameServerURL:    "ws://127.0.0.1:8888/websocket",
			DataPath:         "./data/aiserver.db",
			Policy:           "random",
			ErrorSleepPeriod: 2 * time.Second,
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvironmentOverrides applies environment-specific settings
func (c *Config) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Server.Port)
	}

	if host := os.Getenv("HOST"); host != "" {
		c.Server.Host = host
	}

	if env := os.Getenv("ENVIRONMENT"); env != "" {
		c.Server.Environment = env
	}

	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		c.Database.Host = dbHost
	}
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", c.Server.Port)
	}

	if c.Server.MachineIDPath == "" {
		return fmt.Errorf("machine_id_path must be set")
	}

	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	return nil
}

// GetAddr returns the server address in host:port format
func (c *Config) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
