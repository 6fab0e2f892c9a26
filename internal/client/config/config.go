package config

import "time"

// Config holds runtime settings for the field client.
//
// Units: intervals and timeouts are time.Duration values.
type Config struct {
	ServerEndpointAddr  string
	DBPath              string
	OnlineCheckInterval time.Duration
	PollInterval        time.Duration
	RequestTimeout      time.Duration

	DBWorkers      int64
	NetworkWorkers int64
	RetryAttempts  uint64
	RetryBase      time.Duration
	RetryMax       time.Duration

	LogFile     string
	LogLevel    string
	MetricsAddr string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DBPath = "fieldsync.db"
	c.OnlineCheckInterval = 3 * time.Second
	c.PollInterval = 30 * time.Second
	c.RequestTimeout = 15 * time.Second

	c.DBWorkers = 1
	c.NetworkWorkers = 4
	c.RetryAttempts = 5
	c.RetryBase = 500 * time.Millisecond
	c.RetryMax = 30 * time.Second

	c.LogFile = "fieldsync.log"
	c.LogLevel = "info"
	c.MetricsAddr = ""
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones. args excludes the program name.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
