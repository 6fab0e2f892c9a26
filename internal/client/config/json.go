package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/flagx"
	"github.com/dmitrijs2005/fieldsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields tell an absent key apart from a zero value.
type JsonConfig struct {
	ServerEndpointAddr  *string         `json:"server_endpoint_addr"`
	DBPath              *string         `json:"db_path"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	PollInterval        *timex.Duration `json:"poll_interval"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
	DBWorkers           *int64          `json:"db_workers"`
	NetworkWorkers      *int64          `json:"network_workers"`
	RetryAttempts       *uint64         `json:"retry_attempts"`
	RetryBase           *timex.Duration `json:"retry_base"`
	RetryMax            *timex.Duration `json:"retry_max"`
	LogFile             *string         `json:"log_file"`
	LogLevel            *string         `json:"log_level"`
	MetricsAddr         *string         `json:"metrics_addr"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c or -config. Without such a flag nothing is loaded.
func parseJson(cfg *Config, args []string) error {
	jsonConfigFile := flagx.ConfigPath(args)
	if jsonConfigFile == "" {
		return nil
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", jsonConfigFile, err)
	}

	set(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	set(&cfg.DBPath, jc.DBPath)
	set(&cfg.DBWorkers, jc.DBWorkers)
	set(&cfg.NetworkWorkers, jc.NetworkWorkers)
	set(&cfg.RetryAttempts, jc.RetryAttempts)
	set(&cfg.LogFile, jc.LogFile)
	set(&cfg.LogLevel, jc.LogLevel)
	set(&cfg.MetricsAddr, jc.MetricsAddr)

	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.PollInterval, jc.PollInterval)
	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	setDuration(&cfg.RetryBase, jc.RetryBase)
	setDuration(&cfg.RetryMax, jc.RetryMax)
	return nil
}
