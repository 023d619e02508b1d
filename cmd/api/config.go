package main

import (
	"encoding/json"
	"os"
	"time"
)

type Config struct {
	HttpPort     int    `json:"http_port"`
	DbConnString string `json:"db_conn_string"`
	RedisAddr    string `json:"redis_addr"`
	AmqpURL      string `json:"amqp_url"`
	AmqpExchange string `json:"amqp_exchange"`

	ProviderBaseURL    string        `json:"provider_base_url"`
	ProviderApiKey     string        `json:"provider_api_key"`
	ProviderTimeoutStr string        `json:"provider_timeout"`
	ProviderTimeout    time.Duration `json:"-"`

	SupervisorIntervalStr string        `json:"supervisor_interval"`
	SupervisorInterval    time.Duration `json:"-"`
	RecoverySettleStr     string        `json:"recovery_settle_delay"`
	RecoverySettle        time.Duration `json:"-"`
	RecoveryTimeoutStr    string        `json:"recovery_timeout"`
	RecoveryTimeout       time.Duration `json:"-"`
	MaxReconnectAttempts  int           `json:"max_reconnect_attempts"`
	ProvisionMaxAttempts  int           `json:"provision_max_attempts"`
}

// ReadConfigJson reads json formatted configuration from the given file
func ReadConfigJson(configFile string) (*Config, error) {
	content, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}

	cfg := new(Config)

	if err = json.Unmarshal(content, cfg); err != nil {
		return nil, err
	}

	if cfg.ProviderTimeout, err = parseDurationOr(cfg.ProviderTimeoutStr, 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.SupervisorInterval, err = parseDurationOr(cfg.SupervisorIntervalStr, 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RecoverySettle, err = parseDurationOr(cfg.RecoverySettleStr, 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.RecoveryTimeout, err = parseDurationOr(cfg.RecoveryTimeoutStr, 45*time.Second); err != nil {
		return nil, err
	}

	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 3
	}
	if cfg.ProvisionMaxAttempts <= 0 {
		cfg.ProvisionMaxAttempts = 2
	}
	if cfg.AmqpExchange == "" {
		cfg.AmqpExchange = "crm.notifications"
	}

	return cfg, nil
}

func parseDurationOr(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}
