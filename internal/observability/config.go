package observability

import (
	"strings"

	"github.com/smallbiznis/accessd/internal/config"
)

// Config holds observability settings derived from the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	LogLevel    string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "accessd"
	}
	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             strings.ToLower(strings.TrimSpace(cfg.LogLevel)),
		OtelEnabled:          cfg.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: strings.ToLower(strings.TrimSpace(cfg.OTLPProtocol)),
	}
}

// Debug reports whether verbose request and query logging should be enabled.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
