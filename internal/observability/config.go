package observability

import (
	"strings"

	"github.com/smallbiznis/feeledger/internal/config"
)

// Config is the observability view of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	development bool
}

const (
	developmentSamplingRatio = 1.0
	productionSamplingRatio  = 0.1
)

// LoadConfig samples every trace outside production unless a ratio is set.
func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "feeledger"
	}

	ratio := cfg.TraceSampleRatio
	if ratio < 0 || ratio > 1 {
		ratio = productionSamplingRatio
		if !cfg.IsProduction() {
			ratio = developmentSamplingRatio
		}
	}

	protocol := cfg.OTLPProtocol
	switch protocol {
	case "http", "http/protobuf":
	default:
		protocol = "grpc"
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             cfg.LogLevel,
		LogFormat:            cfg.LogFormat,
		OtelEnabled:          cfg.OTelEnabled && strings.TrimSpace(cfg.OTLPEndpoint) != "",
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    ratio,
		development:          cfg.IsDevelopment(),
	}
}

// Debug turns on console logs and gin debug mode.
func (c Config) Debug() bool {
	return c.LogLevel == "debug" || c.development
}
