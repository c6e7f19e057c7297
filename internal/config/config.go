package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	APIPort     int    `env:"API_PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	AppEnv      string `env:"APP_ENV,default=production"`

	// Mainframe protocol parameters are optional at boot; the client fails closed per call.
	MainframeBaseURL       string  `env:"MAINFRAME_BASE_URL"`
	MainframeSessionID     string  `env:"MAINFRAME_SESSION_ID"`
	MainframeCompany       string  `env:"MAINFRAME_COMPANY"`
	MainframeProduct       string  `env:"MAINFRAME_PRODUCT"`
	MainframeMandant       string  `env:"MAINFRAME_MANDANT"`
	MainframeSystem        string  `env:"MAINFRAME_SYSTEM"`
	MainframeAuthToken     string  `env:"MAINFRAME_AUTH_TOKEN"`
	MainframeBearerToken   string  `env:"MAINFRAME_BEARER_TOKEN"`
	MainframeReadFunction  string  `env:"MAINFRAME_READ_FUNCTION,default=AuftraegeLesen"`
	MainframeWriteFunction string  `env:"MAINFRAME_WRITE_FUNCTION,default=AuftragSchreiben"`
	MainframeTimeoutSec    float64 `env:"MAINFRAME_TIMEOUT_SECONDS,default=30"`
	MainframeRateLimit     int     `env:"MAINFRAME_RATE_LIMIT_PER_SEC,default=10"`

	ExportStrategy        string `env:"EXPORT_STRATEGY,default=direct_post"`
	TransferSigningSecret string `env:"TRANSFER_SIGNING_SECRET"`
	PublicBaseURL         string `env:"PUBLIC_BASE_URL,default=http://localhost:8080"`

	RetryScanIntervalSec int `env:"RETRY_SCAN_INTERVAL_SECONDS,default=60"`
	ImportIntervalSec    int `env:"IMPORT_INTERVAL_SECONDS,default=300"`
	WorkerConcurrency    int `env:"WORKER_CONCURRENCY,default=4"`
	WorkerMetricsPort    int `env:"WORKER_METRICS_PORT,default=9090"`

	OTelServiceName string `env:"OTEL_SERVICE_NAME,default=mainframe-order-sync"`
	OTelEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// IsTest reports whether the process runs in a non-production test context.
func (c *Config) IsTest() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "test")
}

// MainframeTimeout converts the configured seconds; zero or negative means no timeout.
func (c *Config) MainframeTimeout() time.Duration {
	if c.MainframeTimeoutSec <= 0 {
		return 0
	}
	return time.Duration(c.MainframeTimeoutSec * float64(time.Second))
}

func (c *Config) RetryScanInterval() time.Duration {
	return time.Duration(c.RetryScanIntervalSec) * time.Second
}

func (c *Config) ImportInterval() time.Duration {
	return time.Duration(c.ImportIntervalSec) * time.Second
}
