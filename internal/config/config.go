package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`
	LogFile     string `env:"LOG_FILE"`

	PlatformFeePct     float64       `env:"PLATFORM_FEE_PCT" envDefault:"0.15"`
	GatewayFeePct      float64       `env:"GATEWAY_FEE_PCT" envDefault:"0"`
	PaymentWindow      time.Duration `env:"PAYMENT_WINDOW" envDefault:"30m"`
	PaymentTimeout     time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"15m"`
	PaymentMaxAttempts int           `env:"PAYMENT_MAX_ATTEMPTS" envDefault:"3"`
	DepositHold        time.Duration `env:"DEPOSIT_HOLD" envDefault:"168h"`
	ReconcileInterval  time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	ReconcileStale     time.Duration `env:"RECONCILE_STALE_AFTER" envDefault:"2m"`
	StoreTimeout       time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	ConflictRetries    int           `env:"CONFLICT_RETRIES" envDefault:"3"`
	DefaultGateway     string        `env:"DEFAULT_GATEWAY" envDefault:"azampay"`
	// CancellationRules overrides refund cutoffs, e.g. "flexible=24h:1,0s:0.5".
	CancellationRules string `env:"CANCELLATION_RULES"`

	AzamPay  AzamPayConfig  `envPrefix:"AZAMPAY_"`
	Razorpay RazorpayConfig `envPrefix:"RAZORPAY_"`

	RedisURL       string        `env:"REDIS_URL"`
	RateLimit      string        `env:"RATE_LIMIT" envDefault:"100-M"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	NotifyBackend string `env:"NOTIFY_BACKEND" envDefault:"log"`
	NotifyBuffer  int    `env:"NOTIFY_BUFFER" envDefault:"256"`
	AMQPURL       string `env:"AMQP_URL"`
	AMQPQueue     string `env:"AMQP_QUEUE" envDefault:"booking-events"`
	KafkaBrokers  string `env:"KAFKA_BROKERS"`
	KafkaTopic    string `env:"KAFKA_TOPIC" envDefault:"booking-events"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
	DBPingAttempts     int `env:"DB_PING_ATTEMPTS" envDefault:"30"`
}

type AzamPayConfig struct {
	AuthURL         string        `env:"AUTH_URL" envDefault:"https://authenticator-sandbox.azampay.co.tz"`
	APIURL          string        `env:"API_URL" envDefault:"https://sandbox.azampay.co.tz"`
	AppName         string        `env:"APP_NAME"`
	ClientID        string        `env:"CLIENT_ID"`
	ClientSecret    string        `env:"CLIENT_SECRET"`
	WebhookSecret   string        `env:"WEBHOOK_SECRET"`
	DefaultProvider string        `env:"PROVIDER" envDefault:"Tigo"`
	Timeout         time.Duration `env:"TIMEOUT" envDefault:"30s"`
	MaxRetries      uint64        `env:"MAX_RETRIES" envDefault:"3"`
}

// Enabled reports whether enough credentials are present to talk to AzamPay.
func (c AzamPayConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type RazorpayConfig struct {
	KeyID         string `env:"KEY_ID"`
	KeySecret     string `env:"KEY_SECRET"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
}

func (c RazorpayConfig) Enabled() bool {
	return c.KeyID != "" && c.KeySecret != ""
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.PlatformFeePct < 0 || c.PlatformFeePct >= 1 {
		return fmt.Errorf("PLATFORM_FEE_PCT must be in [0, 1), got %v", c.PlatformFeePct)
	}
	if c.GatewayFeePct < 0 || c.GatewayFeePct >= 1 {
		return fmt.Errorf("GATEWAY_FEE_PCT must be in [0, 1), got %v", c.GatewayFeePct)
	}
	if c.PaymentMaxAttempts < 1 {
		return fmt.Errorf("PAYMENT_MAX_ATTEMPTS must be at least 1")
	}
	switch c.NotifyBackend {
	case "log":
	case "amqp":
		if c.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required when NOTIFY_BACKEND=amqp")
		}
	case "kafka":
		if c.KafkaBrokers == "" {
			return fmt.Errorf("KAFKA_BROKERS is required when NOTIFY_BACKEND=kafka")
		}
	default:
		return fmt.Errorf("NOTIFY_BACKEND %q is not one of log, amqp, kafka", c.NotifyBackend)
	}
	if !c.AzamPay.Enabled() && !c.Razorpay.Enabled() {
		return fmt.Errorf("no payment gateway configured: set AZAMPAY_CLIENT_ID or RAZORPAY_KEY_ID")
	}
	return nil
}
