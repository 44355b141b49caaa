package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"
)

var ErrMissingKey = errors.New("missing required configuration key")

type MpesaConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	Environment    string
	// Initiator credentials are reserved for B2C/B2B flows and unused by STK push.
	InitiatorUsername string
	InitiatorPassword string
	PassKey           string
	ShortCode         string
	CallbackURL       string
	BaseURL           string
	HTTPTimeout       time.Duration
}

// Host returns the provider base URL for the configured environment,
// unless BaseURL overrides it.
func (m MpesaConfig) Host() string {
	if m.BaseURL != "" {
		return strings.TrimRight(m.BaseURL, "/")
	}
	if m.Environment == EnvironmentProduction {
		return "https://api.safaricom.co.ke"
	}
	return "https://sandbox.safaricom.co.ke"
}

type DBConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	QueryTimeout time.Duration
}

type Config struct {
	HTTPAddr  string
	RateLimit string
	LogDir    string
	// TLSCertFile and TLSKeyFile switch the listener to HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string
	Mpesa       MpesaConfig
	DB          DBConfig
}

func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// Load reads configuration from the environment. A config.env or .env file
// in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load("config.env")
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("RATE_LIMIT", "60-M")
	v.SetDefault("LOG_DIR", "")
	v.SetDefault("TLS_CERT_FILE", "")
	v.SetDefault("TLS_KEY_FILE", "")
	v.SetDefault("MPESA_LNMO_ENVIRONMENT", EnvironmentSandbox)
	v.SetDefault("MPESA_HTTP_TIMEOUT", "15s")
	v.SetDefault("MPESA_BASE_URL", "")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_QUERY_TIMEOUT", "5s")
	v.AutomaticEnv()

	cfg := &Config{
		HTTPAddr:    v.GetString("HTTP_ADDR"),
		RateLimit:   v.GetString("RATE_LIMIT"),
		LogDir:      v.GetString("LOG_DIR"),
		TLSCertFile: v.GetString("TLS_CERT_FILE"),
		TLSKeyFile:  v.GetString("TLS_KEY_FILE"),
		Mpesa: MpesaConfig{
			ConsumerKey:       v.GetString("MPESA_LNMO_CONSUMER_KEY"),
			ConsumerSecret:    v.GetString("MPESA_LNMO_CONSUMER_SECRET"),
			Environment:       strings.ToLower(v.GetString("MPESA_LNMO_ENVIRONMENT")),
			InitiatorUsername: v.GetString("MPESA_LNMO_INITIATOR_USERNAME"),
			InitiatorPassword: v.GetString("MPESA_LNMO_INITIATOR_PASSWORD"),
			PassKey:           v.GetString("MPESA_LNMO_PASS_KEY"),
			ShortCode:         v.GetString("MPESA_LNMO_SHORT_CODE"),
			CallbackURL:       v.GetString("MPESA_LNMO_CALLBACK_URL"),
			BaseURL:           v.GetString("MPESA_BASE_URL"),
			HTTPTimeout:       v.GetDuration("MPESA_HTTP_TIMEOUT"),
		},
		DB: DBConfig{
			URL:          v.GetString("DATABASE_URL"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
			QueryTimeout: v.GetDuration("DB_QUERY_TIMEOUT"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	required := map[string]string{
		"MPESA_LNMO_CONSUMER_KEY":    c.Mpesa.ConsumerKey,
		"MPESA_LNMO_CONSUMER_SECRET": c.Mpesa.ConsumerSecret,
		"MPESA_LNMO_PASS_KEY":        c.Mpesa.PassKey,
		"MPESA_LNMO_SHORT_CODE":      c.Mpesa.ShortCode,
		"MPESA_LNMO_CALLBACK_URL":    c.Mpesa.CallbackURL,
		"DATABASE_URL":               c.DB.URL,
	}
	for key, value := range required {
		if value == "" {
			return fmt.Errorf("%w: %s", ErrMissingKey, key)
		}
	}

	switch c.Mpesa.Environment {
	case EnvironmentSandbox, EnvironmentProduction:
	default:
		return fmt.Errorf("invalid MPESA_LNMO_ENVIRONMENT: %q", c.Mpesa.Environment)
	}

	if c.Mpesa.HTTPTimeout <= 0 {
		return fmt.Errorf("invalid MPESA_HTTP_TIMEOUT: %s", c.Mpesa.HTTPTimeout)
	}
	if c.DB.QueryTimeout <= 0 {
		return fmt.Errorf("invalid DB_QUERY_TIMEOUT: %s", c.DB.QueryTimeout)
	}

	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	return nil
}
