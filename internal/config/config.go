package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr    string `mapstructure:"addr"`
	BaseURL string `mapstructure:"base_url"` // Used to build absolute callback URLs. Empty = derive from request.
	Mode    string `mapstructure:"mode"`     // gin mode: debug, release, test
}

// DatabaseConfig holds the MySQL DSN and pool limits.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AuthConfig holds the session cookie settings.
type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
	CookieName   string        `mapstructure:"cookie_name"`
	SecureCookie bool          `mapstructure:"secure_cookie"`
}

// PesapalConfig describes the mobile-money gateway redirect.
type PesapalConfig struct {
	PostURL        string `mapstructure:"post_url"`
	Currency       string `mapstructure:"currency"`
	ConsumerKey    string `mapstructure:"consumer_key"`
	ConsumerSecret string `mapstructure:"consumer_secret"`
}

type UploadsConfig struct {
	Dir string `mapstructure:"dir"`
}

// AMQPConfig enables the event publisher when URL is set.
type AMQPConfig struct {
	URL   string `mapstructure:"url"`
	Queue string `mapstructure:"queue"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Pesapal  PesapalConfig  `mapstructure:"pesapal"`
	Uploads  UploadsConfig  `mapstructure:"uploads"`
	AMQP     AMQPConfig     `mapstructure:"amqp"`
	Log      LogConfig      `mapstructure:"log"`
}

// ErrMissingSecret is returned when no JWT signing secret is configured.
var ErrMissingSecret = errors.New("auth.jwt_secret must be set")

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.dsn", "root:@tcp(127.0.0.1:3306)/storefront?parseTime=true")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.session_ttl", 72*time.Hour)
	v.SetDefault("auth.cookie_name", "storefront_session")
	v.SetDefault("auth.secure_cookie", false)

	v.SetDefault("pesapal.post_url", "https://demo.pesapal.com/api/PostPesapalDirectOrderV4")
	v.SetDefault("pesapal.currency", "KES")
	v.SetDefault("pesapal.consumer_key", "")
	v.SetDefault("pesapal.consumer_secret", "")

	v.SetDefault("uploads.dir", "./uploads")

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.queue", "storefront.events")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads .env, an optional config.yaml and STOREFRONT_* environment variables,
// in increasing order of precedence.
func Load() (*Config, error) {
	// A missing .env is normal in production; the environment is used as-is.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the application cannot start without.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return ErrMissingSecret
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn must be set")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl must be positive, got %s", c.Auth.SessionTTL)
	}
	if c.Pesapal.PostURL == "" {
		return errors.New("pesapal.post_url must be set")
	}
	return nil
}
