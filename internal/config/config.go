package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const minSecretLength = 32

// OAuthClient holds one provider's registered application credentials.
type OAuthClient struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

func (c OAuthClient) Enabled() bool { return c.ClientID != "" }

func (c OAuthClient) validate(name string) error {
	if !c.Enabled() {
		return nil
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("%s client secret is required", name)
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("%s redirect URL is required", name)
	}
	return nil
}

// Config is parsed from the environment exactly once at startup. A missing
// required field fails the process before it serves a single request.
type Config struct {
	Env             string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:","`

	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN" envDefault:"file:social_login.db"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTIssuer          string        `env:"JWT_ISSUER" envDefault:"social-login-service"`
	JWTAudience        string        `env:"JWT_AUDIENCE" envDefault:"social-login-service"`
	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET"`
	RefreshTokenPepper string        `env:"REFRESH_TOKEN_PEPPER"`
	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	LoginStateTTL    time.Duration `env:"LOGIN_STATE_TTL" envDefault:"10m"`
	LoginRedirectURL string        `env:"LOGIN_REDIRECT_URL" envDefault:"/"`
	CookieDomain     string        `env:"COOKIE_DOMAIN"`
	CookieSecure     bool          `env:"COOKIE_SECURE" envDefault:"true"`

	Kakao           OAuthClient   `envPrefix:"KAKAO_"`
	Naver           OAuthClient   `envPrefix:"NAVER_"`
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`

	AvatarMirrorEnabled bool   `env:"AVATAR_MIRROR_ENABLED" envDefault:"false"`
	AvatarMaxBytes      int64  `env:"AVATAR_MAX_BYTES" envDefault:"5242880"`
	S3Endpoint          string `env:"S3_ENDPOINT"`
	S3Region            string `env:"S3_REGION" envDefault:"us-east-1"`
	S3AccessKey         string `env:"S3_ACCESS_KEY"`
	S3SecretKey         string `env:"S3_SECRET_KEY"`
	S3Bucket            string `env:"S3_BUCKET"`
	S3PublicBaseURL     string `env:"S3_PUBLIC_BASE_URL"`
	S3ForcePathStyle    bool   `env:"S3_FORCE_PATH_STYLE" envDefault:"true"`

	OTELServiceName           string        `env:"OTEL_SERVICE_NAME" envDefault:"social-login-service"`
	OTELExporterOTLPEndpoint  string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTELExporterOTLPInsecure  bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELMetricsEnabled        bool          `env:"OTEL_METRICS_ENABLED" envDefault:"false"`
	OTELTracesEnabled         bool          `env:"OTEL_TRACES_ENABLED" envDefault:"false"`
	OTELMetricsExportInterval time.Duration `env:"OTEL_METRICS_EXPORT_INTERVAL" envDefault:"30s"`
	EnableOTelHTTP            bool          `env:"OTEL_HTTP_ENABLED" envDefault:"false"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		err = fmt.Errorf("parse env: %w", err)
		recordConfigValidationEvent(context.Background(), cfg.Env, "error", classifyConfigLoadError(err))
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		err = fmt.Errorf("validate config: %w", err)
		recordConfigValidationEvent(context.Background(), cfg.Env, "error", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(context.Background(), cfg.Env, "success", "none")
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.AccessTokenSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("ACCESS_TOKEN_SECRET must be at least %d bytes", minSecretLength))
	}
	if len(c.RefreshTokenSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("REFRESH_TOKEN_SECRET must be at least %d bytes", minSecretLength))
	}
	if c.AccessTokenSecret != "" && c.AccessTokenSecret == c.RefreshTokenSecret {
		errs = append(errs, errors.New("access and refresh secrets must differ"))
	}
	if c.RefreshTokenPepper == "" {
		errs = append(errs, errors.New("REFRESH_TOKEN_PEPPER is required"))
	}
	if c.DBDriver != "sqlite" && c.DBDriver != "postgres" {
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if err := c.Kakao.validate("kakao"); err != nil {
		errs = append(errs, err)
	}
	if err := c.Naver.validate("naver"); err != nil {
		errs = append(errs, err)
	}
	if !c.Kakao.Enabled() && !c.Naver.Enabled() {
		errs = append(errs, errors.New("at least one social provider must be configured"))
	}
	if c.AvatarMirrorEnabled {
		if c.S3Bucket == "" || c.S3AccessKey == "" || c.S3SecretKey == "" {
			errs = append(errs, errors.New("avatar mirroring requires S3_BUCKET, S3_ACCESS_KEY and S3_SECRET_KEY"))
		}
		if c.S3PublicBaseURL == "" {
			errs = append(errs, errors.New("avatar mirroring requires S3_PUBLIC_BASE_URL"))
		}
	}
	return errors.Join(errs...)
}
