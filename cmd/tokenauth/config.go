package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bionicotaku/lingo-utils-tokenauth"
)

const envPrefix = "TOKENAUTH"

type config struct {
	Issuer         string              `mapstructure:"issuer"`
	KeyID          string              `mapstructure:"key-id"`
	Algorithm      string              `mapstructure:"algorithm"`
	Secret         string              `mapstructure:"secret"`
	ServiceAccount string              `mapstructure:"service-account"`
	ValidFrom      time.Duration       `mapstructure:"valid-from"`
	ValidTo        time.Duration       `mapstructure:"valid-to"`
	ClockSkew      time.Duration       `mapstructure:"clock-skew"`
	RequiredClaims []string            `mapstructure:"required-claims"`
	Verifier       string              `mapstructure:"verifier"`
	JWKSURL        string              `mapstructure:"jwks-url"`
	Audience       string              `mapstructure:"audience"`
	HTTPTimeout    time.Duration       `mapstructure:"http-timeout"`
	RedisAddr      string              `mapstructure:"redis-addr"`
	RolePrefix     string              `mapstructure:"role-prefix"`
	Roles          map[string][]string `mapstructure:"roles"`
	LogLevel       string              `mapstructure:"log-level"`
}

func registerConfigFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Optional YAML config file")
	flags.String("env", defaultEnvPath(), "Optional path to .env file")
	flags.String("issuer", "", "Issuer written to and expected in tokens (env TOKENAUTH_ISSUER)")
	flags.String("key-id", "", "kid header value")
	flags.String("algorithm", "HS256", "Signature algorithm")
	flags.String("secret", "", "HMAC shared secret (env TOKENAUTH_SECRET)")
	flags.String("service-account", "", "Sign through IAM with this service account instead of a local secret")
	flags.Duration("valid-from", 0, "Offset from issuance for nbf")
	flags.Duration("valid-to", time.Hour, "Offset from issuance for exp")
	flags.Duration("clock-skew", tokenauth.DefaultClockSkew, "Accepted clock skew (0 for none)")
	flags.StringSlice("required-claims", nil, "Claims every token must carry")
	flags.String("verifier", "hmac", "Verifier: hmac, jwks or google")
	flags.String("jwks-url", "", "JWKS URL for the jwks verifier")
	flags.String("audience", "", "Audience for the google verifier")
	flags.Duration("http-timeout", 5*time.Second, "Timeout for remote key and signing calls")
	flags.String("redis-addr", "", "Load roles from Redis at this address")
	flags.String("role-prefix", "", "Redis key prefix for role sets")
	flags.String("log-level", "info", "Log level")
}

func loadConfig(flags *pflag.FlagSet) (config, error) {
	envPath, _ := flags.GetString("env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config{}, fmt.Errorf("load %s: %w", envPath, err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return config{}, err
	}
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return config{}, fmt.Errorf("create config decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func defaultEnvPath() string {
	if path := os.Getenv("TOKENAUTH_ENV_FILE"); path != "" {
		return path
	}
	return ".env"
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}
