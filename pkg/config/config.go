// Package config loads the service configuration from the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
)

// Ledger backends
const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
	BackendSQLite    = "sqlite"
)

// Config is the typed service configuration. Field tags name the
// environment variable each field is read from.
type Config struct {
	StripeAPIKey        string `env:"STRIPE_API_KEY" validate:"required"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	CheckoutSuccessURL  string `env:"CHECKOUT_SUCCESS_URL" validate:"required,url"`
	CheckoutCancelURL   string `env:"CHECKOUT_CANCEL_URL" validate:"required,url"`

	DiscordToken   string `env:"DISCORD_TOKEN" validate:"required"`
	DiscordGuildID string `env:"DISCORD_GUILD_ID" validate:"required,numeric"`

	PriceRoleMap map[string]string  `env:"PRICE_ROLE_MAP" validate:"required,min=1,dive,keys,required,endkeys,required"`
	Plans        []bridge.PlanPrice `env:"PLAN_PRICE_MAP"`

	HTTPAddr          string `env:"HTTP_ADDR" validate:"required"`
	LogLevel          string `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	WebhookRateLimit  int    `env:"WEBHOOK_RATE_LIMIT"`
	TrustProxyHeaders bool   `env:"TRUST_PROXY_HEADERS"`

	LedgerBackend      string `env:"LEDGER_BACKEND" validate:"oneof=memory postgres redis firestore sqlite"`
	PostgresDSN        string `env:"POSTGRES_DSN" validate:"required_if=LedgerBackend postgres"`
	RedisAddr          string `env:"REDIS_ADDR" validate:"required_if=LedgerBackend redis"`
	RedisPassword      string `env:"REDIS_PASSWORD"`
	RedisDB            int    `env:"REDIS_DB" validate:"gte=0"`
	FirestoreProjectID string `env:"FIRESTORE_PROJECT_ID" validate:"required_if=LedgerBackend firestore"`
	SQLitePath         string `env:"SQLITE_PATH" validate:"required_if=LedgerBackend sqlite"`
}

// ledgerFields are the only fields the offline ledger commands need.
var ledgerFields = []string{
	"LedgerBackend", "PostgresDSN", "RedisAddr", "RedisDB", "FirestoreProjectID", "SQLitePath",
}

// Load reads the first existing env file (default ".env") into the process
// environment without overriding variables already set, then parses it.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
		break
	}
	return FromLookup(os.Getenv)
}

// FromLookup parses configuration from getenv and applies defaults.
// It does not validate; call Validate or ValidateLedger.
func FromLookup(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		StripeAPIKey:        get("STRIPE_API_KEY", ""),
		StripeWebhookSecret: get("STRIPE_WEBHOOK_SECRET", ""),
		CheckoutSuccessURL:  get("CHECKOUT_SUCCESS_URL", ""),
		CheckoutCancelURL:   get("CHECKOUT_CANCEL_URL", ""),
		DiscordToken:        get("DISCORD_TOKEN", ""),
		DiscordGuildID:      get("DISCORD_GUILD_ID", ""),
		HTTPAddr:            get("HTTP_ADDR", ":8080"),
		LogLevel:            strings.ToLower(get("LOG_LEVEL", "info")),
		LedgerBackend:       strings.ToLower(get("LEDGER_BACKEND", BackendMemory)),
		PostgresDSN:         get("POSTGRES_DSN", ""),
		RedisAddr:           get("REDIS_ADDR", ""),
		RedisPassword:       getenv("REDIS_PASSWORD"),
		FirestoreProjectID:  get("FIRESTORE_PROJECT_ID", ""),
		SQLitePath:          get("SQLITE_PATH", ""),
	}

	var err error
	if cfg.WebhookRateLimit, err = atoi("WEBHOOK_RATE_LIMIT", get("WEBHOOK_RATE_LIMIT", "100")); err != nil {
		return nil, err
	}
	if cfg.TrustProxyHeaders, err = parseBool("TRUST_PROXY_HEADERS", get("TRUST_PROXY_HEADERS", "false")); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = atoi("REDIS_DB", get("REDIS_DB", "0")); err != nil {
		return nil, err
	}

	if raw := get("PRICE_ROLE_MAP", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.PriceRoleMap); err != nil {
			return nil, fmt.Errorf("PRICE_ROLE_MAP must be a JSON object of price id to role id: %w", err)
		}
	}
	if raw := get("PLAN_PRICE_MAP", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Plans); err != nil {
			return nil, fmt.Errorf("PLAN_PRICE_MAP must be a JSON array of {\"name\",\"price_id\"}: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks everything the serve command needs, including that the
// mapping tables are consistent.
func (c *Config) Validate() error {
	if err := formatErrors(newValidator().Struct(c)); err != nil {
		return err
	}
	if _, err := c.Mapping(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ValidateLedger checks only the ledger backend settings.
func (c *Config) ValidateLedger() error {
	return formatErrors(newValidator().StructPartial(c, ledgerFields...))
}

// Mapping builds the entitlement mapping from PRICE_ROLE_MAP and PLAN_PRICE_MAP.
func (c *Config) Mapping() (*bridge.EntitlementMapping, error) {
	return bridge.NewEntitlementMapping(c.PriceRoleMap, c.Plans)
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("env"); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}

func formatErrors(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s failed %q (%s)", fe.Field(), fe.Tag(), fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func atoi(key, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func parseBool(key, raw string) (bool, error) {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}
