// Package config loads the gateway's runtime configuration from a YAML file
// overridden by environment variables, using a spf13/viper-backed loader.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RouteClass groups requests by shape for the tenant rate limiter: distinct
// request shapes get distinct buckets.
type RouteClass string

const (
	RouteClassConnect   RouteClass = "connect"
	RouteClassReconnect RouteClass = "reconnect"
	RouteClassExecute   RouteClass = "execute"
	RouteClassOther     RouteClass = "other"
)

// RouteClassLimit is the per-(tenant, RouteClass) token allowance and the
// window it resets over.
type RouteClassLimit struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// Config is the gateway's full runtime configuration. Every field except
// RateLimits can be set from the environment, bound below; RateLimits is
// always filled from defaultRateLimits and is not read from file or env.
type Config struct {
	ListenAddr       string   `mapstructure:"listen_addr"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	PolicyServiceURL string   `mapstructure:"policy_service_url"`
	ChatBackendURL   string   `mapstructure:"chat_backend_url"`

	// PublicBaseURL is the externally reachable origin of this gateway,
	// used as the resource identifier in the published RFC 9728 document.
	// AuthorizationServers lists the external identity provider's issuer
	// URLs. Both optional; the well-known endpoint is only mounted when
	// PublicBaseURL is set.
	PublicBaseURL        string   `mapstructure:"public_base_url"`
	AuthorizationServers []string `mapstructure:"authorization_servers"`

	BodyLimitBytes int64 `mapstructure:"body_limit_bytes"`

	SessionHandshakeTimeout time.Duration `mapstructure:"-"`
	DefaultOperationTimeout time.Duration `mapstructure:"-"`
	StreamTimeout           time.Duration `mapstructure:"-"`

	RateLimitEnabled bool                          `mapstructure:"rate_limit_enabled"`
	RateLimits       map[RouteClass]RouteClassLimit `mapstructure:"-"`

	ChatMaxSteps int `mapstructure:"chat_max_steps"`

	Debug bool `mapstructure:"debug"`
}

// defaultRateLimits are the gateway's out-of-the-box per-route-class
// allowances, documented and justified in DESIGN.md.
func defaultRateLimits() map[RouteClass]RouteClassLimit {
	const window = time.Minute
	return map[RouteClass]RouteClassLimit{
		RouteClassConnect:   {Limit: 30, Window: window},
		RouteClassReconnect: {Limit: 30, Window: window},
		RouteClassExecute:   {Limit: 180, Window: window},
		RouteClassOther:     {Limit: 600, Window: window},
	}
}

// Load reads configuration from an optional YAML file at path (ignored if
// empty or missing) and from WEB_* environment variables, which always take
// precedence. Required settings absent from both sources produce an error
// naming the missing field.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("web")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("body_limit_bytes", int64(1<<20))
	v.SetDefault("chat_max_steps", 24)
	v.SetDefault("rate_limit_enabled", true)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	// viper's AutomaticEnv only binds env vars that are already known to it
	// via a default or an explicit BindEnv call; bind the supported
	// variables explicitly so they are picked up even when the YAML file is
	// absent entirely.
	for _, key := range []string{
		"listen_addr", "allowed_origins", "policy_service_url", "chat_backend_url",
		"public_base_url", "authorization_servers",
		"body_limit_bytes", "session_handshake_timeout", "default_operation_timeout",
		"stream_timeout", "rate_limit_enabled", "chat_max_steps", "debug",
	} {
		_ = v.BindEnv(key)
	}
	_ = v.BindEnv("policy_service_url", "CONVEX_HTTP_URL")
	_ = v.BindEnv("allowed_origins", "WEB_ALLOWED_ORIGINS")
	_ = v.BindEnv("session_handshake_timeout", "WEB_CONNECT_TIMEOUT_MS")
	_ = v.BindEnv("default_operation_timeout", "WEB_CALL_TIMEOUT_MS")
	_ = v.BindEnv("stream_timeout", "WEB_STREAM_TIMEOUT_MS")
	_ = v.BindEnv("rate_limit_enabled", "WEB_RATE_LIMIT_ENABLED")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	// WEB_*_TIMEOUT_MS env vars are plain milliseconds integers, while a
	// YAML file may spell them as Go duration strings; accept both.
	cfg.SessionHandshakeTimeout = timeoutValue(v, "session_handshake_timeout", 10*time.Second)
	cfg.DefaultOperationTimeout = timeoutValue(v, "default_operation_timeout", 30*time.Second)
	cfg.StreamTimeout = timeoutValue(v, "stream_timeout", 120*time.Second)

	if raw := v.GetString("allowed_origins"); raw != "" && len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = strings.Split(raw, ",")
	}
	origins := cfg.AllowedOrigins[:0]
	for _, origin := range cfg.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.AllowedOrigins = origins

	cfg.RateLimits = defaultRateLimits()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// timeoutValue reads key as either a duration string ("10s") or a bare
// milliseconds integer ("10000"), falling back to def when unset or
// unparseable.
func timeoutValue(v *viper.Viper, key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

func (c *Config) validate() error {
	if c.PolicyServiceURL == "" {
		return fmt.Errorf("CONVEX_HTTP_URL (policy service URL) is required")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("WEB_ALLOWED_ORIGINS is required")
	}
	return nil
}
