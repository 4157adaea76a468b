package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Port is the network port the WHOIS server will bind to.
	Port int `koanf:"port" validate:"required,gte=1,lt=65535"`

	// Version is the service version string announced at startup.
	Version string `koanf:"version" validate:"required"`

	// InfoURL is the public info/legal page named in responses.
	InfoURL string `koanf:"info_url" validate:"required"`

	// LimitsURL is the quota policy page named in the exceeded response.
	LimitsURL string `koanf:"limits_url" validate:"required"`

	// QuotaLimit is the maximum queries per client per calendar day.
	QuotaLimit int64 `koanf:"quota_limit" validate:"required,gte=1"`

	// QuotaBackend selects the counter store implementation.
	QuotaBackend string `koanf:"quota_backend" validate:"required,oneof=bolt redis memory"`

	// QuotaPath is the bolt database file (bolt backend only).
	QuotaPath string `koanf:"quota_path" validate:"required_if=QuotaBackend bolt"`

	// RedisAddr is the Redis address (redis backend only).
	RedisAddr string `koanf:"redis_addr" validate:"required_if=QuotaBackend redis"`

	// DirectoryURL is the LDAP server address, ldap:// or ldaps://.
	DirectoryURL string `koanf:"directory_url" validate:"required,ldap_url"`

	// DirectoryBindDN and DirectoryPassword authenticate the read-only
	// directory account.
	DirectoryBindDN   string `koanf:"directory_bind_dn" validate:"required"`
	DirectoryPassword string `koanf:"directory_password"`

	// ZoneBase and UserBase are the search subtrees for zones and contacts.
	ZoneBase string `koanf:"zone_base" validate:"required"`
	UserBase string `koanf:"user_base" validate:"required"`

	// RootDN is the root registry account; zones it created are attributed
	// to the registry itself.
	RootDN string `koanf:"root_dn" validate:"required"`

	// Registrars lists the local identifiers of top-tier registrars.
	Registrars []string `koanf:"registrars"`

	// ReadTimeoutSeconds bounds the client query-line read.
	ReadTimeoutSeconds int `koanf:"read_timeout_seconds" validate:"required,gte=1"`

	// DirectoryTimeoutSeconds bounds directory dialing and each search.
	DirectoryTimeoutSeconds int `koanf:"directory_timeout_seconds" validate:"required,gte=1"`

	// AcceptRate and AcceptBurst shape per-client connection admission.
	// AcceptRate 0 disables the guard.
	AcceptRate  float64 `koanf:"accept_rate" validate:"gte=0"`
	AcceptBurst int     `koanf:"accept_burst" validate:"gte=0"`
}

// DEFAULT_APP_CONFIG defines the default application configuration for the
// WHOIS service.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:                     "prod",
	LogLevel:                "info",
	Port:                    43,
	Version:                 "2.0.0",
	InfoURL:                 "www.opennic.glue",
	LimitsURL:               "www.opennic.glue/limits",
	QuotaLimit:              100,
	QuotaBackend:            "bolt",
	QuotaPath:               "/var/lib/whoisd/quota.db",
	RedisAddr:               "127.0.0.1:6379",
	DirectoryURL:            "ldaps://ldap.opennic.glue:636",
	DirectoryBindDN:         "cn=whois,dc=opennic,dc=glue",
	ZoneBase:                "o=zones,dc=opennic,dc=glue",
	UserBase:                "o=users,dc=opennic,dc=glue",
	RootDN:                  "cn=root,dc=opennic,dc=glue",
	Registrars:              nil,
	ReadTimeoutSeconds:      10,
	DirectoryTimeoutSeconds: 10,
	AcceptRate:              0,
	AcceptBurst:             5,
}

// validLDAPURL validates that the field value is an ldap:// or ldaps:// URL
// with a non-empty host part.
func validLDAPURL(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	var rest string
	switch {
	case strings.HasPrefix(addr, "ldaps://"):
		rest = strings.TrimPrefix(addr, "ldaps://")
	case strings.HasPrefix(addr, "ldap://"):
		rest = strings.TrimPrefix(addr, "ldap://")
	default:
		return false
	}
	return rest != ""
}

// envLoader is a function that loads environment variables with the prefix
// "WHOIS_". It lowercases keys, strips the prefix, and splits list values on
// spaces or commas. It can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "WHOIS_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "WHOIS_"))
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

// defaultLoader loads default configuration values into the provided Koanf
// instance using the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom "ldap_url" validation.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("ldap_url", validLDAPURL)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	err = registerValidation(validate)
	if err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
