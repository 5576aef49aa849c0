// Package config reads the service credentials and optional journal
// backends from the environment, after loading a .env file when present.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/matst80/dataview-sample/pkg/client"
	"github.com/matst80/dataview-sample/pkg/messaging"
)

type Config struct {
	Resource     string
	Tenant       string
	ApiVersion   string
	ClientID     string
	ClientSecret string
	Namespace    string

	RedisUrl      string
	RedisPassword string
	RabbitUrl     string
	RabbitVHost   string

	// Local runs against an in-process store instead of Resource.
	Local bool
}

var ErrMissingSetting = errors.New("missing setting")

// Load reads paths (".env" when none are given) and then the environment.
// Missing files are ignored and variables already set win over file values.
func Load(paths ...string) (*Config, error) {
	_ = godotenv.Load(paths...)

	cfg := &Config{
		Resource:      strings.TrimSpace(os.Getenv("OCS_RESOURCE")),
		Tenant:        strings.TrimSpace(os.Getenv("OCS_TENANT")),
		ApiVersion:    firstNonEmpty(strings.TrimSpace(os.Getenv("OCS_API_VERSION")), "v1"),
		ClientID:      strings.TrimSpace(os.Getenv("OCS_CLIENT_ID")),
		ClientSecret:  os.Getenv("OCS_CLIENT_SECRET"),
		Namespace:     strings.TrimSpace(os.Getenv("OCS_NAMESPACE")),
		RedisUrl:      strings.TrimSpace(os.Getenv("REDIS_URL")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RabbitUrl:     strings.TrimSpace(os.Getenv("RABBIT_URL")),
		RabbitVHost:   strings.TrimSpace(os.Getenv("RABBIT_HOST")),
		Local:         parseBool(os.Getenv("DATAVIEW_LOCAL")),
	}
	if cfg.Local && cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	missing := make([]string, 0)
	check := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}
	check("OCS_NAMESPACE", c.Namespace)
	if !c.Local {
		check("OCS_RESOURCE", c.Resource)
		check("OCS_TENANT", c.Tenant)
		check("OCS_CLIENT_ID", c.ClientID)
		check("OCS_CLIENT_SECRET", c.ClientSecret)
	}
	if len(missing) > 0 {
		return &MissingError{Names: missing}
	}
	return nil
}

type MissingError struct {
	Names []string
}

func (e *MissingError) Error() string {
	return "missing setting: " + strings.Join(e.Names, ", ")
}

func (e *MissingError) Is(target error) bool {
	return target == ErrMissingSetting
}

func (c *Config) Client() client.Config {
	return client.Config{
		Resource:     c.Resource,
		Tenant:       c.Tenant,
		ApiVersion:   c.ApiVersion,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
	}
}

func (c *Config) Rabbit() messaging.RabbitConfig {
	return messaging.RabbitConfig{Url: c.RabbitUrl, VHost: c.RabbitVHost}
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
