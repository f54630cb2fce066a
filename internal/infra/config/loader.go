// Package config loads the runtime configuration from a YAML file and the
// environment (prefix TOOLGATE). The tool catalog itself is never persisted;
// only the default actor set and deployment policy live here.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"toolgate/internal/domain"
)

type rawConfig struct {
	Token                string   `mapstructure:"token"`
	AllowUnauthenticated bool     `mapstructure:"allowUnauthenticated"`
	Actors               []string `mapstructure:"actors"`
	EnableRentedActors   bool     `mapstructure:"enableRentedActors"`

	PlatformBaseURL string   `mapstructure:"platformBaseUrl"`
	ProxyServers    []string `mapstructure:"proxyServers"`

	Transport                  string `mapstructure:"transport"`
	HTTPListenAddress          string `mapstructure:"httpListenAddress"`
	ObservabilityListenAddress string `mapstructure:"observabilityListenAddress"`

	RemoteCallTimeoutSeconds int `mapstructure:"remoteCallTimeoutSeconds"`
	ProxyCallTimeoutSeconds  int `mapstructure:"proxyCallTimeoutSeconds"`
	MaxCharsPerItem          int `mapstructure:"maxCharsPerItem"`
	MaxMemoryMbytes          int `mapstructure:"maxMemoryMbytes"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TOOLGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	// Every key gets a default so AutomaticEnv can see it during Unmarshal.
	v.SetDefault("token", "")
	v.SetDefault("allowUnauthenticated", false)
	v.SetDefault("actors", []string{})
	v.SetDefault("enableRentedActors", false)
	v.SetDefault("platformBaseUrl", domain.DefaultPlatformBaseURL)
	v.SetDefault("proxyServers", []string{})
	v.SetDefault("transport", "stdio")
	v.SetDefault("httpListenAddress", domain.DefaultHTTPListenAddress)
	v.SetDefault("observabilityListenAddress", domain.DefaultObservabilityListenAddress)
	v.SetDefault("remoteCallTimeoutSeconds", int(domain.DefaultRemoteCallTimeout/time.Second))
	v.SetDefault("proxyCallTimeoutSeconds", int(domain.DefaultProxyCallTimeout/time.Second))
	v.SetDefault("maxCharsPerItem", domain.DefaultMaxCharsPerItem)
	v.SetDefault("maxMemoryMbytes", domain.DefaultMaxMemoryMbytes)
}

// Load reads the config file at path (optional; env and defaults apply when
// empty) and validates it.
func Load(path string) (domain.Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return domain.Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return domain.Config{}, fmt.Errorf("decode config: %w", err)
	}
	return validate(raw)
}

func validate(raw rawConfig) (domain.Config, error) {
	switch raw.Transport {
	case "stdio", "http":
	default:
		return domain.Config{}, fmt.Errorf("transport must be stdio or http, got %q", raw.Transport)
	}
	if raw.MaxCharsPerItem <= 0 {
		return domain.Config{}, fmt.Errorf("maxCharsPerItem must be positive, got %d", raw.MaxCharsPerItem)
	}
	if raw.MaxMemoryMbytes <= 0 {
		return domain.Config{}, fmt.Errorf("maxMemoryMbytes must be positive, got %d", raw.MaxMemoryMbytes)
	}

	actors := make([]string, 0, len(raw.Actors))
	for _, actor := range raw.Actors {
		actor = strings.TrimSpace(actor)
		if actor != "" {
			actors = append(actors, actor)
		}
	}
	proxies := make([]string, 0, len(raw.ProxyServers))
	for _, endpoint := range raw.ProxyServers {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint != "" {
			proxies = append(proxies, endpoint)
		}
	}

	return domain.Config{
		Token:                raw.Token,
		AllowUnauthenticated: raw.AllowUnauthenticated,
		Actors:               actors,
		EnableRentedActors:   raw.EnableRentedActors,

		PlatformBaseURL: strings.TrimRight(raw.PlatformBaseURL, "/"),
		ProxyServers:    proxies,

		Transport:                  raw.Transport,
		HTTPListenAddress:          raw.HTTPListenAddress,
		ObservabilityListenAddress: raw.ObservabilityListenAddress,

		RemoteCallTimeout: time.Duration(raw.RemoteCallTimeoutSeconds) * time.Second,
		ProxyCallTimeout:  time.Duration(raw.ProxyCallTimeoutSeconds) * time.Second,
		MaxCharsPerItem:   raw.MaxCharsPerItem,
		MaxMemoryMbytes:   raw.MaxMemoryMbytes,
	}, nil
}
