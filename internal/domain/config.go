package domain

import "time"

// Defaults shared across the config loader and components.
const (
	DefaultPlatformBaseURL = "https://api.apify.com"

	// Per-item serialization budget for remote action output. Items above
	// the budget are cut and marked, never dropped silently.
	DefaultMaxCharsPerItem = 5000

	// Hard ceiling on actor run memory regardless of the entry's budget.
	DefaultMaxMemoryMbytes = 4096

	DefaultRemoteCallTimeout = 300 * time.Second
	DefaultProxyCallTimeout  = 120 * time.Second

	DefaultDefinitionCacheTTL      = time.Hour
	DefaultDefinitionCacheCapacity = 500
	DefaultUserCacheTTL            = 24 * time.Hour
	DefaultUserCacheCapacity       = 2000

	DefaultHTTPListenAddress          = "127.0.0.1:8080"
	DefaultObservabilityListenAddress = "127.0.0.1:9464"

	// Upper bound on tool names enumerated in not-found guidance.
	MaxNamesInNotFound = 50
)

// Config is the validated runtime configuration.
type Config struct {
	// Token authenticates platform calls when the client does not carry
	// its own in call metadata.
	Token string

	// AllowUnauthenticated permits calls with no resolvable token (the
	// deployment covers charges through an alternative payment mode).
	AllowUnauthenticated bool

	// Actors are loaded into the catalog at boot and re-applied when the
	// config file changes.
	Actors []string

	// EnableRentedActors lets sessions call rental actors they have not
	// explicitly been entitled to.
	EnableRentedActors bool

	PlatformBaseURL string

	// ProxyServers are streamable HTTP endpoints of other MCP servers
	// whose tools are re-exported through the catalog.
	ProxyServers []string

	Transport                  string // "stdio" or "http"
	HTTPListenAddress          string
	ObservabilityListenAddress string

	RemoteCallTimeout time.Duration
	ProxyCallTimeout  time.Duration
	MaxCharsPerItem   int
	MaxMemoryMbytes   int
}
