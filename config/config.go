// Package config loads gateway configuration from TOML files and
// environment variables via Viper. Configuration is read once at boot into
// an immutable Config passed to each component.
package config

// Config represents the core gateway configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Vault      VaultConfig      `mapstructure:"vault"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Bridge     BridgeConfig     `mapstructure:"bridge"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Owner      OwnerConfig      `mapstructure:"owner"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig configures the WebSocket/REST listener
type ServerConfig struct {
	Host           string   `mapstructure:"host"` // default 127.0.0.1
	Port           int      `mapstructure:"port"` // default 18900
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// VaultConfig locates the on-disk vault
type VaultConfig struct {
	Path string `mapstructure:"path"` // VAULT_PATH env; required
}

// AuthConfig configures client authentication.
// An empty APIKey enables open mode: any key is accepted and missing
// Bearer headers pass, matching local-only deployments.
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"` // AGENTHQ_API_KEY env
}

// ChatConfig configures the synchronous chat-completion fallback path
type ChatConfig struct {
	APIKey       string   `mapstructure:"api_key"`       // OPENROUTER_API_KEY env
	DefaultModel string   `mapstructure:"default_model"` // DEFAULT_MODEL env
	Temperature  *float64 `mapstructure:"temperature"`   // nil = provider default
	MaxTokens    *int     `mapstructure:"max_tokens"`    // nil = provider default
}

// BridgeConfig configures the upstream streaming chat backend connection
type BridgeConfig struct {
	Host string `mapstructure:"host"` // AGENT_WS_HOST env
	Port int    `mapstructure:"port"` // AGENT_WS_PORT env; 0 disables the bridge
}

// EmbeddingsConfig configures the note embedding trigger
type EmbeddingsConfig struct {
	Model string `mapstructure:"model"` // EMBEDDING_MODEL env; empty disables
}

// OwnerConfig carries optional owner identity for prompt enrichment
type OwnerConfig struct {
	Name string `mapstructure:"name"`
}

// LogConfig configures logging output
type LogConfig struct {
	JSON    bool `mapstructure:"json"`
	Verbose bool `mapstructure:"verbose"`
}

// Default listener constants
const (
	DefaultServerHost = "127.0.0.1"
	DefaultServerPort = 18900
)

// BridgeEnabled reports whether an upstream bridge endpoint is configured
func (c *Config) BridgeEnabled() bool {
	return c.Bridge.Host != "" && c.Bridge.Port > 0
}

// OpenMode reports whether authentication runs without a configured key
func (c *Config) OpenMode() bool {
	return c.Auth.APIKey == ""
}
