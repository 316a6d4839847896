package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultDirPermissions is used when creating config directories
const DefaultDirPermissions = 0o755

// SetDefaults registers default values on a Viper instance
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultServerHost)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("vault.path", defaultVaultPath())

	v.SetDefault("auth.api_key", "")

	v.SetDefault("chat.api_key", "")
	v.SetDefault("chat.default_model", "anthropic/claude-3.5-haiku")

	v.SetDefault("bridge.host", "")
	v.SetDefault("bridge.port", 0)

	v.SetDefault("embeddings.model", "")

	v.SetDefault("owner.name", "")

	v.SetDefault("log.json", false)
	v.SetDefault("log.verbose", false)
}

// BindSensitiveEnvVars binds the environment variables the launcher and
// installer set for the daemon. These names are part of the deployment
// contract and do not follow the AGENTHQ_ prefix convention.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("auth.api_key", "AGENTHQ_API_KEY")
	v.BindEnv("vault.path", "VAULT_PATH")
	v.BindEnv("chat.api_key", "OPENROUTER_API_KEY")
	v.BindEnv("chat.default_model", "DEFAULT_MODEL")
	v.BindEnv("embeddings.model", "EMBEDDING_MODEL")
	v.BindEnv("bridge.host", "AGENT_WS_HOST")
	v.BindEnv("bridge.port", "AGENT_WS_PORT")
}

// defaultVaultPath returns ~/AgentHQ, the scaffolder's default location
func defaultVaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "AgentHQ"
	}
	return filepath.Join(homeDir, "AgentHQ")
}
