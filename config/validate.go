package config

import (
	"os"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

// Validate checks a loaded configuration for fatal boot problems.
// Non-fatal issues (missing chat credential, no bridge endpoint) are left
// to the components that degrade gracefully without them.
func Validate(cfg *Config) error {
	if cfg.Vault.Path == "" {
		return errors.New("vault.path is empty; set VAULT_PATH or vault.path in hq.toml")
	}

	info, err := os.Stat(cfg.Vault.Path)
	if err != nil {
		return errors.Wrapf(err, "vault root %s is not accessible", cfg.Vault.Path)
	}
	if !info.IsDir() {
		return errors.Newf("vault root %s is not a directory", cfg.Vault.Path)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.Newf("server.port %d is out of range", cfg.Server.Port)
	}

	if cfg.Bridge.Port < 0 || cfg.Bridge.Port > 65535 {
		return errors.Newf("bridge.port %d is out of range", cfg.Bridge.Port)
	}

	return nil
}
