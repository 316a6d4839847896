package commands

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/CalvinMagezi/agent-hq-sub000/config"
	"github.com/CalvinMagezi/agent-hq-sub000/version"
)

// printStartupBanner prints the operator-facing startup summary
func printStartupBanner(cfg *config.Config) {
	info := version.Get()

	banner := pterm.DefaultBox.
		WithTitle("AgentHQ Relay Gateway").
		WithTitleTopCenter()

	authMode := "api-key"
	if cfg.OpenMode() {
		authMode = "open (no key configured)"
	}
	bridgeState := "disabled"
	if cfg.BridgeEnabled() {
		bridgeState = fmt.Sprintf("%s:%d", cfg.Bridge.Host, cfg.Bridge.Port)
	}
	chatState := "not configured"
	if cfg.Chat.APIKey != "" {
		chatState = cfg.Chat.DefaultModel
	}

	banner.Println(fmt.Sprintf(
		"Version:  %s (%s)\nListen:   ws://%s:%d\nVault:    %s\nAuth:     %s\nBridge:   %s\nChat:     %s",
		info.Version, info.Short(),
		cfg.Server.Host, cfg.Server.Port,
		cfg.Vault.Path,
		authMode,
		bridgeState,
		chatState,
	))

	pterm.Info.Println("Press Ctrl+C to stop")
}
