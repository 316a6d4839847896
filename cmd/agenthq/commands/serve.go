package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/CalvinMagezi/agent-hq-sub000/ai/openrouter"
	"github.com/CalvinMagezi/agent-hq-sub000/bridge"
	"github.com/CalvinMagezi/agent-hq-sub000/bus"
	"github.com/CalvinMagezi/agent-hq-sub000/config"
	"github.com/CalvinMagezi/agent-hq-sub000/errors"
	"github.com/CalvinMagezi/agent-hq-sub000/logger"
	"github.com/CalvinMagezi/agent-hq-sub000/relay"
	"github.com/CalvinMagezi/agent-hq-sub000/relay/embedtrigger"
	"github.com/CalvinMagezi/agent-hq-sub000/vault"
)

// ServeCmd starts the relay gateway daemon
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Start the relay gateway",
	Long: `Start the AgentHQ relay gateway: WebSocket and REST surfaces, the
vault change bus, the upstream harness bridge, and the chat router.

The process runs until SIGINT or SIGTERM and exits 0 on a clean
shutdown. Fatal startup problems (bad config, missing vault, port in
use) exit 1.`,
	RunE: runServe,
}

var serveConfigPath string

func init() {
	ServeCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to a specific hq.toml (overrides search paths)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	v, err := vault.New(cfg.Vault.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open vault")
	}

	changeBus := bus.New()
	defer changeBus.Close()

	watcher, err := bus.NewWatcher(cfg.Vault.Path, changeBus)
	if err != nil {
		return errors.Wrap(err, "failed to start vault watcher")
	}

	llm := openrouter.NewClient(cfg.Chat.APIKey)
	br := bridge.New(cfg.Bridge.Host, cfg.Bridge.Port, nil)

	gateway := relay.New(cfg, v, changeBus, br, llm)

	trigger := embedtrigger.New(v, changeBus, llm, cfg.Embeddings.Model)
	defer trigger.Stop()

	if err := gateway.Start(); err != nil {
		return errors.Wrap(err, "failed to start gateway")
	}
	watcher.Start()
	br.Start()

	printStartupBanner(cfg)

	// config hot-reload: log level and allowed origins pick up changes;
	// anything deeper needs a restart
	if cw := startConfigWatcher(cfg); cw != nil {
		defer cw.Stop()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	pterm.Info.Printf("Received %s, shutting down\n", sig)
	br.Stop()
	watcher.Stop()
	gateway.Stop()
	logger.Infow("Shutdown complete")
	return nil
}

func loadConfig() (*config.Config, error) {
	if serveConfigPath != "" {
		return config.LoadFromFile(serveConfigPath)
	}
	return config.Load()
}

func startConfigWatcher(cfg *config.Config) *config.ConfigWatcher {
	path := configFileInUse()
	if path == "" {
		return nil
	}

	cw, err := config.NewConfigWatcher(path)
	if err != nil {
		logger.Warnw("Config watcher unavailable", "error", err)
		return nil
	}
	cw.OnReload(func(next *config.Config) error {
		if next.Log.Verbose && !cfg.Log.Verbose {
			return logger.SetDebug(next.Log.JSON)
		}
		return nil
	})
	cw.Start()
	return cw
}

func configFileInUse() string {
	if serveConfigPath != "" {
		return serveConfigPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	candidate := home + "/.agenthq/hq.toml"
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}
