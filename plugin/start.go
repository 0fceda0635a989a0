package plugin

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/tilepad-sdk/internal/config"
	"github.com/danmuck/tilepad-sdk/internal/logging"
)

// Start runs p as a plugin process using the command-line arguments the host
// launches plugins with. It returns once ctx ends or SIGINT/SIGTERM arrives.
func Start(ctx context.Context, p Plugin) error {
	return StartWithArgs(ctx, p, os.Args[1:])
}

// StartWithArgs is Start with explicit arguments.
func StartWithArgs(ctx context.Context, p Plugin, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	logging.ConfigureRuntime()
	logging.SetLevel(cfg.LogLevel)
	log := logging.Component("plugin").With().Str("plugin_id", cfg.PluginID).Logger()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := OptionsFromConfig(cfg)
	opts.Logger = &log
	s, err := New(opts)
	if err != nil {
		return err
	}
	unbind := Bind(s, p)
	defer unbind()

	if err := s.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}
	log.Info().Str("connect_url", cfg.ConnectURL).Msg("plugin.Start running")

	<-ctx.Done()
	log.Info().Msg("plugin.Start stopping")
	unbind()
	return s.Close()
}

// loadConfig reads --config (or the env-named file) and applies flag overrides.
func loadConfig(args []string) (config.PluginConfig, error) {
	fs := flag.NewFlagSet("plugin", flag.ContinueOnError)
	pluginID := fs.String("plugin-id", "", "plugin id assigned by the host")
	connectURL := fs.String("connect-url", "", "host websocket url")
	configPath := fs.String("config", "", "plugin TOML config (defaults to $"+config.EnvConfigPath+")")
	logLevel := fs.String("log-level", "", "trace|debug|info|warn|error|disabled")
	if err := fs.Parse(args); err != nil {
		return config.PluginConfig{}, err
	}

	var cfg config.PluginConfig
	var err error
	if path := strings.TrimSpace(*configPath); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return config.PluginConfig{}, err
	}
	if v := strings.TrimSpace(*pluginID); v != "" {
		cfg.PluginID = v
	}
	if v := strings.TrimSpace(*connectURL); v != "" {
		cfg.ConnectURL = v
	}
	if v := strings.TrimSpace(*logLevel); v != "" {
		cfg.LogLevel = v
	}
	if err := cfg.Validate(); err != nil {
		return config.PluginConfig{}, fmt.Errorf("plugin: %w", err)
	}
	return cfg, nil
}
