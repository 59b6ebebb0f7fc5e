// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/skilltree/internal/config"
	"github.com/xkilldash9x/skilltree/internal/observability"
	"github.com/xkilldash9x/skilltree/internal/service"
)

type contextKey string

const configKey contextKey = "config"

// flagBindings maps command line flags to the configuration keys they override.
var flagBindings = map[string]string{
	"tree":            "tree.path",
	"progress":        "progress.path",
	"api-url":         "api.base_url",
	"addr":            "server.addr",
	"tls-self-signed": "server.tls.self_signed",
	"tls-ca-out":      "server.tls.ca_out",
}

// dependencies are the collaborators commands build their work from.
type dependencies struct {
	factory service.ComponentFactory
}

// newRootCmd builds the command tree. Each call returns an independent tree
// with its own viper instance.
func newRootCmd(deps dependencies) *cobra.Command {
	var cfgFile string
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "skilltree",
		Short:         "Skilltree validates, lays out and plays the medical physics skill tree.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.SetDefaults(v)

			// 1. Configuration sources: file, env, flags.
			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			// 2. Build and validate the configuration object.
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "skilltree"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			// 3. Logger
			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting skilltree", zap.String("version", Version), zap.String("command", cmd.Name()))

			// 4. Hand the config to the subcommand.
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	cmd.PersistentFlags().String("tree", "", "skill tree document (overrides tree.path)")
	cmd.PersistentFlags().String("progress", "", "local progress file (overrides progress.path)")
	cmd.PersistentFlags().String("api-url", "", "skill tree API base URL (overrides api.base_url)")
	cmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newLayoutCmd())
	cmd.AddCommand(newStatusCmd(deps))
	cmd.AddCommand(newUnlockCmd(deps))
	cmd.AddCommand(newBonusesCmd(deps))
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newTokenCmd())
	return cmd
}

// Execute runs the CLI with a signal-aware context and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := newRootCmd(dependencies{factory: service.NewComponentFactory()})

	err := root.ExecuteContext(ctx)
	stop()
	observability.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// initializeConfig reads in the config file, ENV variables and flag overrides.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SKILLTREE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}

	for name, key := range flagBindings {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// getConfigFromContext returns the configuration stored by PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	if ctx == nil {
		return nil, errors.New("no context available")
	}
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not found in context")
	}
	return cfg, nil
}
