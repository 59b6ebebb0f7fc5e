package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/skilltree/internal/observability"
	"github.com/xkilldash9x/skilltree/internal/server"
	"github.com/xkilldash9x/skilltree/internal/service"
)

func newServeCmd() *cobra.Command {
	var useInMemory bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the skill tree API backed by PostgreSQL or memory",
		Long: `Serve exposes GET /api/skill-tree, GET and POST /api/skill-progress and
GET /api/item/{id}. Submitted progress is re-validated against the tree before
it is stored. Without database.url (or with --memory) progress lives in memory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			srv, cleanup, err := service.InitializeServer(ctx, cfg, observability.GetLogger(), useInMemory)
			if err != nil {
				return err
			}
			defer cleanup()

			scheme := "http"
			if cfg.Server().TLS.Enabled() {
				scheme = "https"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving skill tree API on %s (%s)\n", cfg.Server().Addr, scheme)
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().BoolVar(&useInMemory, "memory", false, "keep progress in memory even when a database is configured")
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().Bool("tls-self-signed", false, "serve HTTPS with a throwaway development certificate")
	cmd.Flags().String("tls-ca-out", "", "write the development CA certificate to this path")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <player-id>",
		Short: "Issues a bearer token for a player, signed with auth.secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if !cfg.Auth().Enabled {
				return errors.New("auth is disabled (set auth.enabled and SKILLTREE_AUTH_SECRET)")
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive, got %s", ttl)
			}
			token, err := server.NewAuthenticator(cfg.Auth()).Sign(args[0], ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
