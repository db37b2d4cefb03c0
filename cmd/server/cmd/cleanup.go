package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/siteflow/server/internal/config"
	"github.com/siteflow/server/internal/domain/users"
	"github.com/siteflow/server/internal/storage"
)

func newCleanupCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired records",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "sessions",
		Short: "Delete expired sessions and verifications",
		Long: `Delete expired sessions and verification records once.

With PostgreSQL the server runs this as a periodic background job; SQLite
deployments can schedule this command instead.

Examples:
  server cleanup sessions`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, cfg config.Config, store storage.Store) error {
				svc := users.NewService(store.Users(), users.Options{
					SessionTTL: cfg.Auth.SessionTTL,
					UpdateAge:  cfg.Auth.SessionUpdateAge,
				}, zerolog.Nop())
				sessions, verifications, err := svc.CleanupExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired session(s) and %d verification(s)\n", sessions, verifications)
				return nil
			})
		},
	})
	return cmd
}
