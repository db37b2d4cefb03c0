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

func newUserCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	var name, email, password string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user with an email and password",
		Long: `Create a user directly in the database, bypassing the sign-up endpoint and
its rate limit. The password is read from standard input when --password is
not given.

Examples:
  server user create --name Ada --email ada@example.com
  echo "$PASSWORD" | server user create --name Ada --email ada@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = readLine(cmd.InOrStdin()); err != nil {
					return err
				}
			}

			return withStore(cmd.Context(), opts, func(ctx context.Context, cfg config.Config, store storage.Store) error {
				svc := users.NewService(store.Users(), users.Options{
					SessionTTL: cfg.Auth.SessionTTL,
					UpdateAge:  cfg.Auth.SessionUpdateAge,
				}, zerolog.Nop())
				user, err := svc.CreateUser(ctx, users.SignUpParams{Name: name, Email: email, Password: password})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created user %s <%s>\n", user.ID, user.Email)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&email, "email", "", "email address")
	create.Flags().StringVar(&password, "password", "", "password (read from stdin when empty)")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("email")

	cmd.AddCommand(create)
	return cmd
}
