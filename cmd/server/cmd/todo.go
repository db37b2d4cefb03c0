package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/siteflow/server/internal/client"
	"github.com/siteflow/server/internal/domain/todos"
)

type todoOptions struct {
	serverURL string
	token     string
	tokenFile string
	origin    string
	format    string
}

func newTodoCmd() *cobra.Command {
	opts := &todoOptions{}

	cmd := &cobra.Command{
		Use:   "todo",
		Short: "Work with a running server's todo list",
		Long: `Sign in to a running server and manage the todo list through its RPC API.

The bearer token from "todo login" is saved to --token-file and reused by the
other subcommands. SITEFLOW_URL and SITEFLOW_TOKEN override the defaults.

Examples:
  server todo login --email ada@example.com
  server todo add buy milk
  server todo list
  server todo done 1
  server todo rm 1`,
	}

	defaultTokenFile, _ := client.DefaultTokenPath()
	cmd.PersistentFlags().StringVar(&opts.serverURL, "server", envOr("SITEFLOW_URL", "http://localhost:3000"), "server URL")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("SITEFLOW_TOKEN"), "bearer token (default: saved token)")
	cmd.PersistentFlags().StringVar(&opts.tokenFile, "token-file", defaultTokenFile, "where login saves the bearer token")
	cmd.PersistentFlags().StringVar(&opts.origin, "origin", "", "Origin header to send")

	cmd.AddCommand(
		newTodoLoginCmd(opts),
		newTodoSignupCmd(opts),
		newTodoLogoutCmd(opts),
		newTodoWhoamiCmd(opts),
		newTodoListCmd(opts),
		newTodoAddCmd(opts),
		newTodoSetCmd(opts, "done", "Mark a todo completed", true),
		newTodoSetCmd(opts, "undo", "Mark a todo not completed", false),
		newTodoRemoveCmd(opts),
	)
	return cmd
}

func (o *todoOptions) client() (*client.Client, error) {
	token := o.token
	if token == "" && o.tokenFile != "" {
		saved, err := client.LoadToken(o.tokenFile)
		if err != nil {
			return nil, err
		}
		token = saved
	}
	return client.New(o.serverURL, client.Options{Token: token, Origin: o.origin})
}

func (o *todoOptions) saveToken(token string) error {
	if o.tokenFile == "" {
		return nil
	}
	return client.SaveToken(o.tokenFile, token)
}

func newTodoLoginCmd(opts *todoOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if password == "" {
				if password, err = readLine(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			user, err := c.SignIn(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := opts.saveToken(c.Token()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newTodoSignupCmd(opts *todoOptions) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and save the bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if password == "" {
				if password, err = readLine(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			user, err := c.SignUp(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			if err := opts.saveToken(c.Token()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed up as %s\n", user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newTodoLogoutCmd(opts *todoOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and forget the saved token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			signOutErr := c.SignOut(cmd.Context())
			if err := opts.saveToken(""); err != nil {
				return err
			}
			if signOutErr != nil {
				return signOutErr
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func newTodoWhoamiCmd(opts *todoOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			info, err := c.RequireSession(cmd.Context())
			if err != nil {
				return loginHint(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>, session expires %s\n",
				info.User.Name, info.User.Email, info.Session.ExpiresAt.Format("Jan 2, 2006 3:04 PM"))
			return nil
		},
	}
}

func newTodoListCmd(opts *todoOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List todos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			list, err := c.GetAll(cmd.Context())
			if err != nil {
				return loginHint(err)
			}
			return printTodos(cmd.OutOrStdout(), list, opts.format)
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", "table", "output format (table, json)")
	return cmd
}

func newTodoAddCmd(opts *todoOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <text>...",
		Short: "Add a todo",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			todo, err := c.Create(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return loginHint(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added #%d %s\n", todo.ID, todo.Text)
			return nil
		},
	}
}

func newTodoSetCmd(opts *todoOptions, use, short string, completed bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTodoID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			res, err := c.Toggle(cmd.Context(), id, completed)
			if err != nil {
				return loginHint(err)
			}
			return reportRows(cmd.OutOrStdout(), id, res)
		},
	}
}

func newTodoRemoveCmd(opts *todoOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a todo",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTodoID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			res, err := c.Delete(cmd.Context(), id)
			if err != nil {
				return loginHint(err)
			}
			return reportRows(cmd.OutOrStdout(), id, res)
		},
	}
}

func printTodos(out io.Writer, list []todos.Todo, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	case "table", "":
	default:
		return fmt.Errorf("unknown format %q (use table or json)", format)
	}

	if len(list) == 0 {
		fmt.Fprintln(out, "No todos.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDONE\tTEXT")
	for _, todo := range list {
		done := " "
		if todo.Completed {
			done = "x"
		}
		fmt.Fprintf(tw, "%d\t[%s]\t%s\n", todo.ID, done, todo.Text)
	}
	return tw.Flush()
}

// reportRows tells the user when an id matched nothing; the server reports
// that as success with zero rows.
func reportRows(out io.Writer, id int64, res todos.MutationResult) error {
	if res.RowsAffected == 0 {
		fmt.Fprintf(out, "no todo #%d\n", id)
		return nil
	}
	fmt.Fprintf(out, "updated #%d\n", id)
	return nil
}

func parseTodoID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(raw, "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid todo id %q", raw)
	}
	return id, nil
}

func loginHint(err error) error {
	if errors.Is(err, client.ErrUnauthorized) || errors.Is(err, client.ErrLoginRequired) {
		return fmt.Errorf("%w: run `server todo login` first", err)
	}
	return err
}

// readLine reads one line, so passwords may contain spaces.
func readLine(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
