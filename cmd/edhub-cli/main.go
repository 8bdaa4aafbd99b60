package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edhub/edhub/pkg/edclient"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "edhub-cli",
		Short:        "Terminal client for the emergency department server",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("server", "http://localhost:8000", "Server base URL")
	root.PersistentFlags().String("token", "", "Existing session token")
	root.PersistentFlags().String("login", "", "Username or email")
	root.PersistentFlags().String("password", "", "Password")
	root.PersistentFlags().Duration("timeout", edclient.DefaultTimeout, "Request timeout")
	root.PersistentFlags().Bool("verbose", false, "Log client internals to stderr")

	root.AddCommand(watchCmd())
	root.AddCommand(triageCmd())
	root.AddCommand(readCmd())
	return root
}

// clientOptions are read from flags, falling back to EDHUB_* variables.
type clientOptions struct {
	Server   string
	Token    string
	Login    string
	Password string
	Timeout  time.Duration
	Verbose  bool
}

func loadClientOptions(cmd *cobra.Command) (clientOptions, error) {
	v := viper.New()
	v.SetEnvPrefix("EDHUB")
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return clientOptions{}, fmt.Errorf("bind flags: %w", err)
	}
	opts := clientOptions{
		Server:   v.GetString("server"),
		Token:    v.GetString("token"),
		Login:    v.GetString("login"),
		Password: v.GetString("password"),
		Timeout:  v.GetDuration("timeout"),
		Verbose:  v.GetBool("verbose"),
	}
	if opts.Token == "" && (opts.Login == "" || opts.Password == "") {
		return opts, fmt.Errorf("either --token or --login and --password are required")
	}
	return opts, nil
}

func (o clientOptions) logger() zerolog.Logger {
	if !o.Verbose {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func (o clientOptions) config() edclient.Config {
	logger := o.logger()
	return edclient.Config{BaseURL: o.Server, Timeout: o.Timeout, Logger: &logger}
}

// session logs in, or resumes the given token.
func (o clientOptions) session(ctx context.Context) (*edclient.Session, error) {
	if o.Token != "" {
		return edclient.NewSession(ctx, o.config(), o.Token)
	}
	return edclient.Login(ctx, o.config(), o.Login, o.Password)
}

// apiClient returns an authenticated REST client without opening a socket.
func (o clientOptions) apiClient(ctx context.Context) (*edclient.APIClient, error) {
	api, err := edclient.NewAPIClient(o.Server, &http.Client{Timeout: o.Timeout})
	if err != nil {
		return nil, err
	}
	if o.Token != "" {
		api.SetToken(o.Token)
		return api, nil
	}
	if _, err := api.Login(ctx, o.Login, o.Password); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return api, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream notifications as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadClientOptions(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			sess, err := opts.session(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.Notifications.Err(); err != nil {
				return fmt.Errorf("load notifications: %w", err)
			}
			watchInbox(ctx, cmd.OutOrStdout(), sess.Notifications)
			return nil
		},
	}
}

// watchInbox renders the inbox now and after every change until ctx ends.
func watchInbox(ctx context.Context, w io.Writer, store *edclient.NotificationStore) {
	var mu sync.Mutex
	render := func(snap edclient.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		renderInbox(w, snap, time.Now())
		fmt.Fprintln(w)
	}
	store.OnChange(render)
	render(store.Snapshot())
	<-ctx.Done()
}

func triageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Show the emergency triage board, most severe first",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadClientOptions(cmd)
			if err != nil {
				return err
			}
			query, _ := cmd.Flags().GetString("q")
			follow, _ := cmd.Flags().GetBool("follow")
			out := cmd.OutOrStdout()

			ctx, stop := signalContext(cmd)
			defer stop()

			if !follow {
				api, err := opts.apiClient(ctx)
				if err != nil {
					return err
				}
				list := edclient.NewTriageList(api, opts.logger())
				list.Fetch(ctx)
				if err := list.Err(); err != nil {
					return err
				}
				return renderTriage(out, list.View(query))
			}

			sess, err := opts.session(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			var mu sync.Mutex
			redraw := func() {
				mu.Lock()
				defer mu.Unlock()
				if err := renderTriage(out, sess.Triage.View(query)); err != nil {
					return
				}
				fmt.Fprintln(out)
			}
			// Registered after the session's own handler, which refetches.
			sess.Socket.On(edclient.EventEmergencyChanged, func(edclient.Event) { redraw() })

			sess.Triage.Fetch(ctx)
			if err := sess.Triage.Err(); err != nil {
				return err
			}
			redraw()
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().String("q", "", "Only show patients whose name contains this text")
	cmd.Flags().Bool("follow", false, "Keep the board open and redraw on changes")
	return cmd
}

func readCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read [notification-id...]",
		Short: "Mark notifications as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			if !all && len(args) == 0 {
				return fmt.Errorf("pass notification ids or --all")
			}
			opts, err := loadClientOptions(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			api, err := opts.apiClient(ctx)
			if err != nil {
				return err
			}
			store := edclient.NewNotificationStore(api, opts.logger())
			store.Fetch(ctx)
			if err := store.Err(); err != nil {
				return err
			}

			if all {
				if err := store.MarkAllAsRead(ctx); err != nil {
					return err
				}
			} else {
				var failed []string
				for _, id := range args {
					if err := store.MarkOneAsRead(ctx, id); err != nil {
						failed = append(failed, id)
					}
				}
				if len(failed) > 0 {
					return fmt.Errorf("could not mark %s as read", strings.Join(failed, ", "))
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d unread\n", store.Snapshot().UnreadCount)
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "Mark every notification as read")
	return cmd
}
