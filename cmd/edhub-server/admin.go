package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edhub/edhub/internal/domain/notification"
	"github.com/edhub/edhub/internal/domain/staff"
	"github.com/edhub/edhub/internal/platform/auth"
	"github.com/edhub/edhub/internal/platform/websocket"
)

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if username == "" || email == "" || password == "" {
				return fmt.Errorf("--username, --email and --password are required")
			}

			ctx := cmd.Context()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := newLogger(cfg)
			// No sockets are attached; the hub only satisfies the publisher.
			notifSvc := notification.NewService(notification.NewRepoPG(pool), websocket.NewHub(logger), logger)
			svc := staff.NewService(staff.NewRepoPG(pool), notifSvc, jwtConfig(cfg), logger)

			u, err := svc.Register(ctx, staff.RegisterRequest{
				Username: username,
				Email:    email,
				Password: password,
				Role:     auth.RoleAdmin,
			}, true)
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s (%s)\n", u.Username, u.ID)
			return nil
		},
	}
	createCmd.Flags().String("username", "", "Login name")
	createCmd.Flags().String("email", "", "Email address")
	createCmd.Flags().String("password", "", "Initial password")

	cmd.AddCommand(createCmd)
	return cmd
}
