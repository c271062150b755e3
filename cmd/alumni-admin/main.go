// Command alumni-admin runs maintenance tasks against the alumni database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/config"
	"github.com/alumni-network/alumni-backend-system/internal/database"
	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/internal/payments"
	"github.com/alumni-network/alumni-backend-system/internal/sessions"
	"github.com/alumni-network/alumni-backend-system/internal/users"
	"github.com/alumni-network/alumni-backend-system/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
)

var Version = "dev"

// PasswordEnv supplies the create-admin password when --password is omitted.
const PasswordEnv = "ALUMNI_ADMIN_PASSWORD"

// app holds the services shared by every subcommand.
type app struct {
	client   *mongo.Client
	redis    *redis.Client
	users    *users.Service
	sessions *sessions.Service
	payments *payments.Service
}

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	a := &app{}
	rootCmd := &cobra.Command{
		Use:     "alumni-admin",
		Short:   "Maintenance commands for the alumni network backend",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(createAdminCmd(a))
	rootCmd.AddCommand(reconcileCmd(a))
	rootCmd.AddCommand(deactivateCmd(a))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	a.client, err = database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 3)
	if err != nil {
		return err
	}
	db := a.client.Database(cfg.MongoDB.Database)
	a.users = users.NewService(users.NewMongoUserRepository(db.Collection(database.UsersCollection)))

	// sessions live where the API server keeps them
	srepo := sessions.Repository(sessions.NewMongoRepository(db.Collection(database.SessionsCollection)))
	if cfg.Redis.Host != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		srepo = sessions.NewRedisRepository(a.redis, "session:")
	}
	a.sessions = sessions.NewService(srepo)

	a.payments = payments.NewService(payments.Deps{
		Payments:  payments.NewMongoPaymentRepository(db.Collection(database.PaymentsCollection)),
		Campaigns: payments.NewMongoCampaignRepository(db.Collection(database.CampaignsCollection)),
	}, payments.Settings{OrgName: cfg.App.Name, DefaultCurrency: cfg.App.DefaultCurrency})
	return nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.client != nil {
		_ = a.client.Disconnect(ctx)
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func createAdminCmd(a *app) *cobra.Command {
	var email, first, last, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account, or promote an existing account to admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(PasswordEnv)
			}
			ctx := cmd.Context()
			u, err := a.users.Create(ctx, users.RegisterInput{
				FirstName: first,
				LastName:  last,
				Email:     email,
				Password:  password,
			}, models.RoleAdmin)
			if errors.Is(err, models.ErrConflict) {
				existing, gerr := a.users.GetByEmail(ctx, email)
				if gerr != nil {
					return gerr
				}
				if u, err = a.users.SetRole(ctx, existing.ID, models.RoleAdmin); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "promoted %s (%s) to admin\n", u.Email, u.ID)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&first, "first", "", "First name")
	cmd.Flags().StringVar(&last, "last", "", "Last name")
	cmd.Flags().StringVar(&password, "password", "", "Password (default $"+PasswordEnv+")")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("first")
	_ = cmd.MarkFlagRequired("last")
	return cmd
}

func reconcileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile-campaigns",
		Short: "Recompute campaign totals and donor counts from completed payments",
		RunE: func(cmd *cobra.Command, args []string) error {
			drifts, err := a.payments.ReconcileCampaigns(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{"corrected": len(drifts), "campaigns": drifts})
		},
	}
}

func deactivateCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "deactivate-user",
		Short: "Deactivate an account and end its sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u, err := a.users.GetByEmail(ctx, email)
			if err != nil {
				return err
			}
			if _, err := a.users.SetActive(ctx, u.ID, false); err != nil {
				return err
			}
			n, err := a.sessions.RevokeUser(ctx, u.ID)
			if err != nil {
				return fmt.Errorf("account deactivated but sessions were not revoked: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated %s, revoked %d session(s)\n", u.Email, n)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
