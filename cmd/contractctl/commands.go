package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/app"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/bootstrap"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/config"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/store"
	"github.com/sbalsara05/Burrow-Housing-sub000/pkg/rabbitmq"
	"github.com/spf13/cobra"
)

const commandTimeout = 5 * time.Minute

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the contract-service schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(ctx context.Context, _ config.Config, pool *pgxpool.Pool) error {
				applied, err := store.NewMigrator(pool).Up(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(ctx context.Context, _ config.Config, pool *pgxpool.Pool) error {
				migrations, err := store.NewMigrator(pool).Status(ctx)
				if err != nil {
					return err
				}
				printMigrationStatus(cmd.OutOrStdout(), migrations)
				return nil
			})
		},
	})

	return cmd
}

func repairLeasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair-leases",
		Short: "Re-run the lease hand-over for paid contracts where it did not finish",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				repaired, failed, err := svc.RepairPendingLeases(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "repaired=%d failed=%d\n", repaired, failed)
				if failed > 0 {
					return fmt.Errorf("%d contract(s) could not be repaired", failed)
				}
				return nil
			})
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <contract-id>",
		Short: "Converge one contract's payment state with the payment gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contractID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid contract id %q: %w", args[0], err)
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				if !svc.GatewayConfigured() {
					return fmt.Errorf("STRIPE_SECRET_KEY is not set; nothing to reconcile against")
				}
				contract, err := svc.ReconcileContractByID(ctx, contractID)
				if err != nil {
					return err
				}
				printPaymentState(cmd.OutOrStdout(), contract)
				return nil
			})
		},
	}
}

func withPool(parent context.Context, fn func(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL not set in environment or .env file")
	}
	pool, err := bootstrap.OpenPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func withService(parent context.Context, fn func(ctx context.Context, svc *app.Service) error) error {
	return withPool(parent, func(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) error {
		var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{}
		if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.EmailExchange); err == nil {
			defer producer.Close()
			publisher = producer
		}
		redisClient := bootstrap.OpenRedis(ctx, cfg.RedisURL)
		if redisClient != nil {
			defer redisClient.Close()
		}
		return fn(ctx, bootstrap.NewService(ctx, cfg, pool, redisClient, publisher))
	})
}

func printMigrationStatus(out io.Writer, migrations []store.Migration) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATUS\tAPPLIED AT")
	for _, m := range migrations {
		if m.AppliedAt == nil {
			fmt.Fprintf(w, "%s\tpending\t-\n", m.Version)
			continue
		}
		fmt.Fprintf(w, "%s\tapplied\t%s\n", m.Version, m.AppliedAt.Format(time.RFC3339))
	}
	w.Flush()
}

func printPaymentState(out io.Writer, contract *domain.Contract) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "contract\t%s\n", contract.ID)
	fmt.Fprintf(w, "status\t%s\n", contract.Status)
	for _, name := range []domain.PaymentLegName{domain.PaymentLegTenant, domain.PaymentLegLister} {
		leg := contract.Payment.Leg(name)
		intent := "-"
		if leg.IntentID != nil {
			intent = *leg.IntentID
		}
		fmt.Fprintf(w, "%s leg\t%s (gateway=%s intent=%s)\n", name, leg.Status, valueOrDash(leg.GatewayStatus), intent)
	}
	if contract.Payment.ExpiresAt != nil {
		fmt.Fprintf(w, "payment expires\t%s\n", contract.Payment.ExpiresAt.Format(time.RFC3339))
	}
	leased := "no"
	if contract.PropertyLeasedAt != nil {
		leased = contract.PropertyLeasedAt.Format(time.RFC3339)
	}
	fmt.Fprintf(w, "property leased\t%s\n", leased)
	w.Flush()
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
