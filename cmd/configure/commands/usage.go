package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/finance-advisor/internal/config"
	"github.com/benvon/finance-advisor/internal/services/usage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewUsageCmd creates the usage command for inspecting and resetting daily chat quotas
func NewUsageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Inspect or reset a user's daily chat usage",
	}
	cmd.AddCommand(newUsageShowCmd())
	cmd.AddCommand(newUsageResetCmd())
	return cmd
}

func newUsageShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show today's message count for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			return withLimiter(cmd.Context(), func(ctx context.Context, l *usage.Limiter) error {
				status, err := l.CheckLimit(ctx, userID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "User: %s\n", userID)
				fmt.Fprintf(out, "  Used: %d of %d\n", status.Used, status.Limit)
				fmt.Fprintf(out, "  Remaining: %d\n", status.Remaining)
				fmt.Fprintf(out, "  Resets at: %s\n", status.ResetAt.Format(time.RFC3339))
				return nil
			})
		},
	}
}

func newUsageResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <user-id>",
		Short: "Clear today's message count for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			return withLimiter(cmd.Context(), func(ctx context.Context, l *usage.Limiter) error {
				if err := l.Reset(ctx, userID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Usage reset for user: %s\n", userID)
				return nil
			})
		},
	}
}

// withLimiter connects to Redis with the server's quota settings for the duration of fn
func withLimiter(ctx context.Context, fn func(ctx context.Context, l *usage.Limiter) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	client, err := usage.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	return fn(ctx, usage.NewLimiter(client, zap.NewNop(), usage.WithQuota(cfg.ChatDailyQuota)))
}
