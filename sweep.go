package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one overdue sweep and send the summary notification",
		Long: `Scan active borrowings whose expected return date is before today
and send one summary notification. Nothing is sent when no borrowing is overdue.
Intended for cron when the built-in sweeper of "serve" is not used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			// close で通知キューを流し切る
			defer a.close(shutdownTimeout)

			n, err := a.sweeper.Run(ctx)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			fmt.Printf("Overdue borrowings: %d\n", n)
			return nil
		},
	}
}
