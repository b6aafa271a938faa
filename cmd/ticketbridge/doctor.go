package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ticketbridge/internal/config"
	"ticketbridge/internal/helpdesk"
	"ticketbridge/internal/queue"
	"ticketbridge/internal/store"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your ticketbridge installation",
		Long: `Verifies that ticketbridge's configuration, correlation store, event
queue and helpdesk connection are correctly set up. Reports pass/fail for
each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("ticketbridge doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'ticketbridge init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\nResults: %d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			// 3. Telegram token present
			if cfg.Telegram.Token == "" {
				printFail("Telegram token", "not configured")
				failed++
			} else {
				printPass("Telegram token", "configured")
				passed++
			}

			// 4. Correlation store reachable
			correlations, err := store.FromDSN(cfg.Store.URL, store.Options{}, logger)
			if err != nil {
				printFail("Correlation store", err.Error())
				failed++
			} else {
				if err := correlations.Ping(ctx); err != nil {
					printFail("Correlation store", err.Error())
					failed++
				} else {
					printPass("Correlation store", cfg.Store.URL)
					passed++
				}
				correlations.Close()
			}

			// 5. Event queue reachable
			eventQueue, err := queue.FromDSN(cfg.Queue.URL, cfg.Queue.Name, logger)
			if err != nil {
				printFail("Event queue", err.Error())
				failed++
			} else {
				if err := eventQueue.Ping(ctx); err != nil {
					printFail("Event queue", err.Error())
					failed++
				} else {
					depth, _ := eventQueue.Len(ctx)
					printPass("Event queue", fmt.Sprintf("%s (%s, depth %d)", cfg.Queue.URL, cfg.Queue.Name, depth))
					passed++
				}
				eventQueue.Close()
			}

			// 6. Helpdesk reachable
			if cfg.Helpdesk.BaseURL == "" || cfg.Helpdesk.APIToken == "" {
				printWarn("Helpdesk", "base URL or token not configured")
				warned++
			} else {
				desk, err := helpdesk.NewClient(helpdesk.Options{
					BaseURL:   cfg.Helpdesk.BaseURL,
					APIToken:  cfg.Helpdesk.APIToken,
					AccountID: cfg.Helpdesk.AccountID,
					InboxID:   cfg.Helpdesk.InboxID,
					Timeout:   time.Duration(cfg.Helpdesk.TimeoutSeconds) * time.Second,
					Logger:    logger,
				})
				if err != nil {
					printFail("Helpdesk", err.Error())
					failed++
				} else if err := desk.Ping(ctx); err != nil {
					printFail("Helpdesk", err.Error())
					failed++
				} else {
					printPass("Helpdesk", cfg.Helpdesk.BaseURL)
					passed++
				}
			}

			// 7. Metrics port available
			if cfg.Metrics.Enabled {
				if err := checkAddr(cfg.Metrics.Addr); err != nil {
					printWarn("Metrics addr", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Addr, err))
					warned++
				} else {
					printPass("Metrics addr", cfg.Metrics.Addr)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running ticketbridge.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nticketbridge should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! ticketbridge is ready to run.\n")
			}
			return nil
		},
	}
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
