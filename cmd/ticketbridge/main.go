package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"ticketbridge/internal/bot"
	"ticketbridge/internal/config"
	"ticketbridge/internal/domain"
	"ticketbridge/internal/helpdesk"
	"ticketbridge/internal/metrics"
	"ticketbridge/internal/queue"
	"ticketbridge/internal/relay"
	"ticketbridge/internal/store"
	"ticketbridge/internal/telegram"
	"ticketbridge/internal/webhook"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "ticketbridge",
		Short: "ticketbridge: Telegram to helpdesk ticket relay",
		Long:  "ticketbridge connects a Telegram bot to a helpdesk: users open tickets from chat, agent replies stream back through a webhook event queue.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.ticketbridge/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(versionCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			logger.Info("set telegram.token and helpdesk credentials, then run 'ticketbridge run'")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("ticketbridge v" + version)
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bridge (bot + event relay)",
		Long:  "Starts the Telegram bot and the webhook event consumer. Press Ctrl+C to stop.",
		RunE:  runBridge,
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = buildLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	correlations, err := store.FromDSN(cfg.Store.URL, store.Options{
		TicketTTL:       time.Duration(cfg.Store.TicketTTLHours) * time.Hour,
		AgentMessageTTL: time.Duration(cfg.Store.AgentMessageTTLHours) * time.Hour,
	}, logger)
	if err != nil {
		return fmt.Errorf("correlation store: %w", err)
	}
	defer correlations.Close()

	eventQueue, err := queue.FromDSN(cfg.Queue.URL, cfg.Queue.Name, logger)
	if err != nil {
		return fmt.Errorf("event queue: %w", err)
	}
	defer eventQueue.Close()

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	logger.Info("telegram bot connected", "username", api.Self.UserName, "id", api.Self.ID)

	sender := telegram.NewSender(api, cfg.Telegram.SendRatePerSecond, cfg.Telegram.SendBurst, logger)

	templates, err := relay.LoadTemplates(cfg.Telegram.TemplatesPath)
	if err != nil {
		return fmt.Errorf("templates: %w", err)
	}

	desk, err := helpdesk.NewClient(helpdesk.Options{
		BaseURL:   cfg.Helpdesk.BaseURL,
		APIToken:  cfg.Helpdesk.APIToken,
		AccountID: cfg.Helpdesk.AccountID,
		InboxID:   cfg.Helpdesk.InboxID,
		Timeout:   time.Duration(cfg.Helpdesk.TimeoutSeconds) * time.Second,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("helpdesk client: %w", err)
	}

	delivery := relay.NewDeliveryHandler(relay.DeliveryConfig{
		Store:     correlations,
		Sender:    sender,
		Templates: templates,
		ParseMode: cfg.Telegram.ParseMode,
		Logger:    logger,
	})

	consumer := webhook.NewConsumer(webhook.ConsumerConfig{
		Queue:       eventQueue,
		QueueName:   cfg.Queue.Name,
		Validator:   webhook.NewValidator(domain.SourceDashboard, logger),
		PollTimeout: time.Duration(cfg.Queue.PollTimeoutSeconds) * time.Second,
		Logger:      logger,
	})
	delivery.Register(consumer)

	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("event consumer: %w", err)
	}
	defer consumer.Stop()

	tgBot := bot.New(bot.Config{
		API:      api,
		Sender:   sender,
		Store:    correlations,
		Helpdesk: desk,
		Cleanup:  delivery.CleanupRecipient,
		Logger:   logger,
	})
	go func() {
		if err := tgBot.Start(ctx); err != nil {
			logger.Error("telegram bot error", "err", err)
		}
	}()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Endpoint, metrics.Collector.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Info("metrics listening", "addr", cfg.Metrics.Addr, "endpoint", cfg.Metrics.Endpoint)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "err", err)
			}
		}()
	}

	logger.Info("bridge started. Press Ctrl+C to stop.")
	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	consumer.Stop()
	logger.Info("shutdown complete")
	return nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check queue and store connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			correlations, err := store.FromDSN(cfg.Store.URL, store.Options{}, logger)
			if err != nil {
				logger.Error("store", "url", cfg.Store.URL, "err", err)
			} else {
				defer correlations.Close()
				if err := correlations.Ping(ctx); err != nil {
					logger.Error("store", "url", cfg.Store.URL, "healthy", false, "err", err)
				} else {
					logger.Info("store", "url", cfg.Store.URL, "healthy", true)
				}
			}

			eventQueue, err := queue.FromDSN(cfg.Queue.URL, cfg.Queue.Name, logger)
			if err != nil {
				logger.Error("queue", "url", cfg.Queue.URL, "err", err)
				return nil
			}
			defer eventQueue.Close()
			if err := eventQueue.Ping(ctx); err != nil {
				logger.Error("queue", "url", cfg.Queue.URL, "healthy", false, "err", err)
				return nil
			}
			depth, _ := eventQueue.Len(ctx)
			logger.Info("queue", "url", cfg.Queue.URL, "name", cfg.Queue.Name, "healthy", true, "depth", depth)
			return nil
		},
	}
}

func buildLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := os.Stderr
	if cfg.General.LogFile != "" {
		if f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			out = f
		} else {
			logger.Warn("cannot open log file, logging to stderr", "path", cfg.General.LogFile, "err", err)
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}
