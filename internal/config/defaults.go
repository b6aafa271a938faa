package config

// DefaultQueueName is used when queue.name is unset.
const DefaultQueueName = "ticketbridge:events"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Telegram: TelegramConfig{
			ParseMode:         "MarkdownV2",
			SendRatePerSecond: 25,
			SendBurst:         5,
		},
		Helpdesk: HelpdeskConfig{
			BaseURL:        "http://localhost:3000",
			AccountID:      1,
			InboxID:        1,
			TimeoutSeconds: 15,
		},
		Queue: QueueConfig{
			URL:                "redis://localhost:6379/0",
			Name:               DefaultQueueName,
			PollTimeoutSeconds: 1,
		},
		Store: StoreConfig{
			URL:                  "~/.ticketbridge/correlations.db",
			TicketTTLHours:       24 * 30,
			AgentMessageTTLHours: 24 * 7,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Addr:     "127.0.0.1:9215",
			Endpoint: "/metrics",
		},
	}
}
