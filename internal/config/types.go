package config

// Config is the full process configuration.
//
// Values come from (lowest to highest precedence): built-in defaults, an
// optional JSON/YAML file, then environment variables (a .env file in the
// working directory is loaded first and never overrides the real environment).
//
// All durations are Go duration strings (e.g. "500ms", "5s", "1m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Alerts   AlertsConfig   `json:"alerts"`
	Devman   DevmanConfig   `json:"devman"`
	Poller   PollerConfig   `json:"poller"`
	Logging  LoggingConfig  `json:"logging"`
}

// TelegramConfig is the notification bot (env: TOKEN_NOTIFICATION_BOT, CHAT_ID).
type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID string `json:"chat_id"`
	// ThreadID targets a forum topic (0 = none).
	ThreadID int `json:"thread_id,omitempty"`
	// APIURL overrides the Bot API endpoint (e.g. a local bot API server).
	APIURL string `json:"api_url,omitempty"`
}

// AlertsConfig is the optional operator bot (env: TOKEN_LOGGER_BOT, LOGGER_CHAT_ID).
// When ChatID is empty it defaults to telegram.chat_id.
// Alerts are disabled when Token is empty.
type AlertsConfig struct {
	Token       string `json:"token,omitempty"`
	ChatID      string `json:"chat_id,omitempty"`
	ThreadID    int    `json:"thread_id,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

func (a AlertsConfig) Enabled() bool { return a.Token != "" }

// DevmanConfig is the review API (env: TOKEN_API_DEVMAN, DEVMAN_API_URL).
type DevmanConfig struct {
	Token string `json:"token"`
	URL   string `json:"url,omitempty"`
	// BaseURL is the origin lesson links are resolved against.
	BaseURL        string `json:"base_url,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty"`
}

// PollerConfig controls the connection failure backoff.
//
// Defaults: failure_threshold 5, backoff "60s".
type PollerConfig struct {
	FailureThreshold int    `json:"failure_threshold,omitempty"`
	Backoff          string `json:"backoff,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Devman: DevmanConfig{
			URL:            "https://dvmn.org/api/long_polling/",
			BaseURL:        "https://dvmn.org",
			RequestTimeout: "5s",
		},
		Poller: PollerConfig{
			FailureThreshold: 5,
			Backoff:          "60s",
		},
		Alerts: AlertsConfig{
			SendTimeout: "10s",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}
