package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	logx "reviewbot/pkg/logx"
)

// Environment variable names.
const (
	EnvNotificationToken = "TOKEN_NOTIFICATION_BOT"
	EnvChatID            = "CHAT_ID"
	EnvThreadID          = "THREAD_ID"
	EnvDevmanToken       = "TOKEN_API_DEVMAN"
	EnvDevmanURL         = "DEVMAN_API_URL"
	EnvLoggerToken       = "TOKEN_LOGGER_BOT"
	EnvLoggerChatID      = "LOGGER_CHAT_ID"
	EnvLogLevel          = "LOG_LEVEL"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("dotenv %s: %w", p, err)
		}
	}
	return nil
}

// Load builds the configuration from defaults, the optional file at path
// (empty = none) and the environment looked up through getenv (nil = os.Getenv).
// The result is validated.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := decodeInto(cfg, path, b); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	if cfg.Alerts.ChatID == "" {
		cfg.Alerts.ChatID = cfg.Telegram.ChatID
		if cfg.Alerts.ThreadID == 0 {
			cfg.Alerts.ThreadID = cfg.Telegram.ThreadID
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeInto decodes a JSON or YAML document over cfg. Unknown keys and
// trailing data are rejected.
func decodeInto(cfg *Config, path string, data []byte) error {
	if isYAML(path) {
		j, err := yamlToJSON(data)
		if err != nil {
			return err
		}
		data = j
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("invalid config: trailing data")
		}
		return err
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, EnvNotificationToken)
	set(&cfg.Telegram.ChatID, EnvChatID)
	set(&cfg.Devman.Token, EnvDevmanToken)
	set(&cfg.Devman.URL, EnvDevmanURL)
	set(&cfg.Alerts.Token, EnvLoggerToken)
	set(&cfg.Alerts.ChatID, EnvLoggerChatID)
	set(&cfg.Logging.Level, EnvLogLevel)

	if v := strings.TrimSpace(getenv(EnvThreadID)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid thread id %q", EnvThreadID, v)
		}
		cfg.Telegram.ThreadID = n
	}
	return nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, fmt.Errorf("telegram.token is required (%s)", EnvNotificationToken))
	}
	if strings.TrimSpace(c.Telegram.ChatID) == "" {
		errs = append(errs, fmt.Errorf("telegram.chat_id is required (%s)", EnvChatID))
	}
	if strings.TrimSpace(c.Devman.Token) == "" {
		errs = append(errs, fmt.Errorf("devman.token is required (%s)", EnvDevmanToken))
	}
	if c.Poller.FailureThreshold < 0 {
		errs = append(errs, errors.New("poller.failure_threshold must be >= 0"))
	}
	for path, raw := range map[string]string{
		"devman.request_timeout": c.Devman.RequestTimeout,
		"poller.backoff":         c.Poller.Backoff,
		"alerts.send_timeout":    c.Alerts.SendTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SafeFields summarizes the configuration for startup logs.
// Tokens are never included, only whether they are set.
func (c *Config) SafeFields() []logx.Field {
	return []logx.Field{
		logx.String("telegram.chat_id", c.Telegram.ChatID),
		logx.Int("telegram.thread_id", c.Telegram.ThreadID),
		logx.Bool("alerts.enabled", c.Alerts.Enabled()),
		logx.String("alerts.chat_id", c.Alerts.ChatID),
		logx.String("devman.url", c.Devman.URL),
		logx.String("devman.request_timeout", c.Devman.RequestTimeout),
		logx.Int("poller.failure_threshold", c.Poller.FailureThreshold),
		logx.String("poller.backoff", c.Poller.Backoff),
		logx.String("logging.level", c.Logging.Level),
	}
}
