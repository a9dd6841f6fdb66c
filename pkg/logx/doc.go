// Package logx configures the bot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//
// Lifecycle alerts to Telegram are not a log sink; see internal/alert.
package logx
