// Package logx configures arcbot's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - console output stays readable (short timestamp, file:line caller)
//   - the optional file sink writes one JSON object per line
//   - the optional Telegram sink forwards warnings to an ops chat, rate limited
package logx
