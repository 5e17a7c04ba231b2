package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/phsym/console-slog"
	slogmulti "github.com/samber/slog-multi"
	slogtelegram "github.com/samber/slog-telegram/v2"

	"github.com/mnemochat/mnemo/internal/config"
)

// Preinit installs a console logger so anything logged before the config is
// loaded still shows up.
func Preinit() {
	slog.SetDefault(slog.New(console.NewHandler(os.Stderr, &console.HandlerOptions{
		Level: slog.LevelInfo,
	})))
}

// Init wires the configured handlers: console always, plus a Telegram sink
// that receives errors and records tagged telegram=true when a report bot is
// configured.
func Init(cfg *config.Config) {
	level := ParseLevel(cfg.Log.Level)

	router := slogmulti.Router()

	router = router.Add(console.NewHandler(os.Stderr, &console.HandlerOptions{
		Level: level,
	}))

	if cfg.Log.Report.Token != "" && cfg.Log.Report.ChatID != "" {
		router = router.Add(
			slogtelegram.Option{
				Level:    slog.LevelDebug,
				Token:    cfg.Log.Report.Token,
				Username: cfg.Log.Report.ChatID,
			}.NewTelegramHandler(),

			func(_ context.Context, r slog.Record) bool {
				hasTelegram := false

				r.Attrs(func(attr slog.Attr) bool {
					if attr.Key == "telegram" {
						hasTelegram = true
						return false
					}

					return true
				})

				return r.Level == slog.LevelError || hasTelegram
			},
		)
	}

	slog.SetDefault(slog.New(router.Handler()))
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
