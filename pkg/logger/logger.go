// Package logger はzerologによる構造化ロガーを生成する。
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// FormatJSON はJSON形式で出力する。
	FormatJSON = "json"
	// FormatConsole は人間が読みやすい形式で出力する。
	FormatConsole = "console"
)

// Config はロガーの設定。
type Config struct {
	// Level はログレベル (debug, info, warn, error)。不正な値はinfoとして扱う。
	Level string
	// Format は出力形式 (json, console)。
	Format string
	// Output は出力先。nilの場合は標準出力。
	Output io.Writer
}

// New はサービス名を付与したロガーを生成する。
func New(cfg Config, service string) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.ToLower(cfg.Format) == FormatConsole {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}
