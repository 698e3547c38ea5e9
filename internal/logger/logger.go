package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// 出力フォーマット
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Options はロガーの出力フォーマットとレベルを指定する。
type Options struct {
	Format string // json（本番） または text（開発時のカラー出力）
	Level  string // debug, info, warn, error
}

// Setup は指定された設定でslog.Loggerを生成して返す。
// Formatがtextの場合はtintのカラーテキスト出力、それ以外はJSON構造化ログ出力となる。
func Setup(w io.Writer, opts Options) *slog.Logger {
	level := ParseLevel(opts.Level)

	if opts.Format == FormatText {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
		}))
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// SetupDefault はロガーを生成してグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer, opts Options) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w, opts)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel はログレベル名をslog.Levelに変換する。未知の値はInfoとして扱う。
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
