// Command negotiator は価格交渉APIサーバーとその運用サブコマンドを提供する。
//
// 使い方:
//
//	negotiator [serve|worker|migrate [down]|healthcheck]
package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/negotiator/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
