package main

import (
	"context"
	"os"

	"dzchess-analyzer/internal/logging"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		logging.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
