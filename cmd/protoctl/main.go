package main

import (
	"fmt"
	"os"

	"github.com/danmuck/protoctl/internal/daemon"
	"github.com/danmuck/protoctl/internal/observability"
)

func main() {
	logger := observability.InitLogger("protoctl")

	cfg := daemon.DefaultConfig()
	if len(os.Args) > 1 {
		loaded, err := loadConfig(os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "protoctl: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if err := daemon.Run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("daemon exited")
		os.Exit(1)
	}
}
