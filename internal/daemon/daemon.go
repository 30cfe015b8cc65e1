// Package daemon wires the protoctl service family into one process.
package daemon

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/protoctl/internal/admin"
	"github.com/danmuck/protoctl/internal/echo"
	"github.com/danmuck/protoctl/internal/isl"
	"github.com/danmuck/protoctl/internal/lrcp"
	"github.com/danmuck/protoctl/internal/lrcp/session"
	"github.com/danmuck/protoctl/internal/means"
	"github.com/danmuck/protoctl/internal/observability"
	"github.com/danmuck/protoctl/internal/primetime"
	"github.com/danmuck/protoctl/internal/reverse"
)

// ServiceConfig is one service's bind point.
type ServiceConfig struct {
	Enabled bool
	Addr    string
}

// Config is the daemon's full runtime configuration.
type Config struct {
	Admin        ServiceConfig
	Echo         ServiceConfig
	PrimeTime    ServiceConfig
	Means        ServiceConfig
	LineReversal ServiceConfig
	ISL          ServiceConfig

	Session session.Config
}

func DefaultConfig() Config {
	return Config{
		Admin:        ServiceConfig{Enabled: true, Addr: "127.0.0.1:9000"},
		Echo:         ServiceConfig{Enabled: true, Addr: "0.0.0.0:10000"},
		PrimeTime:    ServiceConfig{Enabled: true, Addr: "0.0.0.0:10001"},
		Means:        ServiceConfig{Enabled: true, Addr: "0.0.0.0:10002"},
		LineReversal: ServiceConfig{Enabled: true, Addr: "0.0.0.0:10007"},
		ISL:          ServiceConfig{Enabled: true, Addr: "0.0.0.0:10008"},
		Session:      session.DefaultConfig(),
	}
}

// Run starts every enabled service and blocks until a signal arrives or one
// service fails.
func Run(cfg Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, logger)
}

func serve(ctx context.Context, cfg Config, logger zerolog.Logger) error {
	observability.RegisterMetrics()
	group, ctx := errgroup.WithContext(ctx)

	if cfg.Admin.Enabled {
		router := admin.NewRouter(logger, nil)
		group.Go(func() error {
			return admin.Run(ctx, cfg.Admin.Addr, router, logger)
		})
	}
	if cfg.Echo.Enabled {
		group.Go(func() error {
			return echo.NewServer(logger).Run(ctx, cfg.Echo.Addr)
		})
	}
	if cfg.PrimeTime.Enabled {
		group.Go(func() error {
			return primetime.NewServer(logger).Run(ctx, cfg.PrimeTime.Addr)
		})
	}
	if cfg.Means.Enabled {
		group.Go(func() error {
			return means.NewServer(logger).Run(ctx, cfg.Means.Addr)
		})
	}
	if cfg.LineReversal.Enabled {
		group.Go(func() error {
			return lrcp.NewServer(reverse.Line, cfg.Session, logger).Run(ctx, cfg.LineReversal.Addr)
		})
	}
	if cfg.ISL.Enabled {
		group.Go(func() error {
			return isl.NewServer(logger).Run(ctx, cfg.ISL.Addr)
		})
	}

	return group.Wait()
}
