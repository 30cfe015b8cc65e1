package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/protoctl/internal/daemon"
)

type fileService struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type fileConfig struct {
	Admin        fileService `toml:"admin"`
	Echo         fileService `toml:"echo"`
	PrimeTime    fileService `toml:"primetime"`
	Means        fileService `toml:"means"`
	LineReversal fileService `toml:"linereversal"`
	ISL          fileService `toml:"isl"`

	LRCP struct {
		RetransmitInterval string `toml:"retransmit_interval"`
		SessionTimeout     string `toml:"session_timeout"`
		MaxChunkBytes      int    `toml:"max_chunk_bytes"`
		InboxCapacity      int    `toml:"inbox_capacity"`
	} `toml:"lrcp"`
}

func loadConfig(path string) (daemon.Config, error) {
	cfg := daemon.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return daemon.Config{}, fmt.Errorf("load config: %w", err)
	}

	applyService(meta, "admin", raw.Admin, &cfg.Admin)
	applyService(meta, "echo", raw.Echo, &cfg.Echo)
	applyService(meta, "primetime", raw.PrimeTime, &cfg.PrimeTime)
	applyService(meta, "means", raw.Means, &cfg.Means)
	applyService(meta, "linereversal", raw.LineReversal, &cfg.LineReversal)
	applyService(meta, "isl", raw.ISL, &cfg.ISL)

	if meta.IsDefined("lrcp", "retransmit_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.LRCP.RetransmitInterval))
		if err != nil {
			return daemon.Config{}, fmt.Errorf("parse retransmit_interval: %w", err)
		}
		cfg.Session.RetransmitInterval = d
	}
	if meta.IsDefined("lrcp", "session_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.LRCP.SessionTimeout))
		if err != nil {
			return daemon.Config{}, fmt.Errorf("parse session_timeout: %w", err)
		}
		cfg.Session.SessionTimeout = d
	}
	if meta.IsDefined("lrcp", "max_chunk_bytes") {
		cfg.Session.MaxChunkBytes = raw.LRCP.MaxChunkBytes
	}
	if meta.IsDefined("lrcp", "inbox_capacity") {
		cfg.Session.InboxCapacity = raw.LRCP.InboxCapacity
	}

	return cfg, nil
}

func applyService(meta toml.MetaData, key string, raw fileService, out *daemon.ServiceConfig) {
	if meta.IsDefined(key, "enabled") {
		out.Enabled = raw.Enabled
	}
	if meta.IsDefined(key, "addr") {
		if addr := strings.TrimSpace(raw.Addr); addr != "" {
			out.Addr = addr
		}
	}
}
