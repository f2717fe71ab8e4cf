package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pathplanner/internal/config"
	"pathplanner/internal/udp"
	"pathplanner/internal/web"
)

func main() {
	var (
		configPath  string
		replayPath  string
		replaySpeed float64
		replayLoop  bool
		summaryPath string
	)
	flag.StringVar(&configPath, "config", "./configs/dev.yaml", "Path to YAML config")
	flag.StringVar(&replayPath, "replay", "", "Play a recorded telemetry log to telemetry.dest and exit")
	flag.Float64Var(&replaySpeed, "replay-speed", 1.0, "Replay speed multiplier")
	flag.BoolVar(&replayLoop, "replay-loop", false, "Loop the replayed log until interrupted")
	flag.StringVar(&summaryPath, "summary", "", "Print a summary of a recorded telemetry log and exit")
	flag.Parse()

	if summaryPath != "" {
		if err := printLogSummary(os.Stdout, summaryPath); err != nil {
			log.Fatalf("summary failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if replayPath != "" {
		if cfg.Telemetry.Dest == "" {
			log.Fatalf("replay requires telemetry.dest")
		}
		b, err := udp.NewBroadcaster(cfg.Telemetry.Dest)
		if err != nil {
			log.Fatalf("udp broadcaster init failed: %v", err)
		}
		defer b.Close()
		log.Printf("replaying path=%s dest=%s speed=%.2f loop=%t", replayPath, cfg.Telemetry.Dest, replaySpeed, replayLoop)
		err = runReplay(ctx, replayPath, replaySpeed, replayLoop, nil, b.Send)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("replay failed: %v", err)
		}
		st := b.Stats()
		log.Printf("replay done packets=%d bytes=%d errors=%d", st.Packets, st.Bytes, st.Errors)
		return
	}

	logs := web.NewLogBuffer(2000)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	status := web.NewStatus()
	stream := web.NewPathBroadcaster()
	rt, err := newHostRuntime(ctx, cfg, configPath, status, stream)
	if err != nil {
		log.Fatalf("runtime init failed: %v", err)
	}

	log.Printf("pathplanner starting interval=%s stick=%s", cfg.Loop.Interval, cfg.Stick.Source)

	if cfg.Web.Listen != "" {
		settings := web.SettingsStore{ConfigPath: configPath, Apply: rt.Apply}
		handler := web.Handler(status, settings, logs, stream)
		go func() {
			log.Printf("web listen=%s", cfg.Web.Listen)
			if err := web.Serve(ctx, cfg.Web.Listen, handler); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("web server stopped: %v", err)
			}
		}()
	}

	if err := rt.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("control loop stopped: %v", err)
	}
	log.Printf("pathplanner stopping")
	if err := rt.Close(); err != nil {
		log.Printf("shutdown errors: %v", err)
	}
}
