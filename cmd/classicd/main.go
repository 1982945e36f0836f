// Command classicd runs a Minecraft Classic (protocol version 7)
// server: it loads configuration, opens or creates the world, starts
// the Hub, and serves until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blockhost/classicd/internal/config"
	"github.com/blockhost/classicd/internal/heartbeat"
	"github.com/blockhost/classicd/internal/hub"
	"github.com/blockhost/classicd/internal/logging"
	"github.com/blockhost/classicd/internal/world"
)

const worldDir = "./world"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	log, logFile, err := logging.New("./logs")
	if err != nil {
		return fmt.Errorf("classicd: build logger: %w", err)
	}
	defer logFile.Close()

	cfg, err := config.Load(config.Path, log)
	if err != nil {
		return fmt.Errorf("classicd: load config: %w", err)
	}

	w, err := world.Load(worldDir, cfg.Map.Name, cfg.Map.XWidth, cfg.Map.YHeight, cfg.Map.ZDepth,
		cfg.Map.CreatorUsername, "classicd-flat",
		func(percent int) {
			log.WithField("percent", percent).Debug("loading world")
		},
		func(path string) {
			log.WithField("path", path).Info("NBT world file present but not imported")
		},
	)
	if err != nil {
		return fmt.Errorf("classicd: load world: %w", err)
	}

	salt := hub.GenerateSalt()

	var clients []heartbeat.Client
	if cfg.Heartbeat.Enabled {
		if cfg.Heartbeat.MineOnline.Active {
			clients = append(clients, heartbeat.NewSynchronized(
				heartbeat.NewMineOnlineClient(log, cfg.Heartbeat.MineOnline.URL, cfg.Server.IP, cfg.Server.Port),
			))
		}
		if cfg.Heartbeat.Mojang.Active {
			clients = append(clients, heartbeat.NewSynchronized(
				heartbeat.NewMojangClient(log, cfg.Heartbeat.Mojang.URL, cfg.Server.Port, salt),
			))
		}
	}

	h := hub.New(cfg, w, log, clients, worldDir, salt)
	if err := h.Listen(); err != nil {
		return fmt.Errorf("classicd: listen: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("classicd started")
	if err := h.Run(ctx); err != nil {
		return fmt.Errorf("classicd: run: %w", err)
	}
	return nil
}
