package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coreworld/explorer/asset"
	"github.com/coreworld/explorer/config"
	"github.com/coreworld/explorer/dispatch"
	"github.com/coreworld/explorer/lifecycle"
	"github.com/coreworld/explorer/logger"
	"github.com/coreworld/explorer/realm"
	"github.com/coreworld/explorer/scene"
	"github.com/coreworld/explorer/scheduler"
)

// RunCmd boots the client against a realm: loads configuration, wires the
// asset fetcher, realm client, scheduler, and dispatcher, then drives the
// lifecycle/scheduler frame loop until interrupted (§4.E, §4.D).
// Networked presence (§4.G) needs a room server address and signer
// this command doesn't yet take as flags, so it isn't wired here.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the client against a realm",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := logger.Initialize(cfg.Log.JSON); err != nil {
			return err
		}

		fetcher := asset.NewFetcher(
			cfg.Content.ServerURL,
			expandContentCacheDir(cfg.Content.CacheDir),
			time.Duration(cfg.Transport.ReadTimeoutMS)*time.Millisecond,
		)

		client := realm.New(cfg.Realm.URL, time.Duration(cfg.Transport.ConnectTimeoutMS)*time.Millisecond)

		disp := dispatch.New(nil) // renderer backend is an external collaborator (§1)
		sched := scheduler.New(cfg.Scheduler.MaxSkippedFrames)

		mgr := lifecycle.NewManager(
			int32(cfg.Realm.LoadDistance),
			int32(cfg.Realm.UnloadHysteresis),
			uint32(cfg.Worker.MemoryLimitPages),
			client,
			client,
			fetcher,
			sched,
			disp,
			outOfWorldLogger{},
		)

		player := scene.Parcel{X: int32(cfg.Realm.StartParcelX), Y: int32(cfg.Realm.StartParcelY)}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		budget := time.Duration(cfg.Scheduler.FrameBudgetMS) * time.Millisecond
		ticker := time.NewTicker(budget)
		defer ticker.Stop()

		logger.Infow("explorer run starting", "realm", cfg.Realm.URL, "start_parcel", player)

		for {
			select {
			case <-ctx.Done():
				logger.Info("explorer run stopping")
				return nil
			case <-ticker.C:
				if err := mgr.Update(ctx, player, nil); err != nil {
					logger.Errorw("lifecycle update failed", "error", err)
					continue
				}
				sched.RunFrame(ctx, disp, budget)
			}
		}
	},
}

func expandContentCacheDir(dir string) string {
	if len(dir) >= 2 && dir[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			return home + dir[1:]
		}
	}
	return dir
}

// outOfWorldLogger is the minimal lifecycle.OutOfWorldSink the CLI wires up
// absent a renderer to flip an actual in-world/out-of-world presentation
// (§4.E step 4).
type outOfWorldLogger struct{}

func (outOfWorldLogger) SetOutOfWorld(v bool) {
	logger.Infow("out of world marker changed", "out_of_world", v)
}
