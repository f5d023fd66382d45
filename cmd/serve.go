package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/df07/progressive-scheduler/pkg/config"
	"github.com/df07/progressive-scheduler/pkg/log"
	"github.com/df07/progressive-scheduler/pkg/renderer"
	"github.com/df07/progressive-scheduler/pkg/tracer"
	"github.com/df07/progressive-scheduler/web/server"
)

// Serve runs the render loop behind the web control surface.
func Serve(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	hub := server.NewHub(ctx.Int("max-width"))
	detach := log.AddBackend(server.NewConsoleBackend(hub))
	defer detach()

	rm := renderer.NewRenderManager(
		cfg.NewScene(),
		tracer.New(tracer.DefaultConfig()),
		serveConfig(cfg),
		renderer.Collaborators{
			Display:  hub,
			Listener: renderer.MultiListener{renderer.NewLogListener(logger), hub},
			Chunks:   tracer.NewChunkSource(ctx.Int("world-radius")),
		},
		logger,
	)
	// Frames are only finalized while someone is watching
	hub.OnWatchers = rm.SetBufferFinalization

	if err := loadInitialScene(rm, ctx.String("scene")); err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return rm.Run(gctx)
	})
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		return server.NewServer(ctx.Int("port"), rm, hub).Start(gctx)
	})
	if path := ctx.GlobalString("config"); path != "" {
		g.Go(func() error {
			return config.Watch(gctx, path, func(cfg *config.Config) {
				cfg.Apply(rm)
			})
		})
	}

	err = g.Wait()
	logger.Notice("server stopped")
	return err
}

// serveConfig returns the render settings for the server. The server renders
// until it is stopped, so oneshot mode is ignored.
func serveConfig(cfg *config.Config) renderer.ProgressiveConfig {
	progressive := cfg.Progressive()
	if progressive.Oneshot {
		logger.Info("ignoring oneshot mode while serving")
		progressive.Oneshot = false
	}
	return progressive
}

// loadInitialScene loads the named scene, if any. The manager is closed when
// the scene can't be loaded.
func loadInitialScene(rm *renderer.RenderManager, name string) error {
	if name == "" {
		return nil
	}
	if err := rm.LoadScene(name); err != nil {
		rm.Close()
		return err
	}
	return nil
}
