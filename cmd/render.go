package cmd

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/df07/progressive-scheduler/pkg/renderer"
	"github.com/df07/progressive-scheduler/pkg/tracer"
)

// Render a scene headless until its target SPP is reached.
func Render(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if ctx.IsSet("width") {
		cfg.Scene.Width = ctx.Int("width")
	}
	if ctx.IsSet("height") {
		cfg.Scene.Height = ctx.Int("height")
	}
	if ctx.IsSet("spp") {
		cfg.Scene.TargetSPP = ctx.Int("spp")
	}
	if ctx.IsSet("threads") {
		cfg.Render.Threads = ctx.Int("threads")
	}
	if ctx.IsSet("name") {
		cfg.Scene.Name = ctx.String("name")
	}
	cfg.Render.Oneshot = true
	if err := cfg.Normalize(); err != nil {
		return err
	}

	rm := renderer.NewRenderManager(
		cfg.NewScene(),
		tracer.New(tracer.DefaultConfig()),
		cfg.Progressive(),
		renderer.Collaborators{Listener: renderer.NewLogListener(logger)},
		logger,
	)

	// Resume a saved render of the same name if there is one
	if ctx.Bool("resume") {
		if err := rm.LoadScene(cfg.Scene.Name); err != nil {
			logger.Warningf("starting a new render: %v", err)
		}
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Noticef("rendering %s at %dx%d to %d spp with %d threads", cfg.Scene.Name, cfg.Scene.Width, cfg.Scene.Height, cfg.Scene.TargetSPP, cfg.Render.Threads)
	rm.SetBufferFinalization(false)
	rm.Scene().StartRender()
	if err := rm.Run(runCtx); err != nil {
		return err
	}

	if out := ctx.String("out"); out != "" {
		if err := rm.SaveSnapshot(out); err != nil {
			return err
		}
	}

	displayRenderStats(rm.Stats(), rm.Frame())
	return nil
}

func displayRenderStats(stats renderer.RenderStats, frame *image.RGBA) {
	logger.Noticef("render statistics\n%s", renderStatsTable(stats, frame))
}

func renderStatsTable(stats renderer.RenderStats, frame *image.RGBA) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Canvas", "SPP", "Target", "Render time", "Samples/sec", "Luminance"})
	table.Append([]string{
		fmt.Sprintf("%dx%d", frame.Bounds().Dx(), frame.Bounds().Dy()),
		fmt.Sprintf("%d", stats.SPP),
		fmt.Sprintf("%d", stats.TargetSPP),
		renderer.FormatDuration(stats.RenderTime / 1000),
		fmt.Sprintf("%.0f", stats.SamplesPerSecond),
		fmt.Sprintf("%.3f", renderer.CalculateAverageLuminance(frame)),
	})

	table.Render()
	return buf.String()
}
