package cmd

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/df07/progressive-scheduler/pkg/renderer"
	"github.com/df07/progressive-scheduler/pkg/scene"
	"github.com/df07/progressive-scheduler/pkg/tracer"
)

// MergeDumps merges render dumps into a saved scene and saves the result.
func MergeDumps(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() < 2 {
		return errors.New("expected a scene name and at least one dump file")
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	rm := renderer.NewRenderManager(
		scene.New(ctx.Args().First()),
		tracer.New(tracer.DefaultConfig()),
		cfg.Progressive(),
		renderer.Collaborators{Listener: renderer.NewLogListener(logger)},
		logger,
	)
	defer rm.Close()

	if err := rm.LoadScene(ctx.Args().First()); err != nil {
		return err
	}
	for _, path := range ctx.Args().Tail() {
		if err := rm.MergeDump(path); err != nil {
			return err
		}
	}
	if err := rm.SaveScene(); err != nil {
		return err
	}

	stats := rm.Stats()
	logger.Noticef("merged %d dumps into %s, now at %d spp", ctx.NArg()-1, ctx.Args().First(), stats.SPP)
	return nil
}

// SceneInfo prints a table describing a saved scene.
func SceneInfo(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing scene name argument")
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	sc, err := scene.NewFileStore().Load(cfg.Scene.Dir, ctx.Args().First())
	if err != nil {
		return err
	}
	displaySceneInfo(sc)
	return nil
}

func displaySceneInfo(sc *scene.Scene) {
	stats := renderer.NewRenderStats(sc)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Property", "Value"})
	table.AppendBulk([][]string{
		{"Name", sc.Name},
		{"Canvas", fmt.Sprintf("%dx%d", sc.Width, sc.Height)},
		{"Camera", fmt.Sprintf("(%.1f, %.1f, %.1f) yaw %.1f pitch %.1f fov %.0f",
			sc.Camera.Position[0], sc.Camera.Position[1], sc.Camera.Position[2], sc.Camera.Yaw, sc.Camera.Pitch, sc.Camera.FoV)},
		{"Chunks", fmt.Sprintf("%d", len(sc.Chunks))},
		{"Path tracing", fmt.Sprintf("%t", sc.PathTrace())},
		{"SPP", fmt.Sprintf("%d / %d", stats.SPP, stats.TargetSPP)},
		{"Render time", renderer.FormatDuration(stats.RenderTime / 1000)},
		{"Samples/sec", fmt.Sprintf("%.0f", stats.SamplesPerSecond)},
		{"ETA", stats.ETA},
		{"Dump frequency", fmt.Sprintf("%d", sc.DumpFrequency)},
		{"Exposure", fmt.Sprintf("%.2f", sc.Exposure)},
	})

	table.Render()
	logger.Noticef("scene %s\n%s", sc.Name, buf.String())
}

// ListScenes prints the scenes saved in the scene directory.
func ListScenes(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	scenes, err := scene.ListScenes(cfg.Scene.Dir)
	if err != nil {
		return err
	}
	if len(scenes) == 0 {
		logger.Noticef("no scenes in %s", cfg.Scene.Dir)
		return nil
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Name", "Canvas", "SPP", "Render time", "Dump", "Modified"})
	for _, info := range scenes {
		table.Append([]string{
			info.Name,
			fmt.Sprintf("%dx%d", info.Width, info.Height),
			fmt.Sprintf("%d / %d", info.SPP, info.TargetSPP),
			renderer.FormatDuration(info.RenderTime / 1000),
			fmt.Sprintf("%t", info.HasDump),
			info.Modified.Format("2006-01-02 15:04"),
		})
	}
	table.Render()
	logger.Noticef("scenes in %s\n%s", cfg.Scene.Dir, buf.String())
	return nil
}
