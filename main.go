package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/df07/progressive-scheduler/cmd"
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "progressive-scheduler"
	app.Usage = "render scenes progressively with a tile based worker pool"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "YAML configuration file",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render a scene headless until the target SPP is reached",
			Description: `
Render the configured scene without a display. Render dumps are written to the
scene directory at the configured dump frequency and when the target is
reached, so an interrupted render can be continued with --resume.`,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "name, n",
					Usage: "scene name",
				},
				cli.IntFlag{
					Name:  "width",
					Value: 400,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 300,
					Usage: "frame height",
				},
				cli.IntFlag{
					Name:  "spp",
					Value: 100,
					Usage: "target samples per pixel",
				},
				cli.IntFlag{
					Name:  "threads, t",
					Usage: "number of render workers",
				},
				cli.BoolFlag{
					Name:  "resume, r",
					Usage: "continue a saved render of the same name",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "frame.png",
					Usage: "image filename for the rendered frame",
				},
			},
			Action: cmd.Render,
		},
		{
			Name:  "serve",
			Usage: "serve the render loop over HTTP",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "port, p",
					Value: 8080,
					Usage: "port to serve on",
				},
				cli.IntFlag{
					Name:  "max-width",
					Value: 800,
					Usage: "scale streamed frames down to this width (0 = never)",
				},
				cli.StringFlag{
					Name:  "scene, s",
					Usage: "load this scene from the scene directory at startup",
				},
				cli.IntFlag{
					Name:  "world-radius",
					Value: 8,
					Usage: "chunks that exist on each side of the world origin",
				},
			},
			Action: cmd.Serve,
		},
		{
			Name:      "merge",
			Usage:     "merge render dumps into a saved scene",
			ArgsUsage: "scene_name dump_file1 dump_file2 ...",
			Action:    cmd.MergeDumps,
		},
		{
			Name:      "info",
			Usage:     "describe a saved scene",
			ArgsUsage: "scene_name",
			Action:    cmd.SceneInfo,
		},
		{
			Name:   "list",
			Usage:  "list the saved scenes",
			Action: cmd.ListScenes,
		},
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
