package cmd

import (
	"github.com/urfave/cli"

	"github.com/df07/progressive-scheduler/pkg/config"
	"github.com/df07/progressive-scheduler/pkg/log"
)

var logger = log.New("scheduler")

func setupLogging(ctx *cli.Context) {
	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}

// loadConfig returns the configuration named by the global --config flag or
// the defaults.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	path := ctx.GlobalString("config")
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	logger.Infof("loaded configuration from %s", path)
	return cfg, nil
}
