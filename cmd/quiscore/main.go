package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Black-And-White-Club/quiscore/config"
)

func main() {
	cliApp := &cli.App{
		Name:    "quiscore",
		Usage:   "real-time quiz scoreboards",
		Version: config.Version,
		Commands: []*cli.Command{
			newServeCommand(),
			newMigrateCommand(),
			newSeedCommand(),
			newWatchCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Value:   "config.yaml",
		Usage:   "path to the configuration file",
		EnvVars: []string{"QUISCORE_CONFIG"},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.LoadConfig(c.String("config"))
}
