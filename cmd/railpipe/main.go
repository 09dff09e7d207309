package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hookdeck/railpipe/internal/app"
	"github.com/hookdeck/railpipe/internal/config"
	"github.com/hookdeck/railpipe/internal/version"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:    "railpipe",
		Usage:   "Collect National Rail departure boards into rotating CSV logs",
		Version: version.Version(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or .env config file",
			},
			&cli.StringFlag{
				Name:  "dotenv",
				Usage: "Path to a dotenv file loaded before the environment is read",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging",
			},
			&cli.StringFlag{
				Name:    "logdir",
				Aliases: []string{"l"},
				Usage:   "Directory the live CSV files are written to",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Parse(config.Flags{
				Config: c.String("config"),
				DotEnv: c.String("dotenv"),
				Debug:  c.Bool("debug"),
				LogDir: c.String("logdir"),
			})
			if err != nil {
				return err
			}
			return app.New(cfg).Run(ctx)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
