package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/anicoll/ote-spot/cmd"
)

func dateFlag(usage string) *cli.StringFlag {
	return &cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: usage + " (YYYY-MM-DD)"}
}

func main() {
	// a missing .env is fine, the environment may be set directly
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal(err)
	}

	app := &cli.App{
		Name:  "ote-spot",
		Usage: "Czech OTE day-ahead spot prices: fetch, store, analyse and serve",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "spot",
				Usage:  "fetch and print the prices of a day",
				Action: cmd.SpotCommand,
				Flags: []cli.Flag{
					dateFlag("day to fetch, today by default"),
					&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "print all 96 quarter hours"},
				},
			},
			{
				Name:   "save",
				Usage:  "fetch and store prices",
				Action: cmd.SaveCommand,
				Flags: []cli.Flag{
					dateFlag("single day to save"),
					&cli.IntFlag{Name: "days-back", Value: 0, Usage: "also save this many past days"},
				},
			},
			{
				Name:   "history",
				Usage:  "list stored days, or the stored prices of one day",
				Action: cmd.HistoryCommand,
				Flags: []cli.Flag{
					dateFlag("stored day to print"),
					&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "print all 96 quarter hours"},
				},
			},
			{
				Name:   "analyze",
				Usage:  "print hourly patterns, trend, volatility and consumption profiles",
				Action: cmd.AnalyzeCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "days", Value: 30, Usage: "days of history to analyse"},
				},
			},
			{
				Name:   "forecast",
				Usage:  "print the multi-day price forecast",
				Action: cmd.ForecastCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "days", Value: 7, Usage: "days ahead to forecast"},
				},
			},
			{
				Name:   "serve",
				Usage:  "run the web dashboard",
				Action: cmd.ServeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", EnvVars: []string{"SERVER_ADDR"}, Usage: "listen address"},
					&cli.BoolFlag{Name: "collect", Usage: "also run the collector"},
				},
			},
			{
				Name:   "collect",
				Usage:  "keep the store current and publish the running price",
				Action: cmd.CollectCommand,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations",
				Action: cmd.MigrateCommand,
			},
			{
				Name:   "token",
				Usage:  "generate a dashboard API token and its hash",
				Action: cmd.TokenCommand,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
