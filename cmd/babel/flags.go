package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/babel/internal/config"
	"github.com/born-ml/babel/internal/logger"
)

var (
	configPath     string
	checkpointPath string
	backendName    string
	seed           uint64
	logLevel       string
	logFormat      string
	debug          bool

	// fileConfig is loaded by setup when --config is given.
	fileConfig *config.Config
)

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to a YAML or JSON model config",
			Sources:     cli.EnvVars("BABEL_CONFIG"),
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "checkpoint",
			Usage:       "safetensors checkpoint to load after building the model",
			Destination: &checkpointPath,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "tensor backend (cpu, reference)",
			Value:       "cpu",
			Destination: &backendName,
		},
		&cli.Uint64Flag{
			Name:        "seed",
			Usage:       "initialisation seed (overrides the config file)",
			Destination: &seed,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       config.DefaultLogLevel,
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (text, json)",
			Value:       config.DefaultLogFormat,
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// setup loads the config file and installs the logger. Flags that were set
// explicitly win over file values.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return ctx, err
		}
		fileConfig = &cfg
		if !cmd.IsSet("log-level") {
			logLevel = cfg.Log.Level
		}
		if !cmd.IsSet("log-format") {
			logFormat = cfg.Log.Format
		}
		if !cmd.IsSet("seed") {
			seed = cfg.Seed()
		}
	}
	if debug {
		logLevel = "debug"
	}
	log, err := logger.NewFromFormat(os.Stderr, logFormat, logLevel)
	if err != nil {
		return ctx, err
	}
	return logger.WithContext(ctx, log), nil
}
