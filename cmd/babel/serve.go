package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/born-ml/babel/internal/config"
	"github.com/born-ml/babel/internal/logger"
	"github.com/born-ml/babel/internal/server"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		maxSessions int
		sessionTTL  time.Duration
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the diagnostics API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       config.DefaultServerAddress,
				Destination: &addr,
			},
			&cli.IntFlag{
				Name:        "max-sessions",
				Usage:       "maximum open decode sessions (0 for no limit)",
				Destination: &maxSessions,
			},
			&cli.DurationFlag{
				Name:        "session-ttl",
				Usage:       "drop sessions older than this (0 keeps them until deleted)",
				Value:       30 * time.Minute,
				Destination: &sessionTTL,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if fileConfig != nil {
				if fileConfig.Server.Address != "" && !cmd.IsSet("addr") {
					addr = fileConfig.Server.Address
				}
				if fileConfig.Server.MaxSessions > 0 && !cmd.IsSet("max-sessions") {
					maxSessions = fileConfig.Server.MaxSessions
				}
			}

			t, err := buildTranslator(ctx)
			if err != nil {
				return err
			}
			srv := server.NewServer(t, server.Options{
				MaxSessions: maxSessions,
				SessionTTL:  sessionTTL,
				Logger:      log,
			})

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			srv.Register(e)

			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(s *http.Server) error {
					s.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
