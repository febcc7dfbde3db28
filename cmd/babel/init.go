package main

import (
	"context"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/babel/internal/checkpoint"
	"github.com/born-ml/babel/internal/logger"
	"github.com/born-ml/babel/internal/nn"
)

func initCmd() *cli.Command {
	var out string

	return &cli.Command{
		Name:  "init",
		Usage: "Write a randomly initialised checkpoint for the configured model",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output .safetensors path",
				Required:    true,
				Destination: &out,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			t, err := buildTranslator(ctx)
			if err != nil {
				return err
			}
			cfg := t.Config()
			meta := map[string]string{
				"format":         "babel",
				"seed":           strconv.FormatUint(seed, 10),
				"position":       cfg.Layer.Position.String(),
				"encoder_layers": strconv.Itoa(cfg.EncoderLayers),
				"decoder_layers": strconv.Itoa(cfg.DecoderLayers),
			}
			if err := checkpoint.SaveModule(out, t, meta); err != nil {
				return err
			}
			logger.FromContext(ctx).Info("checkpoint written", "path", out, "parameters", nn.CountParameters(t))
			return nil
		},
	}
}
