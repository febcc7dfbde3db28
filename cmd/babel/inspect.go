package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/born-ml/babel/internal/backend/webgpu"
	"github.com/born-ml/babel/internal/kernels"
	"github.com/born-ml/babel/internal/nn"
)

type inspectReport struct {
	Backend       string              `json:"backend"`
	ModelDim      int                 `json:"model_dim"`
	InnerDim      int                 `json:"inner_dim"`
	Heads         int                 `json:"heads"`
	EncoderLayers int                 `json:"encoder_layers"`
	DecoderLayers int                 `json:"decoder_layers"`
	Position      string              `json:"position"`
	Activation    string              `json:"activation"`
	Parameters    int                 `json:"parameters"`
	Kernels       kernels.Report      `json:"kernels"`
	GPU           *webgpu.AdapterInfo `json:"gpu,omitempty"`
	GPUError      string              `json:"gpu_error,omitempty"`
}

func inspectCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:  "inspect",
		Usage: "Summarize the configured model, kernel selection and GPU availability",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print the report as JSON", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			t, err := buildTranslator(ctx)
			if err != nil {
				return err
			}
			cfg := t.Config()
			r := inspectReport{
				Backend:       t.Backend().Name(),
				ModelDim:      cfg.Layer.ModelDim,
				InnerDim:      cfg.Layer.InnerDim,
				Heads:         cfg.Layer.Heads,
				EncoderLayers: cfg.EncoderLayers,
				DecoderLayers: cfg.DecoderLayers,
				Position:      cfg.Layer.Position.String(),
				Activation:    cfg.Layer.Activation.String(),
				Parameters:    nn.CountParameters(t),
				Kernels:       t.KernelReport(),
			}
			if info, err := webgpu.Probe(); err != nil {
				r.GPUError = err.Error()
			} else {
				r.GPU = &info
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			}
			fmt.Printf("backend:      %s\n", r.Backend)
			fmt.Printf("layers:       %d encoder, %d decoder\n", r.EncoderLayers, r.DecoderLayers)
			fmt.Printf("width:        model %d, inner %d, %d heads\n", r.ModelDim, r.InnerDim, r.Heads)
			fmt.Printf("position:     %s\n", r.Position)
			fmt.Printf("activation:   %s (glu %v)\n", r.Activation, cfg.Layer.GLU)
			fmt.Printf("parameters:   %d\n", r.Parameters)
			fmt.Printf("kernels:      layer_norm=%s feed_forward=%s dropout_add=%s\n",
				r.Kernels.LayerNorm, r.Kernels.FeedForward, r.Kernels.DropoutAdd)
			if r.GPU != nil {
				fmt.Printf("gpu:          %s\n", r.GPU)
			} else {
				fmt.Printf("gpu:          unavailable (%s)\n", r.GPUError)
			}
			return nil
		},
	}
}
