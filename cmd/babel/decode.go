package main

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/babel/internal/logger"
	"github.com/born-ml/babel/internal/model"
	"github.com/born-ml/babel/internal/nn"
)

func decodeCmd() *cli.Command {
	var (
		source, target   string
		srcLang, tgtLang int
	)

	return &cli.Command{
		Name:  "decode",
		Usage: "Feed target ids step by step through an incremental session",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Usage: "source ids, e.g. \"3,4,5;6,7\"", Required: true, Destination: &source},
			&cli.StringFlag{Name: "target", Usage: "target ids with the same batch layout", Required: true, Destination: &target},
			&cli.IntFlag{Name: "source-lang", Value: -1, Usage: "source language id (-1 for none)", Destination: &srcLang},
			&cli.IntFlag{Name: "target-lang", Value: -1, Usage: "target language id (-1 for none)", Destination: &tgtLang},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			t, err := buildTranslator(ctx)
			if err != nil {
				return err
			}
			srcIDs, err := parseSequences(source)
			if err != nil {
				return fmt.Errorf("--source: %w", err)
			}
			tgtIDs, err := parseSequences(target)
			if err != nil {
				return fmt.Errorf("--target: %w", err)
			}
			if len(srcIDs) != len(tgtIDs) {
				return errors.New("--source and --target must have the same number of sequences")
			}

			pad := t.Config().PadID
			tgt := model.NewTokens(tgtIDs, pad)
			session, err := guard(func() *model.Session {
				return t.NewSession(model.NewTokens(srcIDs, pad), parseLanguage(srcLang), parseLanguage(tgtLang))
			})
			if err != nil {
				return err
			}
			logger.FromContext(ctx).Debug("session opened", "id", session.ID(), "steps", tgt.Seq)

			for step := 0; step < tgt.Seq; step++ {
				out, err := guard(func() model.DecoderOutput { return session.Step(tgt.Step(step).IDs) })
				if err != nil {
					return fmt.Errorf("step %d: %w", step, err)
				}
				fmt.Printf("step %d:", step)
				for b, n := range hiddenNorms(out) {
					fmt.Printf(" [%d] %.4f", b, n)
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func hiddenNorms(out model.DecoderOutput) []float64 {
	h := out.Hidden
	batch, dim := h.Dim(1), h.Dim(2)
	norms := make([]float64, batch)
	data := h.Data()
	for b := range norms {
		var sum float64
		for _, v := range data[b*dim : (b+1)*dim] {
			sum += float64(v) * float64(v)
		}
		norms[b] = math.Sqrt(sum)
	}
	return norms
}

// guard turns contract panics from the model into errors.
func guard[T any](fn func() T) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok || !errors.Is(e, nn.ErrContract) {
				panic(r)
			}
			err = e
		}
	}()
	return fn(), nil
}
