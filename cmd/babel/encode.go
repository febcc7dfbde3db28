package main

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/babel/internal/model"
	"github.com/born-ml/babel/internal/tensor"
	"github.com/born-ml/babel/internal/tokenizer"
)

func encodeCmd() *cli.Command {
	var (
		texts    []string
		ids      string
		encoding string
		reserved int
		lang     int
	)

	return &cli.Command{
		Name:  "encode",
		Usage: "Run the encoder over text or token ids and print output statistics",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "text", Aliases: []string{"t"}, Usage: "source sentence (repeat for a batch)", Destination: &texts},
			&cli.StringFlag{Name: "ids", Usage: "token ids, e.g. \"3,4,5;6,7\"", Destination: &ids},
			&cli.StringFlag{Name: "encoding", Usage: "tiktoken encoding for --text", Value: "cl100k_base", Destination: &encoding},
			&cli.IntFlag{Name: "reserved", Usage: "ids kept free for special tokens when folding --text", Value: 4, Destination: &reserved},
			&cli.IntFlag{Name: "lang", Usage: "source language id (-1 for none)", Value: -1, Destination: &lang},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			t, err := buildTranslator(ctx)
			if err != nil {
				return err
			}
			var sequences [][]int
			switch {
			case len(texts) > 0:
				sequences, err = tokenize(texts, encoding, t.Config().SourceVocab, reserved)
			case ids != "":
				sequences, err = parseSequences(ids)
			default:
				err = errors.New("either --text or --ids is required")
			}
			if err != nil {
				return err
			}

			src := model.NewTokens(sequences, t.Config().PadID)
			out, err := guard(func() *tensor.Tensor { return t.Encode(src, parseLanguage(lang)).Context })
			if err != nil {
				return err
			}
			mean, std, finite := stats(out)
			fmt.Printf("shape:  %v\n", out.Shape())
			fmt.Printf("mean:   %.6f\n", mean)
			fmt.Printf("std:    %.6f\n", std)
			fmt.Printf("finite: %v\n", finite)
			return nil
		},
	}
}

func tokenize(texts []string, encoding string, vocab, reserved int) ([][]int, error) {
	tok, err := tokenizer.NewTikToken(encoding)
	if err != nil {
		return nil, err
	}
	folded, err := tokenizer.NewFolded(tok, vocab, reserved)
	if err != nil {
		return nil, err
	}
	out := make([][]int, len(texts))
	for i, text := range texts {
		if out[i], err = folded.Encode(text); err != nil {
			return nil, err
		}
		if len(out[i]) == 0 {
			return nil, fmt.Errorf("text %d produced no tokens", i)
		}
	}
	return out, nil
}

func stats(x *tensor.Tensor) (mean, std float64, finite bool) {
	data := x.Data()
	for _, v := range data {
		mean += float64(v)
	}
	mean /= float64(len(data))
	for _, v := range data {
		d := float64(v) - mean
		std += d * d
	}
	return mean, math.Sqrt(std / float64(len(data))), x.IsFinite()
}
