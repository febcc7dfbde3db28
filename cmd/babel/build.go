package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/babel/internal/backend/cpu"
	"github.com/born-ml/babel/internal/checkpoint"
	"github.com/born-ml/babel/internal/logger"
	"github.com/born-ml/babel/internal/model"
	"github.com/born-ml/babel/internal/nn"
	"github.com/born-ml/babel/internal/tensor"
)

var errNoConfig = errors.New("a model config is required (--config or BABEL_CONFIG)")

// buildTranslator builds the configured model and loads --checkpoint if set.
func buildTranslator(ctx context.Context) (*model.Translator, error) {
	if fileConfig == nil {
		return nil, errNoConfig
	}
	cfg, err := fileConfig.ModelConfig()
	if err != nil {
		return nil, err
	}
	b, err := selectBackend(backendName)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	t, err := model.New(cfg, model.WithBackend(b), model.WithSeed(seed), model.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if checkpointPath != "" {
		meta, err := checkpoint.Load(checkpointPath, t)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
		log.Info("checkpoint loaded", "path", checkpointPath, "checksum", meta[checkpoint.ChecksumKey])
	}
	return t, nil
}

func selectBackend(name string) (tensor.Backend, error) {
	switch strings.ToLower(name) {
	case "", "cpu":
		return cpu.New(), nil
	case "reference":
		return cpu.NewReference(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

// parseSequences parses "3,4,5;6,7" into batch-major id sequences.
func parseSequences(s string) ([][]int, error) {
	var out [][]int
	for part := range strings.SplitSeq(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var seq []int
		for field := range strings.SplitSeq(part, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return nil, fmt.Errorf("token id %q: %w", field, err)
			}
			seq = append(seq, id)
		}
		out = append(out, seq)
	}
	if len(out) == 0 {
		return nil, errors.New("no token ids given")
	}
	return out, nil
}

// parseLanguage turns a flag value into a language id; -1 means none.
func parseLanguage(id int) nn.LanguageID {
	if id < 0 {
		return nil
	}
	return nn.Monolingual(id)
}
