// Package tokenizer turns text into token ids for the translator.
//
// The translator's vocabulary is external to this module. For smoke runs and
// diagnostics, text is tokenized with a tiktoken encoding and the resulting
// ids are folded into the model vocabulary:
//
//	tok, err := tokenizer.NewTikToken("cl100k_base")
//	folded, err := tokenizer.NewFolded(tok, cfg.SourceVocab, 4)
//	ids, err := folded.Encode("Hallo Welt")
package tokenizer
