package model

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator approximates token counts for text when a provider response
// carries no usage data. Estimates feed the run ledger, so they should err on
// the side of counting rather than undercounting.
type Estimator interface {
	EstimateTokens(text string) int
}

// TiktokenEstimator counts tokens using a tiktoken BPE encoding.
type TiktokenEstimator struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenEstimator loads the named encoding. An empty name selects
// cl100k_base, which is a reasonable default across current chat models.
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encoding, err)
	}

	return &TiktokenEstimator{encoding: enc}, nil
}

// NewTiktokenEstimatorForModel resolves the encoding from a model name, e.g.
// "gpt-4o" or "gpt-3.5-turbo".
func NewTiktokenEstimatorForModel(model string) (*TiktokenEstimator, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("resolve encoding for model %q: %w", model, err)
	}

	return &TiktokenEstimator{encoding: enc}, nil
}

// EstimateTokens implements Estimator.
func (e *TiktokenEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(e.encoding.Encode(text, nil, nil))
}

// HeuristicEstimator approximates tokens as len(text)/4, the common
// rule of thumb for English prose. Used when no BPE vocabulary is available
// (offline environments, unknown models).
type HeuristicEstimator struct{}

// EstimateTokens implements Estimator.
func (HeuristicEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
