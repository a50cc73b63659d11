package agent

import (
	"context"

	"github.com/evaproject/eva/internal/inference"
)

// Generator is the slice of the model manager the cognitive core needs.
type Generator interface {
	Generate(ctx context.Context, model, system, prompt string, temperature float64) (*inference.GenerateResponse, error)
}
