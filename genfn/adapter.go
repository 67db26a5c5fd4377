package genfn

import (
	"context"
	"fmt"

	calcflow "github.com/calcflow/calcflow-go"
)

// Adapter is the external-function strategy: it asks the generation
// service for an evaluate routine, validates the response, and produces an
// interpreted evaluator the dispatcher can activate. The adapter contains
// no generation logic itself, and a validation failure leaves whatever
// evaluator was previously active untouched.
type Adapter struct {
	client *Client
}

// NewAdapter creates an adapter over a generation client.
func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

// Generate requests an evaluate routine for the formula, validates it and
// builds the interpreted evaluator. The returned id correlates the request
// for supersession detection; it is valid even on error.
func (a *Adapter) Generate(ctx context.Context, formula string, inputs, targets []string) (calcflow.Evaluator, string, error) {
	if len(targets) == 0 {
		return nil, "", &calcflow.ConfigError{Reason: "no computed variables"}
	}

	req := BuildRequest(formula, inputs, targets)
	text, requestID, err := a.client.Generate(ctx, req)
	if err != nil {
		return nil, requestID, err
	}
	if err := Validate(text, formula, inputs, targets); err != nil {
		return nil, requestID, err
	}
	evaluator, err := BuildEvaluator(text)
	if err != nil {
		return nil, requestID, err
	}
	return evaluator, requestID, nil
}

// Activate builds an evaluator from already-obtained generated text,
// running the same validation as Generate. Used by callers that transport
// the generation response themselves.
func (a *Adapter) Activate(text, formula string, inputs, targets []string) (calcflow.Evaluator, error) {
	if err := Validate(text, formula, inputs, targets); err != nil {
		return nil, err
	}
	evaluator, err := BuildEvaluator(text)
	if err != nil {
		return nil, fmt.Errorf("building evaluator: %w", err)
	}
	return evaluator, nil
}
