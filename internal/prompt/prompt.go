// Package prompt asks the user for wizard answers.
package prompt

import (
	"context"
	"errors"
)

var (
	// ErrBack means the user asked to return to the previous step.
	ErrBack = errors.New("prompt: back")
	// ErrAborted means the user interrupted the prompt (ctrl+c / esc).
	ErrAborted = errors.New("prompt: aborted")
)

// BackKeyword typed into an input or chosen from a select goes back a step.
const BackKeyword = "back"

type Option struct {
	Label string
	Value string
}

type Prompter interface {
	Select(ctx context.Context, title string, options []Option) (string, error)
	Input(ctx context.Context, title, placeholder string, validate func(string) error) (string, error)
	Confirm(ctx context.Context, title, description string) (bool, error)
}
