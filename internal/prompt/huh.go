package prompt

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
)

const backValue = "\x00back"

// Huh renders prompts as charmbracelet/huh forms.
type Huh struct {
	in  io.Reader
	out io.Writer
}

type HuhOption func(*Huh)

// WithIO points the forms at in/out instead of the terminal.
func WithIO(in io.Reader, out io.Writer) HuhOption {
	return func(h *Huh) {
		h.in = in
		h.out = out
	}
}

func NewHuh(opts ...HuhOption) *Huh {
	h := &Huh{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Huh) Select(ctx context.Context, title string, options []Option) (string, error) {
	var choice string
	huhOptions := make([]huh.Option[string], 0, len(options)+1)
	for _, o := range options {
		huhOptions = append(huhOptions, huh.NewOption(o.Label, o.Value))
	}
	huhOptions = append(huhOptions, huh.NewOption("← back", backValue))
	field := huh.NewSelect[string]().Title(title).Options(huhOptions...).Value(&choice)
	if err := h.run(ctx, field); err != nil {
		return "", err
	}
	if choice == backValue {
		return "", ErrBack
	}
	return choice, nil
}

func (h *Huh) Input(ctx context.Context, title, placeholder string, validate func(string) error) (string, error) {
	var value string
	field := huh.NewInput().
		Title(title).
		Placeholder(placeholder).
		Description("type \"" + BackKeyword + "\" to return to the previous step").
		Validate(func(s string) error {
			if isBack(s) || validate == nil {
				return nil
			}
			return validate(strings.TrimSpace(s))
		}).
		Value(&value)
	if err := h.run(ctx, field); err != nil {
		return "", err
	}
	if isBack(value) {
		return "", ErrBack
	}
	return strings.TrimSpace(value), nil
}

func (h *Huh) Confirm(ctx context.Context, title, description string) (bool, error) {
	var ok bool
	field := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Submit").
		Negative("Go back").
		Value(&ok)
	if err := h.run(ctx, field); err != nil {
		return false, err
	}
	return ok, nil
}

// run shows one field. A done context is reported as ctx.Err() so the caller
// can tell a process interrupt (session kept) from ctrl+c in the form, which
// is ErrAborted.
func (h *Huh) run(ctx context.Context, field huh.Field) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	form := huh.NewForm(huh.NewGroup(field))
	if h.in != nil {
		form = form.WithInput(h.in)
	}
	if h.out != nil {
		form = form.WithOutput(h.out)
	}
	err := form.RunWithContext(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrAborted
	}
	return err
}

func isBack(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), BackKeyword)
}
