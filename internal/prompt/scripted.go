package prompt

import (
	"context"
	"fmt"
	"strings"
)

// Answer is one canned reply for Scripted. Err, when set, is returned
// instead of the value.
type Answer struct {
	Value string
	Yes   bool
	Err   error
}

// Scripted replays canned answers in order. It drives the wizard in
// non-interactive runs and in tests.
type Scripted struct {
	answers []Answer
	Asked   []string
}

func NewScripted(answers ...Answer) *Scripted {
	return &Scripted{answers: answers}
}

func (s *Scripted) next(title string) (Answer, error) {
	s.Asked = append(s.Asked, title)
	if len(s.answers) == 0 {
		return Answer{}, fmt.Errorf("no scripted answer for %q", title)
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, a.Err
}

func (s *Scripted) Remaining() int { return len(s.answers) }

func (s *Scripted) Select(_ context.Context, title string, options []Option) (string, error) {
	a, err := s.next(title)
	if err != nil {
		return "", err
	}
	if isBack(a.Value) {
		return "", ErrBack
	}
	for _, o := range options {
		if o.Value == a.Value {
			return a.Value, nil
		}
	}
	return "", fmt.Errorf("scripted answer %q is not one of the options for %q", a.Value, title)
}

func (s *Scripted) Input(_ context.Context, title, _ string, validate func(string) error) (string, error) {
	a, err := s.next(title)
	if err != nil {
		return "", err
	}
	if isBack(a.Value) {
		return "", ErrBack
	}
	v := strings.TrimSpace(a.Value)
	if validate != nil {
		if err := validate(v); err != nil {
			return "", err
		}
	}
	return v, nil
}

func (s *Scripted) Confirm(_ context.Context, title, _ string) (bool, error) {
	a, err := s.next(title)
	if err != nil {
		return false, err
	}
	return a.Yes, nil
}
