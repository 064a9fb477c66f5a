// Package quiz supplies subject questions for the capture quiz gate.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoQuestions = errors.New("quiz: no questions for subject")
	ErrInvalid     = errors.New("quiz: invalid question")
)

var letters = []string{"A", "B", "C", "D"}

// Question is a four-choice question. Answer is the correct letter.
type Question struct {
	ID      string   `json:"id" yaml:"id"`
	Subject string   `json:"subject" yaml:"-"`
	Text    string   `json:"question" yaml:"question"`
	Choices []string `json:"choices" yaml:"choices"`
	Answer  string   `json:"answer" yaml:"answer"`
}

// Provider returns the next question for a subject.
type Provider interface {
	NextQuestion(ctx context.Context, subject string) (Question, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, subject string) (Question, error)

func (f ProviderFunc) NextQuestion(ctx context.Context, subject string) (Question, error) {
	return f(ctx, subject)
}

// Validate checks the four-choice shape.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrInvalid)
	}
	if len(q.Choices) != len(letters) {
		return fmt.Errorf("%w: want %d choices, got %d", ErrInvalid, len(letters), len(q.Choices))
	}
	if letterIndex(q.Answer) < 0 {
		return fmt.Errorf("%w: answer %q", ErrInvalid, q.Answer)
	}
	return nil
}

// Labeled renders choices as "A: text".
func (q Question) Labeled() []string {
	out := make([]string, len(q.Choices))
	for i, c := range q.Choices {
		if i < len(letters) {
			out[i] = letters[i] + ": " + c
		} else {
			out[i] = c
		}
	}
	return out
}

// Check accepts the letter or the full choice text, case-insensitive.
func (q Question) Check(answer string) bool {
	want := letterIndex(q.Answer)
	if want < 0 {
		return false
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return false
	}
	if idx := letterIndex(answer); idx >= 0 {
		return idx == want
	}
	// "B: 56" 형태도 허용
	if i := strings.Index(answer, ":"); i == 1 {
		return letterIndex(answer[:1]) == want
	}
	return want < len(q.Choices) && strings.EqualFold(answer, strings.TrimSpace(q.Choices[want]))
}

// Placeholder is served when a subject has no questions at all.
func Placeholder(subject string) Question {
	return Question{
		ID:      "placeholder",
		Subject: subject,
		Text:    "Which letter comes first in the alphabet?",
		Choices: []string{"A", "B", "C", "D"},
		Answer:  "A",
	}
}

// WithFallback serves Placeholder when p has no questions for the subject.
// Other errors pass through.
func WithFallback(p Provider) Provider {
	return ProviderFunc(func(ctx context.Context, subject string) (Question, error) {
		q, err := p.NextQuestion(ctx, subject)
		if errors.Is(err, ErrNoQuestions) {
			return Placeholder(subject), nil
		}
		return q, err
	})
}

func letterIndex(s string) int {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, l := range letters {
		if s == l {
			return i
		}
	}
	return -1
}
