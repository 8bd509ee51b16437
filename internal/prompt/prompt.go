// Package prompt asks the operator yes/no questions.
//
// Every recoverable decision in the launcher goes through a single Prompter,
// so interactive, assume-yes, non-interactive and scripted (test) answers are
// interchangeable.
package prompt

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInterrupted is returned when the operator interrupts a prompt (Ctrl+C).
var ErrInterrupted = errors.New("prompt interrupted")

// Prompter asks a yes/no question. def is the answer used when the operator
// just presses Enter; it must be the non-destructive choice.
type Prompter interface {
	Confirm(question string, def bool) (bool, error)
}

// Suffix returns the choice hint shown after a question, with the default
// capitalised: "[y/N]" or "[Y/n]".
func Suffix(def bool) string {
	if def {
		return "[Y/n]"
	}
	return "[y/N]"
}

// ParseAnswer interprets an operator reply. Empty input selects def.
// ok is false when the reply is not recognisable.
func ParseAnswer(reply string, def bool) (answer bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "":
		return def, true
	case "y", "yes":
		return true, true
	case "n", "no":
		return false, true
	default:
		return false, false
	}
}

// Auto answers without reading input. With Yes set every question is
// answered yes; otherwise each question's default is taken. The question and
// the chosen answer are echoed to Out so the transcript stays readable.
type Auto struct {
	Yes bool
	Out io.Writer
}

// Confirm implements Prompter.
func (a Auto) Confirm(question string, def bool) (bool, error) {
	answer := def
	if a.Yes {
		answer = true
	}
	if a.Out != nil {
		fmt.Fprintf(a.Out, "%s %s %s\n", question, Suffix(def), word(answer))
	}
	return answer, nil
}

// Scripted replays fixed answers in order and records the questions asked.
// Running out of answers is an error.
type Scripted struct {
	Answers   []bool
	Questions []string
}

// NewScripted creates a Scripted prompter with the given answers.
func NewScripted(answers ...bool) *Scripted {
	return &Scripted{Answers: answers}
}

// Confirm implements Prompter.
func (s *Scripted) Confirm(question string, def bool) (bool, error) {
	s.Questions = append(s.Questions, question)
	if len(s.Answers) == 0 {
		return false, fmt.Errorf("no scripted answer for question: %s", question)
	}
	answer := s.Answers[0]
	s.Answers = s.Answers[1:]
	return answer, nil
}

func word(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
