package prompt

import (
	"errors"
	"fmt"
	"io"

	"github.com/chzyer/readline"

	"github.com/tsingmao/vidlaunch/internal/logger"
)

// Terminal reads answers from the controlling terminal with readline.
//
// Unrecognised replies re-ask the question. When input is closed (EOF, e.g.
// stdin is not a terminal) the default answer is taken. Ctrl+C returns
// ErrInterrupted.
type Terminal struct {
	// Stdin and Stdout override the readline defaults when set.
	Stdin  io.ReadCloser
	Stdout io.Writer
}

// NewTerminal creates a Terminal bound to the process stdin/stdout.
func NewTerminal() *Terminal {
	return &Terminal{}
}

// Confirm implements Prompter.
func (t *Terminal) Confirm(question string, def bool) (bool, error) {
	cfg := &readline.Config{
		Prompt:          fmt.Sprintf("%s %s: ", question, Suffix(def)),
		HistoryLimit:    -1,
		InterruptPrompt: "^C",
	}
	if t.Stdin != nil {
		cfg.Stdin = t.Stdin
	}
	if t.Stdout != nil {
		cfg.Stdout = t.Stdout
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		return false, fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				return false, ErrInterrupted
			}
			if errors.Is(err, io.EOF) {
				logger.Debug("No input for prompt, using default answer: %s", word(def))
				return def, nil
			}
			return false, fmt.Errorf("failed to read answer: %w", err)
		}

		if answer, ok := ParseAnswer(line, def); ok {
			return answer, nil
		}
		fmt.Fprintln(rl.Stdout(), "Please answer 'y' or 'n'.")
	}
}
