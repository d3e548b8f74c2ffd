package workflow

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Confirmer answers yes/no questions before mutations are applied.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

type stdinConfirmer struct {
	in          io.Reader
	out         io.Writer
	assumeYes   bool
	interactive bool
}

// NewConfirmer builds the standard confirmer. With assumeYes every prompt is
// answered affirmatively. Without it, prompts are only asked on a real
// terminal; a non-interactive stdin answers no so scripted runs cannot mutate
// by accident.
func NewConfirmer(in *os.File, out io.Writer, assumeYes bool) Confirmer {
	return &stdinConfirmer{
		in:          in,
		out:         out,
		assumeYes:   assumeYes,
		interactive: isatty.IsTerminal(in.Fd()) || isatty.IsCygwinTerminal(in.Fd()),
	}
}

func (c *stdinConfirmer) Confirm(prompt string) (bool, error) {
	if c.assumeYes {
		return true, nil
	}
	if !c.interactive {
		return false, nil
	}

	fmt.Fprintf(c.out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && line == "" {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// StaticConfirmer answers every prompt with a fixed value. Used by tests and
// by the --yes flag path when no terminal is attached.
type StaticConfirmer bool

func (s StaticConfirmer) Confirm(string) (bool, error) { return bool(s), nil }
