package dispatch

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/amaumene/showsweep/internal/engine"
	"github.com/amaumene/showsweep/internal/models"
)

// ConsolePrompter asks for a per-show action on the terminal
type ConsolePrompter struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewConsolePrompter creates a prompter reading choices from in
func NewConsolePrompter(in io.Reader, out io.Writer) *ConsolePrompter {
	return &ConsolePrompter{
		in:  bufio.NewScanner(in),
		out: out,
	}
}

// Choose prints the action menu for one eligible show and reads the choice.
// Anything but an explicit 1-3 keeps the show.
func (p *ConsolePrompter) Choose(assessment engine.Assessment) (models.Action, error) {
	year := ""
	if assessment.Year != 0 {
		year = fmt.Sprintf(" (%d)", assessment.Year)
	}
	fmt.Fprintf(p.out, "\nShow: %s%s\n", assessment.Title, year)
	fmt.Fprintln(p.out, "Choose action:")
	fmt.Fprintln(p.out, "  1. delete")
	fmt.Fprintln(p.out, "  2. keep_first_season")
	fmt.Fprintln(p.out, "  3. keep_first_episode")
	fmt.Fprintln(p.out, "  4. keep")
	fmt.Fprint(p.out, "Enter choice [1-4, default=4]: ")

	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return models.ActionKeep, err
		}
		return models.ActionKeep, nil
	}

	switch strings.TrimSpace(p.in.Text()) {
	case "1":
		return models.ActionDelete, nil
	case "2":
		return models.ActionKeepFirstSeason, nil
	case "3":
		return models.ActionKeepFirstEpisode, nil
	default:
		return models.ActionKeep, nil
	}
}
