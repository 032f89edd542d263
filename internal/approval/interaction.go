package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// InteractionPort collects a human sign-off for a Pending decision.
// Production wiring is a terminal prompt (CLIPort below); tests
// substitute a scripted port.
type InteractionPort interface {
	Confirm(ctx context.Context, summary string) (bool, error)
}

// CLIPort prompts on the given reader/writer, the same IOStreams
// shape the teacher's CLI commands accept for testability.
type CLIPort struct {
	In  io.Reader
	Out io.Writer
}

// Confirm prints summary and blocks for a y/n answer.
func (p CLIPort) Confirm(ctx context.Context, summary string) (bool, error) {
	fmt.Fprintf(p.Out, "%s\napprove? [y/N]: ", summary)
	scanner := bufio.NewScanner(p.In)
	if !scanner.Scan() {
		return false, scanner.Err()
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes", nil
}

// AutoDenyPort always declines, used for --dry-run and non-interactive runs.
type AutoDenyPort struct{}

func (AutoDenyPort) Confirm(ctx context.Context, summary string) (bool, error) {
	return false, nil
}
