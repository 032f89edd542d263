// Package textfix implements fixengine.Editor for plain-text and
// unrecognized artifact kinds using line-oriented string surgery: the
// simplest possible editor, serving as the fallback when no
// structure-aware editor claims a file extension.
package textfix

import (
	"bytes"
	"fmt"

	"github.com/remediation-kit/remediation-kit/internal/fixengine"
)

// Editor rewrites one line of content, delegating the actual
// substitution to the Pattern's Apply function and only providing
// line-splitting/joining plumbing around it.
type Editor struct{}

// New returns a textfix Editor.
func New() Editor { return Editor{} }

func (Editor) Edit(pattern fixengine.Pattern, content []byte, line int) ([]byte, error) {
	if pattern.Apply == nil {
		return nil, fmt.Errorf("textfix: pattern %s has no Apply func", pattern.ID)
	}
	lines := bytes.Split(content, []byte("\n"))
	if line < 1 || line > len(lines) {
		return nil, fmt.Errorf("textfix: line %d out of range (file has %d lines)", line, len(lines))
	}
	rewritten, err := pattern.Apply(lines[line-1], line)
	if err != nil {
		return nil, err
	}
	lines[line-1] = rewritten
	return bytes.Join(lines, []byte("\n")), nil
}
