// Package jsonfix implements fixengine.Editor for JSON documents
// (package.json, raw scanner configs) using evanphx/json-patch's
// RFC 6902 operations, so edits are expressed as an explicit patch
// rather than a decode/mutate/encode round-trip that risks reordering
// keys or losing number formatting.
package jsonfix

import (
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/remediation-kit/remediation-kit/internal/fixengine"
)

// Editor hands the whole document to the Pattern's Apply func, which
// is expected to return an RFC 6902 patch document (not the rewritten
// content itself), such as ReplaceAtPointer or AddAtPointer below;
// Edit applies it.
type Editor struct{}

// New returns a jsonfix Editor.
func New() Editor { return Editor{} }

func (Editor) Edit(pattern fixengine.Pattern, content []byte, line int) ([]byte, error) {
	if pattern.Apply == nil {
		return nil, fmt.Errorf("jsonfix: pattern %s has no Apply func", pattern.ID)
	}
	patchDoc, err := pattern.Apply(content, line)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.DecodePatch(patchDoc)
	if err != nil {
		return nil, fmt.Errorf("jsonfix: invalid patch from pattern %s: %w", pattern.ID, err)
	}
	out, err := patch.Apply(content)
	if err != nil {
		return nil, fmt.Errorf("jsonfix: patch did not apply: %w", err)
	}
	return out, nil
}

// ReplaceAtPointer returns a Pattern.Apply func that ignores its input
// content and always emits a single "replace" patch op at path,
// setting it to value (already-JSON-encoded).
func ReplaceAtPointer(path string, valueJSON string) func([]byte, int) ([]byte, error) {
	return func(_ []byte, _ int) ([]byte, error) {
		return []byte(fmt.Sprintf(`[{"op":"replace","path":%q,"value":%s}]`, path, valueJSON)), nil
	}
}

// AddAtPointer is like ReplaceAtPointer but uses "add", which also
// creates the key if it does not yet exist.
func AddAtPointer(path string, valueJSON string) func([]byte, int) ([]byte, error) {
	return func(_ []byte, _ int) ([]byte, error) {
		return []byte(fmt.Sprintf(`[{"op":"add","path":%q,"value":%s}]`, path, valueJSON)), nil
	}
}
