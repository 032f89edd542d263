// Package pyfix implements fixengine.Editor for Python source. No
// library in the retrieval pack offers a Python AST for Go — the
// nearest candidates are all Go-source or HCL/YAML/JSON tooling — so
// this editor does targeted, line-anchored regex substitution instead
// of a structural parse. This is the one stdlib-only editor in the
// engine; every other artifact kind has a real parser library behind
// it (see hclfix, yamlfix, jsonfix).
package pyfix

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/remediation-kit/remediation-kit/internal/fixengine"
)

// Editor performs regex-anchored rewrites on a single line, scoped to
// the exact line the finding reported so an unrelated occurrence
// elsewhere in the file is never touched.
type Editor struct{}

// New returns a pyfix Editor.
func New() Editor { return Editor{} }

func (Editor) Edit(pattern fixengine.Pattern, content []byte, line int) ([]byte, error) {
	if pattern.Apply == nil {
		return nil, fmt.Errorf("pyfix: pattern %s has no Apply func", pattern.ID)
	}
	lines := bytes.Split(content, []byte("\n"))
	if line < 1 || line > len(lines) {
		return nil, fmt.Errorf("pyfix: line %d out of range (file has %d lines)", line, len(lines))
	}
	rewritten, err := pattern.Apply(lines[line-1], line)
	if err != nil {
		return nil, err
	}
	lines[line-1] = rewritten
	out := bytes.Join(lines, []byte("\n"))
	if bytes.Contains(rewritten, []byte("os.environ")) {
		out = ensureImport(out, "os")
	}
	return out, nil
}

// ensureImport inserts `import name` when no line already imports it,
// placed after any leading blank lines and `#` comment lines (such as
// a shebang). A leading module docstring is not recognised, so the
// import goes ahead of it.
func ensureImport(content []byte, name string) []byte {
	importLine := []byte("import " + name)
	lines := bytes.Split(content, []byte("\n"))
	for _, l := range lines {
		trimmed := bytes.TrimSpace(l)
		if bytes.Equal(trimmed, importLine) || bytes.HasPrefix(trimmed, []byte("import "+name+" ")) {
			return content
		}
	}
	insertAt := 0
	for insertAt < len(lines) {
		t := bytes.TrimSpace(lines[insertAt])
		if len(t) == 0 || bytes.HasPrefix(t, []byte("#")) {
			insertAt++
			continue
		}
		break
	}
	out := make([][]byte, 0, len(lines)+1)
	out = append(out, lines[:insertAt]...)
	out = append(out, importLine)
	out = append(out, lines[insertAt:]...)
	return bytes.Join(out, []byte("\n"))
}

// hardcodedAssignRe matches `name = "literal"` / `name: str = "literal"`
// assignments, the shape Bandit's B105 (hardcoded password string) flags.
var hardcodedAssignRe = regexp.MustCompile(`^(\s*)(\w+)(\s*(?::\s*\w+\s*)?=\s*)(['"]).*?['"](\s*.*)$`)

// ReplaceHardcodedSecret rewrites a B105-flagged assignment to pull the
// value from the environment instead of embedding it literally, using
// the assigned variable's own name (upper-cased) as the lookup key so
// `API_KEY = "..."` becomes `API_KEY = os.environ["API_KEY"]`. A line
// that already reads from os.environ is returned unchanged (spec §8
// property 5: a second pass over an already-fixed line is a no-op,
// not an error).
func ReplaceHardcodedSecret(line []byte, _ int) ([]byte, error) {
	if bytes.Contains(line, []byte("os.environ")) {
		return line, nil
	}
	m := hardcodedAssignRe.FindSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("pyfix: line does not match a hardcoded-literal assignment")
	}
	indent := m[1]
	varName := strings.ToUpper(string(m[2]))
	op := m[3]
	trailer := m[5]
	replacement := fmt.Sprintf("%s%s%sos.environ[%q]%s", indent, m[2], op, varName, trailer)
	return []byte(replacement), nil
}

// subprocessShellTrueRe matches a subprocess call with shell=True, the
// shape Bandit's B602/B603 family flags as an injection risk.
var subprocessShellTrueRe = regexp.MustCompile(`shell\s*=\s*True`)

// DisableShellTrue flips shell=True to shell=False in place. A line
// that already reads shell=False is returned unchanged rather than
// erroring (spec §8 property 5).
func DisableShellTrue(line []byte, _ int) ([]byte, error) {
	if bytes.Contains(line, []byte("shell=False")) {
		return line, nil
	}
	if !subprocessShellTrueRe.Match(line) {
		return nil, fmt.Errorf("pyfix: line has no shell=True to disable")
	}
	return subprocessShellTrueRe.ReplaceAll(line, []byte("shell=False")), nil
}
