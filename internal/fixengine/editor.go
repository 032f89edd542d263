package fixengine

// Editor performs one artifact kind's structural edit given a
// Pattern and the target file's current bytes. Five concrete editors
// live in the pyfix/hclfix/yamlfix/jsonfix/textfix sibling packages;
// Engine selects one by ArtifactKind at Apply time.
type Editor interface {
	Edit(pattern Pattern, content []byte, line int) ([]byte, error)
}

// EditorFunc adapts a plain function to the Editor interface.
type EditorFunc func(pattern Pattern, content []byte, line int) ([]byte, error)

func (f EditorFunc) Edit(pattern Pattern, content []byte, line int) ([]byte, error) {
	return f(pattern, content, line)
}
