package yamlfix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remediation-kit/remediation-kit/internal/fixengine"
)

// TestEditSetsExistingKey verifies SetMappingKey rewrites an existing
// key's value in place within the mapping closest to the finding line,
// matching the CKV_K8S_16 "disable privileged" shape.
func TestEditSetsExistingKey(t *testing.T) {
	content := []byte(`apiVersion: v1
kind: Pod
spec:
  containers:
  - name: app
    securityContext:
      privileged: true
`)
	pattern := fixengine.Pattern{ID: "yaml-k8s-disable-privileged", Apply: SetMappingKey("privileged", "false")}
	e := New()

	out, err := e.Edit(pattern, content, 7)
	require.NoError(t, err)
	assert.Contains(t, string(out), "privileged: false")
	assert.NotContains(t, string(out), "privileged: true")
}

// TestEditAddsMissingKey verifies SetMappingKey appends key when it
// was absent from the target mapping.
func TestEditAddsMissingKey(t *testing.T) {
	content := []byte(`apiVersion: v1
kind: Pod
spec:
  containers:
  - name: app
    securityContext: {}
`)
	pattern := fixengine.Pattern{ID: "yaml-k8s-disable-privileged", Apply: SetMappingKey("privileged", "false")}
	e := New()

	out, err := e.Edit(pattern, content, 6)
	require.NoError(t, err)
	assert.Contains(t, string(out), "privileged: false")
}

func TestEditNoMappingAtLineErrors(t *testing.T) {
	content := []byte("- 1\n- 2\n")
	pattern := fixengine.Pattern{ID: "yaml-k8s-disable-privileged", Apply: SetMappingKey("privileged", "false")}
	e := New()

	_, err := e.Edit(pattern, content, 1)
	require.Error(t, err)
}
