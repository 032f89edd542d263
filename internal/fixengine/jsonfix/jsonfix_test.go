package jsonfix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remediation-kit/remediation-kit/internal/fixengine"
)

func TestEditAddAtPointerCreatesMissingField(t *testing.T) {
	content := []byte(`{"name": "left-pad", "version": "1.0.0"}`)
	pattern := fixengine.Pattern{ID: "json-add-integrity-field", Apply: AddAtPointer("/integrity", `""`)}
	e := New()

	out, err := e.Edit(pattern, content, 1)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"integrity":""`)
}

func TestEditReplaceAtPointerOverwritesExistingField(t *testing.T) {
	content := []byte(`{"securityContext": {"allowPrivilegeEscalation": true}}`)
	pattern := fixengine.Pattern{ID: "json-k8s-disable-privilege-escalation", Apply: ReplaceAtPointer("/securityContext/allowPrivilegeEscalation", "false")}
	e := New()

	out, err := e.Edit(pattern, content, 1)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"allowPrivilegeEscalation":false`)
}

func TestEditReplaceAtPointerMissingPathFails(t *testing.T) {
	content := []byte(`{"name": "left-pad"}`)
	pattern := fixengine.Pattern{ID: "json-k8s-disable-privilege-escalation", Apply: ReplaceAtPointer("/securityContext/allowPrivilegeEscalation", "false")}
	e := New()

	_, err := e.Edit(pattern, content, 1)
	require.Error(t, err)
}

func TestEditNoApplyFuncErrors(t *testing.T) {
	content := []byte(`{}`)
	pattern := fixengine.Pattern{ID: "no-apply"}
	e := New()

	_, err := e.Edit(pattern, content, 1)
	require.Error(t, err)
}
