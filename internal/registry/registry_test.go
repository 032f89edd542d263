package registry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoSpec() Spec {
	return Spec{
		Name:        "echo",
		Category:    CategoryScanner,
		InputSchema: json.RawMessage(`{"type":"object","required":["target"],"properties":{"target":{"type":"string"}}}`),
		Handler: func(ctx context.Context, input json.RawMessage) (Result, error) {
			return Result{Data: "ok"}, nil
		},
	}
}

func TestRegisterAndExecute(t *testing.T) {
	r := New("test")
	require.NoError(t, r.Register(echoSpec()))

	res, err := r.Execute(context.Background(), "echo", []byte(`{"target":"."}`), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Data)
}

func TestExecuteSchemaViolation(t *testing.T) {
	r := New("test")
	require.NoError(t, r.Register(echoSpec()))

	_, err := r.Execute(context.Background(), "echo", []byte(`{}`), time.Second)
	require.Error(t, err)
}

func TestExecuteUnknownTool(t *testing.T) {
	r := New("test")
	_, err := r.Execute(context.Background(), "nope", []byte(`{}`), time.Second)
	require.Error(t, err)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	r := New("test")
	require.NoError(t, r.Register(echoSpec()))
	assert.Panics(t, func() { _ = r.Register(echoSpec()) })
}

func TestNamesSorted(t *testing.T) {
	r := New("test")
	require.NoError(t, r.Register(Spec{Name: "zzz", Category: CategoryFixer, Handler: noopHandler}))
	require.NoError(t, r.Register(Spec{Name: "aaa", Category: CategoryFixer, Handler: noopHandler}))
	assert.Equal(t, []string{"aaa", "zzz"}, r.Names())
}

func noopHandler(ctx context.Context, input json.RawMessage) (Result, error) {
	return Result{}, nil
}
