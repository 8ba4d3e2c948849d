package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncErrorFormatting(t *testing.T) {
	err := NewParseError(ErrCodeParseFailed, "invalid block", errors.New("line 3"))
	err.WithPath("/c/req.bru").WithCollection("c1")

	assert.Equal(t, "[ERR_PARSE_FAILED] collection:c1 /c/req.bru invalid block: line 3", err.Error())
	assert.True(t, err.Recoverable)
}

func TestSyncErrorIs(t *testing.T) {
	a := NewIOError(ErrCodeReadFailed, "read a", nil)
	b := NewIOError(ErrCodeReadFailed, "read b", nil)
	c := NewIOError(ErrCodeWriteFailed, "write", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
	assert.False(t, errors.Is(a, errors.New("plain")))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeIO, ErrCodeReadFailed, "x"))

	base := fs.ErrNotExist
	wrapped := WrapIO(base, ErrCodeReadFailed, "/c/a.bru", "read request file")
	require.NotNil(t, wrapped)
	assert.Equal(t, ErrorTypeIO, wrapped.Type)
	assert.Equal(t, "/c/a.bru", wrapped.Path)
	assert.True(t, errors.Is(wrapped, fs.ErrNotExist))
	assert.True(t, wrapped.Recoverable)

	// Wrapping a SyncError keeps its location.
	inner := NewParseError(ErrCodeParseFailed, "bad", nil).WithPath("/c/b.bru").WithCollection("c1")
	outer := Wrap(inner, ErrorTypeInternal, ErrCodeInternalError, "worker")
	assert.Equal(t, "/c/b.bru", outer.Path)
	assert.Equal(t, "c1", outer.Collection)
	assert.True(t, IsParseError(inner))
	assert.False(t, IsParseError(errors.New("plain")))

	cfg := WrapConfig(errors.New("eof"), "/c/bruno.json", "decode bruno.json")
	assert.False(t, cfg.Recoverable)
	assert.True(t, IsType(cfg, ErrorTypeConfig))
}

func TestIsResourceLimit(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"enospc", syscall.ENOSPC, true},
		{"emfile", syscall.EMFILE, true},
		{"wrapped enospc", fmt.Errorf("add watch: %w", syscall.ENOSPC), true},
		{"path error", &os.PathError{Op: "inotify_add_watch", Path: "/c", Err: syscall.EMFILE}, true},
		{"typed", NewResourceLimitError("too many watches", nil), true},
		{"other errno", syscall.EACCES, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsResourceLimit(tc.err))
		})
	}
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(NewParseError(ErrCodeParseFailed, "x", nil)))
	assert.False(t, IsRecoverable(NewSecretError("x", nil)))
	assert.False(t, IsRecoverable(errors.New("plain")))
}

type recordingLogger struct {
	warns  []string
	errors []string
	fields [][]interface{}
}

func (r *recordingLogger) Error(_ context.Context, _ error, msg string, fields ...interface{}) {
	r.errors = append(r.errors, msg)
	r.fields = append(r.fields, fields)
}

func (r *recordingLogger) Warn(_ context.Context, _ error, msg string, fields ...interface{}) {
	r.warns = append(r.warns, msg)
	r.fields = append(r.fields, fields)
}

func TestErrorHandler(t *testing.T) {
	logger := &recordingLogger{}
	h := NewErrorHandler(logger)
	ctx := context.Background()

	h.Handle(ctx, nil, "ignored")
	h.Handle(ctx, NewParseError(ErrCodeParseFailed, "bad", nil).WithPath("/c/a.bru"), "parse failed")
	h.Handle(ctx, NewInternalError(ErrCodeInternalError, "oops", nil), "internal")
	h.Handle(ctx, errors.New("plain"), "plain")

	assert.Equal(t, []string{"parse failed"}, logger.warns)
	assert.Equal(t, []string{"internal", "plain"}, logger.errors)
	assert.Contains(t, logger.fields[0], "/c/a.bru")
}

func TestFormatError(t *testing.T) {
	inner := NewParseError(ErrCodeParseFailed, "unterminated block", nil).WithPath("/c/a.bru")
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), "boom"},
		{"sync", NewValidationError(ErrCodeValidationFailed, "outside the collection").WithCollection("c1"), "outside the collection"},
		{"with path", inner, "/c/a.bru: unterminated block"},
		{"wrapped", WrapParse(inner, "/c/a.bru", "request parse failed"), "/c/a.bru: request parse failed: unterminated block"},
		{"io cause", WrapIO(errors.New("permission denied"), ErrCodeReadFailed, "/c/b.bru", "read failed"), "/c/b.bru: read failed: permission denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatError(tt.err))
		})
	}
}

func TestErrorHandlerLogsContext(t *testing.T) {
	logger := &recordingLogger{}
	h := NewErrorHandler(logger)

	err := NewSecretError("failed to decrypt secret", nil).
		WithContext("variable", "apiKey").
		WithContext("environment", "dev")
	h.Handle(context.Background(), err, "Secret left without a value")

	require.Len(t, logger.fields, 1)
	fields := logger.fields[0]
	assert.Equal(t, []interface{}{"environment", "dev", "variable", "apiKey"}, fields[len(fields)-4:])
}
