package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/infobase/internal/account"
	"github.com/roach88/infobase/internal/query"
	"github.com/roach88/infobase/internal/store"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Success(map[string]string{"result": "success"}, nil)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"result": "success"}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("ignored", func(w io.Writer) {
		fmt.Fprintln(w, "custom")
	}))
	require.NoError(t, formatter.Success("plain", nil))
	assert.Equal(t, "custom\nplain\n", buf.String())
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	details := map[string]string{"key": "/k1"}
	require.NoError(t, formatter.Error("PERMISSION_DENIED", "write failed", details))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PERMISSION_DENIED", resp.Error.Code)
	assert.Equal(t, "write failed", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, formatter.Error("E_COMMAND", "boom", "more"))
	assert.Equal(t, "Error [E_COMMAND]: boom\nDetails: more\n", buf.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	quiet := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}
	quiet.VerboseLog("hidden %d", 1)
	assert.Empty(t, errOut.String())

	loud := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}
	loud.VerboseLog("shown %d", 2)
	assert.Equal(t, "shown 2\n", errOut.String())
	assert.Empty(t, out.String())
}

func TestErrorCodeAndClassify(t *testing.T) {
	denied := &query.Error{Code: query.ErrCodePermissionDenied, Key: "/k1", Message: "denied"}
	taken := &account.Error{Code: account.ErrCodeUsernameTaken, Username: "alice", Message: "taken"}
	exists := fmt.Errorf("create: %w", &store.AlreadyExistsError{Name: "wiki"})
	invalid := fmt.Errorf("create: %w", store.ErrInvalidName)
	other := errors.New("disk on fire")

	tests := []struct {
		name string
		err  error
		code string
		exit int
	}{
		{"query", denied, "PERMISSION_DENIED", ExitFailure},
		{"account", taken, "USERNAME_TAKEN", ExitFailure},
		{"exists", exists, "ALREADY_EXISTS", ExitFailure},
		{"invalid name", invalid, "INVALID_NAME", ExitCommandError},
		{"other", other, "E_COMMAND", ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ErrorCode(tt.err))

			exitErr := classify("failed", tt.err)
			assert.Equal(t, tt.exit, exitErr.Code)
			assert.ErrorIs(t, exitErr, tt.err)
		})
	}
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Fail("write failed", &query.Error{Code: query.ErrCodeUnknownType, Message: "no such type"})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "UNKNOWN_TYPE", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "write failed")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitFailure, "y"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
