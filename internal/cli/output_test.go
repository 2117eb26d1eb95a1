package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(RewriteOutput{Mode: "expression", Rewritten: "c ? xs.Count() : ys.Count()"}))

	var resp struct {
		Status string        `json:"status"`
		Data   RewriteOutput `json:"data"`
		Error  *CLIError     `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "c ? xs.Count() : ys.Count()", resp.Data.Rewritten)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	details := map[string]string{"code": "EXPRESSION_TOO_DEEP", "node": "xs.Count()"}
	require.NoError(t, formatter.Error(ErrCodeRewrite, "rewrite failed", details))

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string            `json:"code"`
			Message string            `json:"message"`
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeRewrite, resp.Error.Code)
	assert.Equal(t, "rewrite failed", resp.Error.Message)
	assert.Equal(t, details, resp.Error.Details)
}

func TestOutputFormatter_JSONErrorOmitsEmptyDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error(ErrCodeParse, "unexpected end of input", nil))
	assert.NotContains(t, buf.String(), "details")
	assert.NotContains(t, buf.String(), `"data"`)
}

func TestOutputFormatter_Text(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		details any
		want    string
	}{
		{
			name: "quiet",
			details: map[string]string{
				"code": "INCOMPATIBLE_BRANCH_TYPES",
			},
			want: "Error [E202]: rewrite failed\n",
		},
		{
			name:    "verbose map sorted by key",
			verbose: true,
			details: map[string]string{
				"node": "e.ReviewAsPrimary ? e.ReviewIssues : e.Projects",
				"code": "INCOMPATIBLE_BRANCH_TYPES",
			},
			want: "Error [E202]: rewrite failed\n" +
				"  code: INCOMPATIBLE_BRANCH_TYPES\n" +
				"  node: e.ReviewAsPrimary ? e.ReviewIssues : e.Projects\n",
		},
		{
			name:    "verbose other details",
			verbose: true,
			details: []string{"Employee"},
			want:    "Error [E202]: rewrite failed\nDetails: [Employee]\n",
		},
		{
			name:    "verbose without details",
			verbose: true,
			want:    "Error [E202]: rewrite failed\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error(ErrCodeRewrite, "rewrite failed", tt.details))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("✓ Schema valid (5 entities)"))
	assert.Equal(t, "✓ Schema valid (5 entities)\n", buf.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		errWriter bool
		wantOut   string
		wantErr   string
	}{
		{name: "disabled", verbose: false, errWriter: true},
		{name: "to err writer", verbose: true, errWriter: true, wantErr: "Rewriting query Employee\n"},
		{name: "falls back to writer", verbose: true, wantOut: "Rewriting query Employee\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: out, Verbose: tt.verbose}
			if tt.errWriter {
				formatter.ErrWriter = errOut
			}

			formatter.VerboseLog("Rewriting query %s", "Employee")
			assert.Equal(t, tt.wantOut, out.String())
			assert.Equal(t, tt.wantErr, errOut.String())
		})
	}
}

func TestOutputFormatter_JSON(t *testing.T) {
	assert.True(t, (&OutputFormatter{Format: "json"}).JSON())
	assert.False(t, (&OutputFormatter{Format: "text"}).JSON())
	assert.True(t, (&RootOptions{Format: "json"}).JSON())
}

func TestExitError(t *testing.T) {
	base := errors.New("no such dataset")

	plain := NewExitError(ExitCommandError, "unknown dataset")
	assert.Equal(t, "unknown dataset", plain.Error())
	assert.Nil(t, plain.Unwrap())

	wrapped := WrapExitError(ExitFailure, "translation failed", base)
	assert.Equal(t, "translation failed: no such dataset", wrapped.Error())
	assert.ErrorIs(t, wrapped, base)

	outer := fmt.Errorf("sql: %w", wrapped)
	assert.Equal(t, ExitFailure, GetExitCode(outer))
	assert.Equal(t, ExitCommandError, GetExitCode(plain))
	assert.Equal(t, ExitFailure, GetExitCode(base))
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
}
