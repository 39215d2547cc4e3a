package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestPFErrorFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      *PFError
		wantErr  string
		wantUser string
	}{
		{
			name:     "what only",
			err:      &PFError{What: "something broke"},
			wantErr:  "something broke",
			wantUser: "Error: something broke",
		},
		{
			name:     "what and why",
			err:      &PFError{What: "something broke", Why: "bad input"},
			wantErr:  "something broke: bad input",
			wantUser: "Error: something broke\n\nWhy: bad input",
		},
		{
			name: "full error",
			err: &PFError{
				What: "something broke",
				Why:  "bad input",
				Fix:  "try again",
			},
			wantErr:  "something broke: bad input",
			wantUser: "Error: something broke\n\nWhy: bad input\n\nFix: try again",
		},
		{
			name: "with cause",
			err: &PFError{
				What:  "something broke",
				Cause: errors.New("underlying error"),
			},
			wantErr:  "something broke: underlying error",
			wantUser: "Error: something broke",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantErr {
				t.Errorf("Error() = %q, want %q", got, tt.wantErr)
			}
			if got := tt.err.UserMessage(); got != tt.wantUser {
				t.Errorf("UserMessage() = %q, want %q", got, tt.wantUser)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *PFError
		want int
	}{
		{ErrWorkflowNotFound("wf"), 404},
		{ErrPresetNotFound("wf", "p"), 404},
		{ErrPresetInvalid("empty name"), 400},
		{ErrPresetLimit("wf", 50), 409},
		{ErrImportInvalid("bad version"), 400},
		{ErrUserInvalid("x"), 400},
		{ErrProfileKeyReserved("sys_today"), 400},
		{ErrConfigInvalid("server.port", "out of range"), 400},
		{ErrConfigMissing("database.path"), 400},
		{ErrStoreUnavailable(errors.New("down")), 503},
		{Wrap(errors.New("x"), "wrapped"), 500},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			if got := tt.err.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("save: %w", ErrPresetNotFound("wf", "a"))

	if !errors.Is(err, ErrPresetNotFound("other", "b")) {
		t.Error("expected errors.Is to match by code")
	}
	if errors.Is(err, ErrWorkflowNotFound("wf")) {
		t.Error("did not expect a different code to match")
	}
}

func TestAsPFError(t *testing.T) {
	base := ErrUserInvalid("nope")
	wrapped := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", base))

	if got := AsPFError(wrapped); got != base {
		t.Errorf("AsPFError() = %v, want %v", got, base)
	}
	if got := AsPFError(errors.New("plain")); got != nil {
		t.Errorf("AsPFError(plain) = %v, want nil", got)
	}
	if got := AsPFError(nil); got != nil {
		t.Errorf("AsPFError(nil) = %v, want nil", got)
	}
}

func TestWithCause(t *testing.T) {
	cause := errors.New("disk full")
	orig := ErrStoreUnavailable(nil)
	withCause := orig.WithCause(cause)

	if orig.Cause != nil {
		t.Error("WithCause must not modify the original")
	}
	if !errors.Is(withCause, cause) {
		t.Error("expected cause in chain")
	}
}

func TestMarshalJSON(t *testing.T) {
	err := ErrPresetLimit("blog", 50).WithCause(errors.New("count=50"))

	data, mErr := json.Marshal(err)
	if mErr != nil {
		t.Fatalf("Marshal: %v", mErr)
	}

	var decoded map[string]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["code"] != string(CodePresetLimit) {
		t.Errorf("code = %q", decoded["code"])
	}
	if decoded["cause"] != "count=50" {
		t.Errorf("cause = %q", decoded["cause"])
	}
	if decoded["fix"] == "" {
		t.Error("expected fix in JSON")
	}
}
