package errors

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeNotFound, "module %q not found", "KJV")

	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNotFound)
	}

	if err.Message != `module "KJV" not found` {
		t.Errorf("Message = %v, want %v", err.Message, `module "KJV" not found`)
	}

	expected := `NOT_FOUND: module "KJV" not found`
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrCodeSourceUnreachable, cause, "fetch registry")

	if err.Code != ErrCodeSourceUnreachable {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeSourceUnreachable)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}

	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodeAmbiguous, "test"),
			code:     ErrCodeAmbiguous,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodeAmbiguous, "test"),
			code:     ErrCodeNotFound,
			expected: false,
		},
		{
			name:     "wrapped error",
			err:      Wrap(ErrCodeMalformedRegistry, New(ErrCodeInvalidInput, "inner"), "outer"),
			code:     ErrCodeMalformedRegistry,
			expected: true,
		},
		{
			name:     "non-Error type",
			err:      errors.New("plain error"),
			code:     ErrCodeInvalidInput,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			code:     ErrCodeInvalidInput,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{"Error type", New(ErrCodeExtractionFailed, "test"), ErrCodeExtractionFailed},
		{"plain error", errors.New("plain"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"Error type", New(ErrCodeInvalidInput, "friendly message"), "friendly message"},
		{"plain error", errors.New("plain error"), "plain error"},
		{"wrapped", Wrap(ErrCodeConfig, errors.New("permission denied"), "open store"), "open store: permission denied"},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.expected {
				t.Errorf("UserMessage() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(New(ErrCodeConfig, "no install path")) {
		t.Error("config errors should be fatal")
	}
	if IsFatal(New(ErrCodeSourceUnreachable, "timeout")) {
		t.Error("source errors should not be fatal")
	}
}

func TestMultiError(t *testing.T) {
	if err := NewMultiError(nil); err != nil {
		t.Fatalf("NewMultiError(nil) = %v, want nil", err)
	}

	notFound := New(ErrCodeNotFound, "module %q not found", "ABC")
	err := NewMultiError([]error{notFound, errors.New("disk full")})

	want := "NOT_FOUND: module \"ABC\" not found\ndisk full"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !Is(err, ErrCodeNotFound) {
		t.Error("Is() should find a code inside a MultiError")
	}

	var me *MultiError
	if !errors.As(err, &me) || len(me.Errors()) != 2 {
		t.Errorf("Errors() = %v, want 2 errors", me)
	}
}

func TestValidateModuleName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "KJV", false},
		{"with plus and dash", "RST+-2011", false},
		{"unicode", "Синодальный", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"traversal", "../etc", true},
		{"slash", "a/b", true},
		{"control", "a\tb", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateModuleName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateModuleName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidInput) {
				t.Errorf("error code = %v, want %v", GetCode(err), ErrCodeInvalidInput)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	if err := ValidateURL("https://mybible.zone/repository/registry/registry.zip"); err != nil {
		t.Errorf("valid URL rejected: %v", err)
	}
	for _, u := range []string{"", "ftp://example.com/r.zip", "mybible.zone/registry.zip"} {
		if err := ValidateURL(u); err == nil {
			t.Errorf("ValidateURL(%q) should fail", u)
		}
	}
}
