package logger

import (
	"errors"
	"testing"
)

func TestSanitizer_Sanitize(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "password",
			input:    "login with password=secret123",
			expected: "login with password=***",
		},
		{
			name:     "token",
			input:    "auth token=abc123xyz",
			expected: "auth token=***",
		},
		{
			name:     "token in query string",
			input:    "POST https://hooks.example.com/in?token=abc123&site=a",
			expected: "POST https://hooks.example.com/in?token=***&site=a",
		},
		{
			name:     "bearer token",
			input:    "Authorization: Bearer eyJhbGc...",
			expected: "Authorization: bearer ***",
		},
		{
			name:     "presigned url",
			input:    "put ?X-Amz-Signature=deadbeef&X-Amz-Date=1",
			expected: "put ?X-Amz-Signature=***&X-Amz-Date=1",
		},
		{
			name:     "windows user path",
			input:    "file at C:\\Users\\john\\Documents\\file.txt",
			expected: "file at ***:\\Users\\***\\Documents\\file.txt",
		},
		{
			name:     "unix home path",
			input:    "watching /home/john/scans",
			expected: "watching /home/***/scans",
		},
		{
			name:     "email partial mask",
			input:    "user email: john.doe@example.com",
			expected: "user email: joh***@example.com",
		},
		{
			name:     "no sensitive data",
			input:    "normal log message",
			expected: "normal log message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.Sanitize(tt.input)
			if result != tt.expected {
				t.Errorf("Sanitize() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSanitizer_SanitizeArgs(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name     string
		input    []any
		validate func([]any) bool
	}{
		{
			name:  "password key-value",
			input: []any{"user", "john", "password", "secret123"},
			validate: func(result []any) bool {
				return len(result) == 4 && result[3] == "s***3"
			},
		},
		{
			name:  "authorization header",
			input: []any{"Authorization", "Bearer abcdefghij"},
			validate: func(result []any) bool {
				return result[1] == "B***j"
			},
		},
		{
			name:  "error value under sensitive key",
			input: []any{"token_error", errors.New("abc")},
			validate: func(result []any) bool {
				return result[1] == "a***"
			},
		},
		{
			name:  "token inside innocuous value",
			input: []any{"url", "https://h/in?token=abc123"},
			validate: func(result []any) bool {
				return result[1] == "https://h/in?token=***"
			},
		},
		{
			name:  "no sensitive data",
			input: []any{"file", "test.txt", "size", 1024},
			validate: func(result []any) bool {
				return len(result) == 4 && result[1] == "test.txt" && result[3] == 1024
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.SanitizeArgs(tt.input)
			if !tt.validate(result) {
				t.Errorf("SanitizeArgs() validation failed for %v", result)
			}
		})
	}
}

func TestSanitizer_SanitizeArgs_DoesNotMutateInput(t *testing.T) {
	s := NewSanitizer()
	in := []any{"password", "secret123"}
	s.SanitizeArgs(in)
	if in[1] != "secret123" {
		t.Errorf("input slice was modified: %v", in)
	}
}

func TestSanitizer_AddRule(t *testing.T) {
	s := NewSanitizer()

	if err := s.AddRule(`workstation=\S+`, "workstation=***"); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	result := s.Sanitize("upload from workstation=desk-07 ok")
	if result != "upload from workstation=*** ok" {
		t.Errorf("unexpected result %q", result)
	}

	if err := s.AddRule(`(`, "x"); err == nil {
		t.Error("AddRule should reject an invalid pattern")
	}
}

func TestMaskValue(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"ab", "***"},
		{"abc", "a***"},
		{"abcdefgh", "a***"},
		{"abcdefghi", "a***i"},
		{"verylongpassword", "v***d"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := maskValue(tt.input); result != tt.expected {
				t.Errorf("maskValue(%s) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"password", true},
		{"user_password", true},
		{"PASSWORD", true},
		{"token", true},
		{"api_key", true},
		{"Authorization", true},
		{"s3_secret_key", true},
		{"username", false},
		{"file", false},
		{"workstation", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := isSensitiveKey(tt.input); result != tt.expected {
				t.Errorf("isSensitiveKey(%s) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}
