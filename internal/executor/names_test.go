package executor

import "testing"

func TestSanitizeEnvName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple name",
			input:    "releasepipe-1a2b3c4d-linux",
			expected: "releasepipe-1a2b3c4d-linux",
		},
		{
			name:     "uppercase to lowercase",
			input:    "ReleasePipe-Windows",
			expected: "releasepipe-windows",
		},
		{
			name:     "special chars to hyphens",
			input:    "releasepipe_run.mac os",
			expected: "releasepipe-run-mac-os",
		},
		{
			name:     "consecutive special chars",
			input:    "release___pipe--x",
			expected: "release-pipe-x",
		},
		{
			name:     "leading/trailing special chars",
			input:    "_releasepipe_",
			expected: "releasepipe",
		},
		{
			name:     "long name truncated",
			input:    "terminal-bench-llm-inference-batching-scheduler-oracle-1-1734567890",
			expected: "terminal-bench-llm-inference-batching-scheduler-oracle-1-1734567",
		},
		{
			name:     "truncation removes trailing hyphen",
			input:    "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa-b",
			expected: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sanitizeEnvName(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeEnvName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
			if len(result) > maxAppNameLength {
				t.Errorf("sanitizeEnvName(%q) length %d exceeds max %d", tt.input, len(result), maxAppNameLength)
			}
		})
	}
}

func TestIsPrerelease(t *testing.T) {
	tests := map[string]bool{
		"v1.2.0":        false,
		"v2.0.0-rc.1":   true,
		"1.0.0-beta":    true,
		"v1.2":          false,
		"nightly":       false,
		"v1.0.0+build5": false,
	}
	for tag, want := range tests {
		if got := isPrerelease(tag); got != want {
			t.Errorf("isPrerelease(%q) = %v, want %v", tag, got, want)
		}
	}
}
