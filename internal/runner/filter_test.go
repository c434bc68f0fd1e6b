package runner

import "testing"

func TestStripTitleSequences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no escapes", "hello\n", "hello\n"},
		{"bel terminated", "\x1b]0;user@host: /tmp\x07hello", "hello"},
		{"st terminated", "\x1b]2;title\x1b\\world", "world"},
		{"mid chunk", "a\x1b]0;t\x07b", "ab"},
		{"color codes kept", "\x1b[31mred\x1b[0m", "\x1b[31mred\x1b[0m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripTitleSequences(tt.in); got != tt.want {
				t.Errorf("StripTitleSequences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripBanner(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"windows banner",
			"Microsoft Windows [Version 10.0.19045]\r\n(c) Microsoft Corporation. All rights reserved.\r\n\r\nhello\n",
			"hello\n",
		},
		{"no banner untouched", "hello\nworld\n", "hello\nworld\n"},
		{"leading blank lines kept", "\n\nhello\n", "\n\nhello\n"},
		{"banner only", "Microsoft Windows [Version 10.0]", ""},
		{"banner lookalike later kept", "out\nMicrosoft Windows [x]\n", "out\nMicrosoft Windows [x]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripBanner(tt.in); got != tt.want {
				t.Errorf("StripBanner(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
