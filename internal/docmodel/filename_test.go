package docmodel

import "testing"

func TestDeriveFilename(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		title string
		want  string
	}{
		{"punctuation collapses", "1", "Getting Started: FAQ!", "getting-started-faq.html"},
		{"no retainable characters", "4711", "!!!", "4711.html"},
		{"empty title", "9", "", "9.html"},
		{"diacritics folded", "2", "Café Über Naïve", "cafe-uber-naive.html"},
		{"digits kept", "3", "Release 3.1.2 Notes", "release-3-1-2-notes.html"},
		{"leading and trailing separators trimmed", "5", "  --Hello World--  ", "hello-world.html"},
		{"mixed case", "6", "CXF JAX-RS", "cxf-jax-rs.html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveFilename(tt.id, tt.title)
			if got != tt.want {
				t.Fatalf("DeriveFilename(%q, %q) = %q, want %q", tt.id, tt.title, got, tt.want)
			}
			if again := DeriveFilename(tt.id, tt.title); again != got {
				t.Fatalf("DeriveFilename not stable: %q then %q", got, again)
			}
		})
	}
}
