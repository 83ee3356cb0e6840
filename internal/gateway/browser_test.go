package gateway

import "testing"

func TestEscapeText(t *testing.T) {
	tests := map[string]string{
		"Bom dia, *Maria*":   "Bom%20dia%2C%20%2AMaria%2A",
		"a&b=c":              "a%26b%3Dc",
		"1 + 1":              "1%20%2B%201",
		"linha\nnova":        "linha%0Anova",
		"vínculo":            "v%C3%ADnculo",
	}
	for in, want := range tests {
		if got := escapeText(in); got != want {
			t.Fatalf("escapeText(%q) = %q, want %q", in, got, want)
		}
	}
}
