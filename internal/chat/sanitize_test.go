package chat

import "testing"

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"alice":              "alice",
		"al\x00ice\n":        "alice",
		"\x1b[31mred\x1b[0m": "[31mred[0m",
		"tab\there":          "tabhere",
		"bad\xffutf8":        "badutf8",
		"cafe\u0301":         "caf\u00e9",
		"":                   "",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncateUTF8(t *testing.T) {
	if got := truncateUTF8("héllo", 2); got != "h" {
		t.Fatalf("truncateUTF8 split a rune: %q", got)
	}
	if got := truncateUTF8("hi", 10); got != "hi" {
		t.Fatalf("short input changed: %q", got)
	}
}
