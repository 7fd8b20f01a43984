package format

import "testing"

func TestEscapeMarkdownV1(t *testing.T) {
	got, err := EscapeMarkdown("a_b *c* [link]", MarkdownV1)
	if err != nil {
		t.Fatalf("EscapeMarkdown: %v", err)
	}
	want := `a\_b \*c\* \[link]`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	got, err := EscapeMarkdown("v2.0 (beta)!", MarkdownV2)
	if err != nil {
		t.Fatalf("EscapeMarkdown: %v", err)
	}
	want := `v2\.0 \(beta\)\!`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEscapeMarkdownPlainTextUnchanged(t *testing.T) {
	got, err := EscapeMarkdown("plain text", MarkdownV1)
	if err != nil {
		t.Fatalf("EscapeMarkdown: %v", err)
	}
	if got != "plain text" {
		t.Fatalf("got %q, want unchanged input", got)
	}
}

func TestEscapeMarkdownUnknownVersion(t *testing.T) {
	if _, err := EscapeMarkdown("x", 3); err == nil {
		t.Fatal("want error for unsupported version")
	}
}
