package eqdoc

import (
	"strings"
	"testing"
)

func TestSplit(t *testing.T) {
	raw := "*$a = b$**$c^2$**\\[ d \\vec{B} = x \\]"
	got := Split(raw)
	want := []string{"$a = b$", "$c^2$", "\\[ d \\vec{B} = x \\]"}
	if len(got) != len(want) {
		t.Fatalf("expected %d equations, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("equation %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSplitIgnoresEmptySegments(t *testing.T) {
	if got := Split("** ** $x$ **"); len(got) != 1 || got[0] != "$x$" {
		t.Errorf("expected single equation, got %v", got)
	}
}

func TestBuildProducesDocument(t *testing.T) {
	doc, err := Build(Request{EquationsRaw: "$E = mc^2$**$F = ma$", Title: "Physics"})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	text := string(doc)

	for _, want := range []string{
		"\\documentclass",
		"\\begin{document}",
		"\\end{document}",
		"Physics",
		"$E = mc^2$",
		"$F = ma$",
		"Equation 1",
		"Equation 2",
		"\\begin{verbatim}",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("document missing %q", want)
		}
	}
	if strings.Contains(text, "\\clearpage") {
		t.Error("page breaks not requested")
	}
}

func TestBuildPageBreaks(t *testing.T) {
	doc, err := Build(Request{EquationsRaw: "$a$**$b$", PageBreakBetween: true})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if n := strings.Count(string(doc), "\\clearpage"); n != 1 {
		t.Errorf("expected 1 page break between 2 equations, got %d", n)
	}
	if !strings.Contains(string(doc), DefaultTitle) {
		t.Error("missing default title")
	}
}

func TestBuildRejectsEmpty(t *testing.T) {
	if _, err := Build(Request{EquationsRaw: "   "}); err == nil {
		t.Error("blank submission must be rejected")
	}
	if _, err := Build(Request{EquationsRaw: "** ** **"}); err == nil {
		t.Error("delimiter-only submission must be rejected")
	}
}

func TestEscapeTitle(t *testing.T) {
	doc, err := Build(Request{EquationsRaw: "$x$", Title: "50% & #1_best"})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	text := string(doc)
	if !strings.Contains(text, "50\\% \\& \\#1\\_best") {
		t.Errorf("title not escaped: %s", text)
	}
}
