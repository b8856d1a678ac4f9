package main

import (
	"bytes"
	"strings"
	"testing"
)

// setMockTTY sets the TTY override for tests and returns a cleanup function.
// The cleanup function restores the TTY override to nil, allowing real TTY detection.
func setMockTTY(value bool) func() {
	testIsTTYMutex.Lock()
	testIsTTYOverride = &value
	testIsTTYMutex.Unlock()
	return func() {
		testIsTTYMutex.Lock()
		testIsTTYOverride = nil
		testIsTTYMutex.Unlock()
	}
}

func TestRenderTable_TTY_WithHeaders(t *testing.T) {
	defer setMockTTY(true)()

	result := renderTable([]string{"ID", "STARTED", "ACCOUNT"}, [][]string{
		{"01HX", "2024-01-01 00:00:00", "2"},
		{"01HY", "2024-01-01 00:33:20", "-"},
	})

	for _, want := range []string{"ID", "STARTED", "ACCOUNT", "01HX", "01HY", "00:33:20"} {
		if !strings.Contains(result, want) {
			t.Errorf("result should contain %q", want)
		}
	}
	if !strings.Contains(result, "╭") || !strings.Contains(result, "╯") {
		t.Error("TTY table output should have rounded borders")
	}
}

func TestRenderTable_NonTTY_PlainText(t *testing.T) {
	defer setMockTTY(false)()

	result := renderTable([]string{"ID", "TITLE"}, [][]string{
		{"a", "Record 0"},
		{"bbbb", "Record 1"},
	})

	if strings.ContainsAny(result, "─│╭╮╰╯") {
		t.Error("non-TTY output should not contain border characters")
	}
	lines := strings.Split(result, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines:\n%s", len(lines), result)
	}
	if lines[0] != "ID    TITLE" {
		t.Errorf("header = %q, want columns aligned to widest cell", lines[0])
	}
	if lines[1] != "a     Record 0" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestRenderTable_EmptyRows(t *testing.T) {
	defer setMockTTY(false)()

	if got := renderTable([]string{"A", "B"}, nil); got != "A  B" {
		t.Errorf("headers only = %q", got)
	}
}

func TestRenderTable_EmptyHeaders(t *testing.T) {
	defer setMockTTY(true)()

	if got := renderTable(nil, [][]string{{"x"}}); got != "" {
		t.Errorf("expected empty output without headers, got %q", got)
	}
}

func TestRenderTable_RowWidthMismatch(t *testing.T) {
	defer setMockTTY(false)()

	result := renderTable([]string{"A", "B"}, [][]string{
		{"1", "2", "extra"},
		{"3"},
	})
	if strings.Contains(result, "extra") {
		t.Error("cells beyond the header count should be dropped")
	}
	if !strings.Contains(result, "3") {
		t.Error("short rows should still render")
	}
}

func TestRenderPanel(t *testing.T) {
	content := "Records:        42\nSchema version: 2"

	t.Run("tty", func(t *testing.T) {
		defer setMockTTY(true)()
		result := renderPanel("Store Statistics", content)
		if !strings.Contains(result, "╭") {
			t.Error("TTY panel should have border")
		}
		if !strings.Contains(result, "Store Statistics") || !strings.Contains(result, "Records:") {
			t.Error("TTY panel should have title and content")
		}
	})

	t.Run("plain", func(t *testing.T) {
		defer setMockTTY(false)()
		result := renderPanel("Store Statistics", content+"\n")
		want := "Store Statistics\n----------------\n" + content
		if result != want {
			t.Errorf("got %q, want %q", result, want)
		}
	})

	t.Run("plain without title", func(t *testing.T) {
		defer setMockTTY(false)()
		if got := renderPanel("", content); got != content {
			t.Errorf("got %q, want bare content", got)
		}
	})
}

func TestRenderErrorPanel(t *testing.T) {
	t.Run("all sections", func(t *testing.T) {
		defer setMockTTY(false)()
		result := renderErrorPanel("Invalid store ID", "uppercase letters", "Use lowercase")
		for _, want := range []string{"✗ Invalid store ID", "Context: uppercase letters", "Suggestion: Use lowercase"} {
			if !strings.Contains(result, want) {
				t.Errorf("result should contain %q:\n%s", want, result)
			}
		}
	})

	t.Run("error only", func(t *testing.T) {
		defer setMockTTY(false)()
		result := renderErrorPanel("boom", "", "")
		if strings.Contains(result, "Context:") || strings.Contains(result, "Suggestion:") {
			t.Errorf("empty sections should be omitted: %q", result)
		}
	})

	t.Run("tty border", func(t *testing.T) {
		defer setMockTTY(true)()
		if !strings.Contains(renderErrorPanel("boom", "", ""), "╭") {
			t.Error("TTY error panel should have border")
		}
	})
}

func TestRenderConfirmation(t *testing.T) {
	warning := "This will permanently delete all 5 records in store 'default'."
	prompt := "Type 'default' to confirm: "

	t.Run("tty", func(t *testing.T) {
		defer setMockTTY(true)()
		result := renderConfirmation(warning, prompt)
		if !strings.Contains(result, "─") {
			t.Error("TTY confirmation should have separator")
		}
		if !strings.Contains(result, "permanently delete") || !strings.HasSuffix(result, prompt) {
			t.Errorf("unexpected confirmation: %q", result)
		}
	})

	t.Run("plain", func(t *testing.T) {
		defer setMockTTY(false)()
		if got, want := renderConfirmation(warning, prompt), "⚠ "+warning+"\n"+prompt; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})
}

func TestPrintHelpers_NonTTY(t *testing.T) {
	defer setMockTTY(false)()

	var buf bytes.Buffer
	printSuccess(&buf, "loaded %d", 3)
	printWarning(&buf, "careful")
	printField(&buf, "Location", "/tmp/x")
	printMuted(&buf, "quiet")

	want := "✓ loaded 3\n⚠ careful\n  Location: /tmp/x\nquiet\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestRenderMarkdown(t *testing.T) {
	t.Run("plain output untouched", func(t *testing.T) {
		defer setMockTTY(false)()
		if got := renderMarkdown("**bold** notes"); got != "**bold** notes" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("no markdown untouched", func(t *testing.T) {
		defer setMockTTY(true)()
		if got := renderMarkdown("plain notes"); got != "plain notes" {
			t.Errorf("got %q", got)
		}
	})

}

func TestBanner(t *testing.T) {
	banner := renderBannerWithTagline()
	for _, want := range []string{"SPANSTORE", "every record, in its time", version} {
		if !strings.Contains(banner, want) {
			t.Errorf("banner should contain %q", want)
		}
	}
}
