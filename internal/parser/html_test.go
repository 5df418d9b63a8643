package parser

import (
	"strings"
	"testing"
)

func TestPlainText(t *testing.T) {
	p := NewBodyParser()

	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "empty",
			html: "",
			want: "",
		},
		{
			name: "simple paragraphs",
			html: "<p>Hello</p><p>World</p>",
			want: "Hello\nWorld",
		},
		{
			name: "strips scripts and styles",
			html: "<style>body{color:red}</style><script>alert(1)</script><p>Visible</p>",
			want: "Visible",
		},
		{
			name: "strips invisible characters",
			html: "<p>Hel​lo</p>",
			want: "Hello",
		},
		{
			name: "list items on own lines",
			html: "<ul><li>one</li><li>two</li></ul>",
			want: "one\ntwo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.PlainText(tt.html)
			if err != nil {
				t.Fatalf("PlainText: %v", err)
			}
			if got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.html, got, tt.want)
			}
		})
	}
}

func TestSnippet(t *testing.T) {
	p := NewBodyParser()

	t.Run("short text passes through", func(t *testing.T) {
		if got := p.Snippet("hello world", 120); got != "hello world" {
			t.Errorf("Snippet = %q", got)
		}
	})

	t.Run("collapses whitespace", func(t *testing.T) {
		if got := p.Snippet("hello\n\n  world", 120); got != "hello world" {
			t.Errorf("Snippet = %q", got)
		}
	})

	t.Run("flattens html", func(t *testing.T) {
		if got := p.Snippet("<p>hello</p><p>world</p>", 120); got != "hello world" {
			t.Errorf("Snippet = %q", got)
		}
	})

	t.Run("truncates long text with ellipsis", func(t *testing.T) {
		got := p.Snippet(strings.Repeat("a", 200), 120)
		if !strings.HasSuffix(got, "…") {
			t.Errorf("Snippet = %q, want trailing ellipsis", got)
		}
		if len([]rune(got)) != 121 {
			t.Errorf("Snippet length = %d runes, want 121", len([]rune(got)))
		}
	})

	t.Run("truncates on rune boundaries", func(t *testing.T) {
		got := p.Snippet(strings.Repeat("й", 200), 10)
		if want := strings.Repeat("й", 10) + "…"; got != want {
			t.Errorf("Snippet = %q, want %q", got, want)
		}
	})
}
