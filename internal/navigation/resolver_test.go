package navigation

import "testing"

func TestResolve(t *testing.T) {
	r := Resolver{}
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{name: "empty", input: "", want: "", wantOK: false},
		{name: "bare domain", input: "example.com", want: "https://example.com", wantOK: true},
		{name: "domain with path", input: "openai.com/research", want: "https://openai.com/research", wantOK: true},
		{name: "http passthrough", input: "http://x.test", want: "http://x.test", wantOK: true},
		{name: "https passthrough", input: "https://x.test/a?b=c", want: "https://x.test/a?b=c", wantOK: true},
		{name: "search words", input: "hello world", want: "https://search.brave.com/search?q=hello%20world", wantOK: true},
		{name: "single word", input: "golang", want: "https://search.brave.com/search?q=golang", wantOK: true},
		{name: "dotted with space", input: "what is go.dev", want: "https://search.brave.com/search?q=what%20is%20go.dev", wantOK: true},
		{name: "dotted with tab", input: "a.b\tc", want: "https://search.brave.com/search?q=a.b%09c", wantOK: true},
		{name: "reserved chars", input: "c++ & go?", want: "https://search.brave.com/search?q=c%2B%2B%20%26%20go%3F", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("Resolve(%q) ok = %v; want %v", tt.input, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Fatalf("Resolve(%q) = %q; want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolveCustomTemplate(t *testing.T) {
	r := NewResolver("https://duckduckgo.com/?q=%s&ia=web")
	got, _ := r.Resolve("hello world")
	if want := "https://duckduckgo.com/?q=hello%20world&ia=web"; got != want {
		t.Fatalf("Resolve() = %q; want %q", got, want)
	}

	r = NewResolver("https://search.test/q/")
	got, _ = r.Resolve("a b")
	if want := "https://search.test/q/a%20b"; got != want {
		t.Fatalf("Resolve() = %q; want %q", got, want)
	}
}

func TestEncodeComponent(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello world", "hello%20world"},
		{"don't (x)!*", "don't%20(x)!*"},
		{"a-b_c.d~e", "a-b_c.d~e"},
		{"1+1=2", "1%2B1%3D2"},
		{"a/b#c", "a%2Fb%23c"},
		{"café", "caf%C3%A9"},
	}
	for _, tt := range tests {
		if got := EncodeComponent(tt.in); got != tt.want {
			t.Errorf("EncodeComponent(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}
