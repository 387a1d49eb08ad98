package runner

import (
	"strings"
	"testing"
)

func TestLastExpression(t *testing.T) {
	tests := []struct {
		name string
		code string
		expr string
		want bool
	}{
		{"name", "x = 5\nx", "x", true},
		{"arithmetic", "1+1", "1+1", true},
		{"attribute", "import math\nmath.pi", "math.pi", true},
		{"subscript of call", "f(x)[0]", "f(x)[0]", true},
		{"binop with call", "len(xs) + 1", "len(xs) + 1", true},
		{"comparison", "a == b", "a == b", true},
		{"tuple", "a, b", "a, b", true},
		{"list literal", "[1, 2, 3]", "[1, 2, 3]", true},
		{"dict slice colon", "d = {}\n{'a': 1}", "{'a': 1}", true},
		{"slice", "xs[1:3]", "xs[1:3]", true},
		{"conditional", "1 if ok else 2", "1 if ok else 2", true},
		{"negation", "not done", "not done", true},
		{"unary minus call", "-abs(x)", "-abs(x)", true},
		{"string", "'hello'", "'hello'", true},
		{"fstring", `f"{x}!"`, `f"{x}!"`, true},
		{"trailing comment", "x  # show it", "x", true},
		{"trailing blank and comments", "x\n\n# done\n   \n", "x", true},
		{"parenthesised tuple", "(f(x), 1)", "(f(x), 1)", true},
		{"walrus in parens", "(y := 5)", "(y := 5)", true},
		{"crlf", "x = 1\r\nx\r\n", "x", true},

		{"call", "print(1+1)", "print(1+1)", false},
		{"method call", "xs.append(1)", "xs.append(1)", false},
		{"parenthesised call", "(f(x))", "(f(x))", false},
		{"chained call", "f(1)(2)", "f(1)(2)", false},
		{"string method call", "', '.join(xs)", "', '.join(xs)", false},
		{"assignment", "x = 5", "x = 5", false},
		{"augmented", "x += 1", "x += 1", false},
		{"annotated", "x: int = 1", "x: int = 1", false},
		{"bare annotation", "x: int", "x: int", false},
		{"tuple assignment", "a, b = 1, 2", "a, b = 1, 2", false},
		{"import", "import os", "import os", false},
		{"return keyword", "pass", "pass", false},
		{"indented", "for i in range(3):\n    i", "", false},
		{"compound header", "if x:", "if x:", false},
		{"semicolon", "a = 1; a", "a = 1; a", false},
		{"multi-line bracket", "xs = [\n  1,\n]", "", false},
		{"triple string tail", "s = \"\"\"\nabc\n\"\"\"", "", false},
		{"backslash continuation", "x = 1 + \\\n  2", "", false},
		{"python2 print", `print "hi"`, `print "hi"`, false},
		{"two names", "x y", "x y", false},
		{"decorator", "@cache", "@cache", false},
		{"lambda", "lambda: 1", "lambda: 1", false},
		{"only comments", "# nothing\n", "", false},
		{"empty", "", "", false},
		{"unbalanced", "foo)", "foo)", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, _, ok := lastExpression(tt.code)
			if ok != tt.want {
				t.Errorf("lastExpression(%q) ok = %v, want %v", tt.code, ok, tt.want)
			}
			if tt.want && expr != tt.expr {
				t.Errorf("expression = %q, want %q", expr, tt.expr)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	toks, ok := tokenize(`a.b(1e-5, rb'x', **kw) >= 0x1F`)
	if !ok {
		t.Fatal("tokenize failed")
	}
	var got []string
	for _, tok := range toks {
		got = append(got, tok.text)
	}
	want := "a . b ( 1e-5 , rb'x' , ** kw ) >= 0x1F"
	if strings.Join(got, " ") != want {
		t.Errorf("tokens = %q, want %q", strings.Join(got, " "), want)
	}

	if _, ok := tokenize("x = `y`"); ok {
		t.Error("backticks should not tokenize")
	}
}

func TestInstrument(t *testing.T) {
	in := Instrument("x = 2\nx * 21  # answer\n")
	if !in.Display() {
		t.Fatal("expected display")
	}
	if in.Expression != "x * 21" {
		t.Errorf("expression = %q", in.Expression)
	}
	if !strings.Contains(in.Source, resultVar+" = x * 21\n") {
		t.Errorf("last line not rewritten:\n%s", in.Source)
	}
	if strings.Count(in.Source, "x * 21") != 1 {
		t.Errorf("expression must be evaluated once:\n%s", in.Source)
	}
	if !strings.Contains(in.Source, in.Marker) {
		t.Error("marker not printed")
	}

	other := Instrument("x = 2\nx")
	if other.Marker == in.Marker {
		t.Error("markers should differ per run")
	}

	plain := Instrument("print('hi')")
	if plain.Display() || plain.Source != "print('hi')" {
		t.Errorf("call should be left alone: %+v", plain)
	}
}

func TestSplitOutput(t *testing.T) {
	out, val, ok := splitOutput("hello\n\nMARK\n42\n", "MARK")
	if !ok || out != "hello" || val != "42" {
		t.Errorf("splitOutput = %q, %q, %v", out, val, ok)
	}
	if _, _, ok := splitOutput("no marker", "MARK"); ok {
		t.Error("expected no split")
	}
}

func TestRawOutput(t *testing.T) {
	tests := []struct {
		stdout, want string
	}{
		{"a\n\nMARK\n5\n", "a\n"},
		{"\nMARK\n5\n", ""},
		{"  indented\n\nMARK\n5\n", "  indented\n"},
		{"no marker\n", "no marker\n"},
	}
	for _, tt := range tests {
		if got := rawOutput(tt.stdout, "MARK"); got != tt.want {
			t.Errorf("rawOutput(%q) = %q, want %q", tt.stdout, got, tt.want)
		}
	}
}
