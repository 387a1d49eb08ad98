package runner

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// lineState carries tokenizer state across physical lines.
type lineState struct {
	depth     int    // open brackets
	quote     string // open string delimiter, "" when outside a string
	continued bool   // previous line ended with a backslash
}

// scanLine advances st over one physical line and returns the byte offset
// of a trailing comment, or -1.
func scanLine(line string, st *lineState) int {
	i := 0
	if st.quote != "" {
		end := closeQuote(line, 0, st.quote)
		if end < 0 {
			if len(st.quote) == 1 && !strings.HasSuffix(line, `\`) {
				st.quote = "" // unterminated; let the interpreter report it
			}
			return -1
		}
		st.quote = ""
		i = end
	}
	st.continued = false

	for i < len(line) {
		c := line[i]
		switch c {
		case '#':
			return i
		case '\'', '"':
			q := string(c)
			if strings.HasPrefix(line[i:], strings.Repeat(q, 3)) {
				q = strings.Repeat(q, 3)
			}
			end := closeQuote(line, i+len(q), q)
			if end < 0 {
				if len(q) == 3 || strings.HasSuffix(line, `\`) {
					st.quote = q
				}
				return -1
			}
			i = end
			continue
		case '(', '[', '{':
			st.depth++
		case ')', ']', '}':
			if st.depth > 0 {
				st.depth--
			}
		case '\\':
			if i == len(line)-1 {
				st.continued = true
			}
		}
		i++
	}
	return -1
}

// closeQuote returns the offset just past the closing delimiter q, or -1.
func closeQuote(s string, from int, q string) int {
	for i := from; i < len(s); i++ {
		switch {
		case s[i] == '\\':
			i++
		case strings.HasPrefix(s[i:], q):
			return i + len(q)
		}
	}
	return -1
}

// lastExpression finds the final statement of code and reports whether it
// is a bare, non-call expression that can be displayed. It returns the
// expression text (without a trailing comment) and its line index.
func lastExpression(code string) (string, int, bool) {
	lines := strings.Split(code, "\n")

	type lineInfo struct {
		logical bool // begins a logical line
		clean   bool // ends a logical line
		code    string
	}
	infos := make([]lineInfo, len(lines))

	var st lineState
	for i, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		logical := st.depth == 0 && st.quote == "" && !st.continued
		c := scanLine(line, &st)
		part := line
		if c >= 0 {
			part = line[:c]
		}
		infos[i] = lineInfo{
			logical: logical,
			clean:   st.depth == 0 && st.quote == "" && !st.continued,
			code:    part,
		}
	}

	for i := len(infos) - 1; i >= 0; i-- {
		info := infos[i]
		if strings.TrimSpace(info.code) == "" {
			continue
		}
		if !info.logical || !info.clean {
			return "", i, false
		}
		if r, _ := utf8.DecodeRuneInString(info.code); unicode.IsSpace(r) {
			return "", i, false
		}
		expr := strings.TrimSpace(info.code)
		return expr, i, isDisplayable(expr)
	}
	return "", -1, false
}

type tokKind int

const (
	tokName tokKind = iota
	tokNumber
	tokString
	tokOp
	tokOpen
	tokClose
)

type token struct {
	kind tokKind
	text string
}

// statementKeywords start a line that cannot be an expression statement
// worth displaying.
var statementKeywords = map[string]bool{
	"assert": true, "async": true, "await": true, "break": true, "class": true,
	"continue": true, "def": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "global": true,
	"if": true, "import": true, "nonlocal": true, "pass": true, "raise": true,
	"return": true, "try": true, "while": true, "with": true, "yield": true,
	"lambda": true,
}

// operatorKeywords may sit between operands.
var operatorKeywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true,
	"if": true, "else": true, "for": true, "async": true, "lambda": true,
	"await": true,
}

// Assignment-like operators at the top level disqualify a line.
var assignOps = map[string]bool{
	"=": true, ":=": true, ":": true, ";": true,
	"+=": true, "-=": true, "*=": true, "/=": true, "//=": true, "%=": true,
	"**=": true, "@=": true, "&=": true, "|=": true, "^=": true, ">>=": true, "<<=": true,
}

var multiOps = []string{
	"**=", "//=", ">>=", "<<=", "...",
	"->", ":=", "==", "!=", "<=", ">=", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "@=",
	"**", "//", "<<", ">>",
}

var stringPrefixes = map[string]bool{
	"r": true, "u": true, "b": true, "f": true,
	"br": true, "rb": true, "fr": true, "rf": true,
}

// tokenize splits a complete logical line into coarse tokens. It returns
// false on anything it does not understand.
func tokenize(s string) ([]token, bool) {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		r, size := utf8.DecodeRuneInString(s[i:])

		switch {
		case c == ' ' || c == '\t':
			i++

		case c == '\'' || c == '"':
			end, ok := stringEnd(s, i)
			if !ok {
				return nil, false
			}
			toks = append(toks, token{tokString, s[i:end]})
			i = end

		case isDigit(c) || (c == '.' && i+1 < len(s) && isDigit(s[i+1])):
			j := i + 1
			for j < len(s) {
				d := s[j]
				if isDigit(d) || isLetter(d) || d == '_' || d == '.' {
					j++
					continue
				}
				if (d == '+' || d == '-') && (s[j-1] == 'e' || s[j-1] == 'E') && !strings.HasPrefix(strings.ToLower(s[i:j]), "0x") {
					j++
					continue
				}
				break
			}
			toks = append(toks, token{tokNumber, s[i:j]})
			i = j

		case r == '_' || unicode.IsLetter(r):
			j := i + size
			for j < len(s) {
				r2, sz := utf8.DecodeRuneInString(s[j:])
				if r2 != '_' && !unicode.IsLetter(r2) && !unicode.IsDigit(r2) {
					break
				}
				j += sz
			}
			word := s[i:j]
			if j < len(s) && (s[j] == '\'' || s[j] == '"') && stringPrefixes[strings.ToLower(word)] {
				end, ok := stringEnd(s, j)
				if !ok {
					return nil, false
				}
				toks = append(toks, token{tokString, s[i:end]})
				i = end
				continue
			}
			toks = append(toks, token{tokName, word})
			i = j

		case c == '(' || c == '[' || c == '{':
			toks = append(toks, token{tokOpen, string(c)})
			i++

		case c == ')' || c == ']' || c == '}':
			toks = append(toks, token{tokClose, string(c)})
			i++

		case strings.ContainsRune("+-*/%@&|^~<>=!.,:;", r):
			op := string(c)
			for _, m := range multiOps {
				if strings.HasPrefix(s[i:], m) {
					op = m
					break
				}
			}
			if op == "!" {
				return nil, false
			}
			toks = append(toks, token{tokOp, op})
			i += len(op)

		default:
			return nil, false
		}
	}
	return toks, true
}

func stringEnd(s string, start int) (int, bool) {
	q := string(s[start])
	if strings.HasPrefix(s[start:], strings.Repeat(q, 3)) {
		q = strings.Repeat(q, 3)
	}
	end := closeQuote(s, start+len(q), q)
	return end, end >= 0
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func (t token) isKeywordOp() bool {
	return t.kind == tokName && operatorKeywords[t.text]
}

// endsOperand and startsOperand detect two operands written side by side,
// which is not valid expression syntax.
func (t token) endsOperand() bool {
	return t.kind == tokNumber || t.kind == tokString || t.kind == tokClose ||
		(t.kind == tokName && !t.isKeywordOp())
}

func (t token) startsOperand() bool {
	return t.kind == tokNumber || t.kind == tokString ||
		(t.kind == tokName && !t.isKeywordOp())
}

// isDisplayable reports whether expr is a bare expression whose outermost
// node is not a call.
func isDisplayable(expr string) bool {
	toks, ok := tokenize(expr)
	if !ok || len(toks) == 0 {
		return false
	}

	first := toks[0]
	switch first.kind {
	case tokName:
		if statementKeywords[first.text] {
			return false
		}
	case tokOp:
		if first.text != "-" && first.text != "+" && first.text != "~" && first.text != "..." {
			return false
		}
	case tokClose:
		return false
	}

	depth := 0
	for i, t := range toks {
		switch t.kind {
		case tokOpen:
			depth++
		case tokClose:
			depth--
			if depth < 0 {
				return false
			}
		case tokOp:
			if depth == 0 && assignOps[t.text] {
				return false
			}
		}
		if depth == 0 && i > 0 {
			prev := toks[i-1]
			if prev.endsOperand() && t.startsOperand() && !(prev.kind == tokString && t.kind == tokString) {
				return false
			}
		}
	}
	if depth != 0 {
		return false
	}

	return !isCall(unwrapParens(toks))
}

// matching returns the index of the bracket closing toks[open], or -1.
func matching(toks []token, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		switch toks[i].kind {
		case tokOpen:
			depth++
		case tokClose:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// unwrapParens strips grouping parentheses that do not form a tuple.
func unwrapParens(toks []token) []token {
	for len(toks) > 2 && toks[0].text == "(" && matching(toks, 0) == len(toks)-1 {
		inner := toks[1 : len(toks)-1]
		depth := 0
		tuple := false
		for _, t := range inner {
			switch {
			case t.kind == tokOpen:
				depth++
			case t.kind == tokClose:
				depth--
			case depth == 0 && t.text == ",":
				tuple = true
			case depth == 0 && t.kind == tokName && (t.text == "yield" || t.text == "for"):
				tuple = true // generator or yield, not plain grouping
			}
		}
		if tuple {
			return toks
		}
		toks = inner
	}
	return toks
}

// isCall reports whether the token run is a primary ending in a call, such
// as f(x), obj.method(), or data[0](y).
func isCall(toks []token) bool {
	n := len(toks)
	if n < 3 || toks[n-1].text != ")" {
		return false
	}

	// Locate the "(" matching the final ")".
	depth := 0
	open := -1
	for i := n - 1; i >= 0; i-- {
		switch toks[i].kind {
		case tokClose:
			depth++
		case tokOpen:
			depth--
		}
		if depth == 0 {
			open = i
			break
		}
	}
	if open <= 0 || toks[open].text != "(" {
		return false
	}

	// Everything before it must be a single primary: names, literals,
	// attribute dots and bracket groups.
	for i := 0; i < open; i++ {
		t := toks[i]
		switch {
		case t.kind == tokOpen:
			end := matching(toks, i)
			if end < 0 || end >= open {
				return false
			}
			i = end
		case t.kind == tokName && !t.isKeywordOp():
		case t.kind == tokNumber, t.kind == tokString:
		case t.kind == tokOp && t.text == ".":
		default:
			return false
		}
	}
	return true
}
