package gml

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tokenizer produces a lossless token stream: concatenating the Text of every
// token yields the input. Malformed input never fails; unterminated strings
// and comments become a single best-effort token.
type Tokenizer struct {
	src      string
	resource string
	pos      int
	line     int
	col      int
}

func NewTokenizer(src, resource string) *Tokenizer {
	return &Tokenizer{src: src, resource: resource, line: 1, col: 1}
}

// Reset rewinds the tokenizer to the start of its input.
func (t *Tokenizer) Reset() {
	t.pos = 0
	t.line = 1
	t.col = 1
}

func (t *Tokenizer) Next() (Token, bool) {
	if t.pos >= len(t.src) {
		return Token{}, false
	}
	kind, end, unterminated := scan(t.src, t.pos)
	text := t.src[t.pos:end]
	if text != "" && kind == Identifier && (IsKeyword(text) || strings.HasPrefix(text, "#")) {
		kind = Keyword
	}
	tok := Token{
		Kind:         kind,
		Text:         text,
		Span:         Span{Resource: t.resource, Offset: t.pos, Length: end - t.pos},
		Line:         t.line,
		Column:       t.col,
		Unterminated: unterminated,
	}
	t.advance(text)
	t.pos = end
	return tok, true
}

func (t *Tokenizer) advance(text string) {
	if nl := strings.LastIndexByte(text, '\n'); nl >= 0 {
		t.line += strings.Count(text, "\n")
		t.col = 1 + utf8.RuneCountInString(text[nl+1:])
		return
	}
	t.col += utf8.RuneCountInString(text)
}

func Tokenize(src, resource string) []Token {
	tz := NewTokenizer(src, resource)
	var tokens []Token
	for {
		tok, ok := tz.Next()
		if !ok {
			return tokens
		}
		tokens = append(tokens, tok)
	}
}

// Significant drops whitespace and comments.
func Significant(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		if !tok.Kind.Skippable() {
			out = append(out, tok)
		}
	}
	return out
}

// scan returns the kind and end offset of the token starting at pos.
func scan(src string, pos int) (Kind, int, bool) {
	c := src[pos]
	next := byte(0)
	if pos+1 < len(src) {
		next = src[pos+1]
	}
	switch {
	case isSpace(c):
		end := pos + 1
		for end < len(src) && isSpace(src[end]) {
			end++
		}
		return Whitespace, end, false
	case c == '/' && next == '/':
		end := strings.IndexByte(src[pos:], '\n')
		if end < 0 {
			return Comment, len(src), false
		}
		return Comment, pos + end, false
	case c == '/' && next == '*':
		end := strings.Index(src[pos+2:], "*/")
		if end < 0 {
			return Comment, len(src), true
		}
		return Comment, pos + 2 + end + 2, false
	case c == '"' || c == '\'':
		end, unterminated := scanQuoted(src, pos+1, c)
		return String, end, unterminated
	case c == '@' && (next == '"' || next == '\''):
		end := strings.IndexByte(src[pos+2:], next)
		if end < 0 {
			return String, len(src), true
		}
		return String, pos + 2 + end + 1, false
	case c == '$' && next == '"':
		end, unterminated := scanTemplate(src, pos+2)
		return String, end, unterminated
	case c == '$' && isHexDigit(next):
		return Number, scanDigits(src, pos+1, isHexDigit), false
	case c == '0' && (next == 'x' || next == 'X') && pos+2 < len(src) && isHexDigit(src[pos+2]):
		return Number, scanDigits(src, pos+2, isHexDigit), false
	case c == '0' && (next == 'b' || next == 'B') && pos+2 < len(src) && isBinaryDigit(src[pos+2]):
		return Number, scanDigits(src, pos+2, isBinaryDigit), false
	case isDigit(c) || (c == '.' && isDigit(next)):
		return Number, scanDecimal(src, pos), false
	case c == '#':
		return scanHash(src, pos)
	}

	r, w := utf8.DecodeRuneInString(src[pos:])
	if isIdentStart(r) {
		return Identifier, scanIdent(src, pos+w), false
	}
	for _, op := range operators {
		if strings.HasPrefix(src[pos:], op) {
			return Punctuation, pos + len(op), false
		}
	}
	return Punctuation, pos + w, false
}

// scanQuoted handles regular strings. They may not span lines; a newline ends
// the token as unterminated without consuming the newline.
func scanQuoted(src string, pos int, quote byte) (int, bool) {
	for pos < len(src) {
		switch src[pos] {
		case '\\':
			if pos+1 < len(src) && src[pos+1] != '\n' {
				pos += 2
				continue
			}
			pos++
		case quote:
			return pos + 1, false
		case '\n':
			if pos > 0 && src[pos-1] == '\r' {
				return pos - 1, true
			}
			return pos, true
		default:
			pos++
		}
	}
	return len(src), true
}

// scanTemplate handles $"..{expr}.." strings. Expressions are scanned with
// the full tokenizer so strings and braces nested inside them are honored.
func scanTemplate(src string, pos int) (int, bool) {
	for pos < len(src) {
		switch src[pos] {
		case '\\':
			if pos+1 < len(src) && src[pos+1] != '\n' {
				pos += 2
				continue
			}
			pos++
		case '"':
			return pos + 1, false
		case '\n':
			if pos > 0 && src[pos-1] == '\r' {
				return pos - 1, true
			}
			return pos, true
		case '{':
			end, ok := scanTemplateExpr(src, pos+1)
			if !ok {
				return end, true
			}
			pos = end
		default:
			pos++
		}
	}
	return len(src), true
}

// scanTemplateExpr returns the offset just past the closing brace.
func scanTemplateExpr(src string, pos int) (int, bool) {
	depth := 1
	for pos < len(src) {
		switch src[pos] {
		case '{':
			depth++
			pos++
			continue
		case '}':
			depth--
			pos++
			if depth == 0 {
				return pos, true
			}
			continue
		}
		_, end, unterminated := scan(src, pos)
		if unterminated {
			return end, false
		}
		pos = end
	}
	return len(src), false
}

func scanDecimal(src string, pos int) int {
	pos = scanDigits(src, pos, isDigit)
	if pos < len(src) && src[pos] == '.' {
		pos = scanDigits(src, pos+1, isDigit)
	}
	if pos < len(src) && (src[pos] == 'e' || src[pos] == 'E') {
		exp := pos + 1
		if exp < len(src) && (src[exp] == '+' || src[exp] == '-') {
			exp++
		}
		if exp < len(src) && isDigit(src[exp]) {
			pos = scanDigits(src, exp, isDigit)
		}
	}
	return pos
}

// scanDigits consumes digits accepted by ok plus '_' separators.
func scanDigits(src string, pos int, ok func(byte) bool) int {
	for pos < len(src) && (ok(src[pos]) || src[pos] == '_') {
		pos++
	}
	return pos
}

// scanHash handles #macro style directives and #RRGGBB colour literals.
func scanHash(src string, pos int) (Kind, int, bool) {
	end := scanIdent(src, pos+1)
	word := src[pos+1 : end]
	if directives[word] {
		return Identifier, end, false
	}
	if len(word) == 6 && strings.IndexFunc(word, func(r rune) bool { return r > 0x7f || !isHexDigit(byte(r)) }) < 0 {
		return Number, end, false
	}
	return Punctuation, pos + 1, false
}

func scanIdent(src string, pos int) int {
	for pos < len(src) {
		r, w := utf8.DecodeRuneInString(src[pos:])
		if !isIdentPart(r) {
			break
		}
		pos += w
	}
	return pos
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isBinaryDigit(c byte) bool {
	return c == '0' || c == '1'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// IsIdentifier reports whether s is a valid, non-keyword GML identifier.
func IsIdentifier(s string) bool {
	if s == "" || IsKeyword(s) {
		return false
	}
	for i, r := range s {
		if i == 0 && !isIdentStart(r) {
			return false
		}
		if !isIdentPart(r) {
			return false
		}
	}
	return true
}
