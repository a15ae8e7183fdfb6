package gml

import "fmt"

type Kind int

const (
	Whitespace Kind = iota
	Comment
	Identifier
	Keyword
	Number
	String
	Punctuation
)

func (k Kind) String() string {
	switch k {
	case Whitespace:
		return "whitespace"
	case Comment:
		return "comment"
	case Identifier:
		return "identifier"
	case Keyword:
		return "keyword"
	case Number:
		return "number"
	case String:
		return "string"
	case Punctuation:
		return "punctuation"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Skippable kinds carry no meaning for the scanners.
func (k Kind) Skippable() bool {
	return k == Whitespace || k == Comment
}

// Span locates a token inside the source of one resource. Offset and Length
// are byte counts.
type Span struct {
	Resource string `json:"resource"`
	Offset   int    `json:"offset"`
	Length   int    `json:"length"`
}

func (s Span) End() int {
	return s.Offset + s.Length
}

type Token struct {
	Kind   Kind
	Text   string
	Span   Span
	Line   int
	Column int

	// Unterminated is set for strings and block comments that run off the end
	// of their line or of the input.
	Unterminated bool
}

func (t Token) String() string {
	return fmt.Sprintf("%s %q at %d:%d", t.Kind, t.Text, t.Line, t.Column)
}

func (t Token) Is(kind Kind, text string) bool {
	return t.Kind == kind && t.Text == text
}

var keywords = map[string]bool{
	"var": true, "globalvar": true, "static": true, "function": true,
	"constructor": true, "return": true, "exit": true, "if": true,
	"then": true, "else": true, "while": true, "do": true, "until": true,
	"for": true, "repeat": true, "switch": true, "case": true,
	"default": true, "break": true, "continue": true, "with": true,
	"new": true, "delete": true, "enum": true, "try": true, "catch": true,
	"finally": true, "throw": true, "and": true, "or": true, "not": true,
	"xor": true, "div": true, "mod": true, "begin": true, "end": true,
	"self": true, "other": true, "all": true, "noone": true,
	"global": true, "true": true, "false": true, "undefined": true,
	"infinity": true, "NaN": true, "pi": true,
}

func IsKeyword(word string) bool {
	return keywords[word]
}

var directives = map[string]bool{
	"macro": true, "region": true, "endregion": true, "define": true,
}

// operators is ordered longest first so the first prefix match wins.
var operators = []string{
	"??=",
	"<<=", ">>=",
	"==", "!=", "<=", ">=", "<>", "&&", "||", "^^", "++", "--",
	"+=", "-=", "*=", "/=", "%=", "|=", "&=", "^=", "<<", ">>",
	"??", ":=", "[@", "[?", "[|", "[#", "[$",
}
