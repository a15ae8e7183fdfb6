package gml

import (
	"fmt"
	"regexp"
)

type FunctionDeclaration struct {
	Name     string `json:"name"`
	Resource string `json:"resource"`
	// Signature covers the function keyword through the closing parenthesis
	// of the parameter list.
	Signature   Span     `json:"signature"`
	Line        int      `json:"line"`
	Column      int      `json:"column"`
	Params      []string `json:"params"`
	Constructor bool     `json:"constructor"`

	NameToken Token `json:"-"`
}

type ScanError struct {
	Resource string
	Line     int
	Column   int
	Msg      string
}

func (e *ScanError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.Resource, e.Line, e.Column, e.Msg)
}

// FindOuterFunctions returns the named functions declared at the outermost
// scope of src. Functions nested in a block or inside a parenthesized
// expression are not globally visible and are skipped.
func FindOuterFunctions(src, resource string) ([]FunctionDeclaration, error) {
	tokens := Significant(Tokenize(src, resource))
	var decls []FunctionDeclaration
	braces, parens := 0, 0
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case opensBlock(tok):
			braces++
		case closesBlock(tok):
			braces--
			if braces < 0 {
				return nil, &ScanError{Resource: resource, Line: tok.Line, Column: tok.Column, Msg: fmt.Sprintf("unexpected %q", tok.Text)}
			}
		case tok.Is(Punctuation, "("):
			parens++
		case tok.Is(Punctuation, ")"):
			if parens > 0 {
				parens--
			}
		case tok.Is(Keyword, "function") && braces == 0 && parens == 0:
			decl, last, ok := readDeclaration(tokens, i)
			if !ok {
				continue
			}
			decls = append(decls, decl)
			i = last
		}
	}
	return decls, nil
}

// readDeclaration parses `function name(params) [: Parent(args)] [constructor]`
// starting at tokens[i]. It returns the index of the last token consumed.
func readDeclaration(tokens []Token, i int) (FunctionDeclaration, int, bool) {
	fn := tokens[i]
	if i+2 >= len(tokens) || tokens[i+1].Kind != Identifier || !tokens[i+2].Is(Punctuation, "(") {
		return FunctionDeclaration{}, i, false
	}
	name := tokens[i+1]
	decl := FunctionDeclaration{
		Name:      name.Text,
		Resource:  name.Span.Resource,
		Line:      fn.Line,
		Column:    fn.Column,
		NameToken: name,
	}

	depth := 0
	last := i + 2
	expectParam := true
	for j := i + 2; j < len(tokens); j++ {
		last = j
		t := tokens[j]
		switch {
		case t.Is(Punctuation, "("):
			depth++
			continue
		case t.Is(Punctuation, ")"):
			depth--
		case depth == 1 && t.Is(Punctuation, ","):
			expectParam = true
			continue
		case depth == 1 && expectParam && t.Kind == Identifier:
			decl.Params = append(decl.Params, t.Text)
		}
		expectParam = false
		if depth == 0 {
			break
		}
	}
	decl.Signature = Span{Resource: fn.Span.Resource, Offset: fn.Span.Offset, Length: tokens[last].Span.End() - fn.Span.Offset}

	j := last + 1
	if j+1 < len(tokens) && tokens[j].Is(Punctuation, ":") && tokens[j+1].Kind == Identifier {
		j += 2
		if j < len(tokens) && tokens[j].Is(Punctuation, "(") {
			depth := 0
			for ; j < len(tokens); j++ {
				if tokens[j].Is(Punctuation, "(") {
					depth++
				} else if tokens[j].Is(Punctuation, ")") {
					depth--
					if depth == 0 {
						j++
						break
					}
				}
			}
		}
	}
	if j < len(tokens) && tokens[j].Is(Keyword, "constructor") {
		decl.Constructor = true
		last = j
	}
	return decl, last, true
}

func opensBlock(t Token) bool {
	return t.Is(Punctuation, "{") || t.Is(Keyword, "begin")
}

func closesBlock(t Token) bool {
	return t.Is(Punctuation, "}") || t.Is(Keyword, "end")
}

type Role int

const (
	Usage Role = iota
	Declaration
)

func (r Role) String() string {
	if r == Declaration {
		return "declaration"
	}
	return "usage"
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

type Reference struct {
	Name     string `json:"name"`
	Resource string `json:"resource"`
	Role     Role   `json:"role"`
	Span     Span   `json:"span"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

type ReferenceOptions struct {
	// Resource names the owner of the scanned source.
	Resource string
	// SuffixPattern is a regular expression that must match the text right
	// after the identifier, e.g. `\s*\(` to find call sites only.
	SuffixPattern string
	// IncludeSelf keeps the occurrence located at the target token's own span.
	IncludeSelf bool
}

// FindTokenReferences returns every identifier in src whose text equals the
// target's. Matching is purely lexical: scope and type are not considered, so
// an unrelated local with the same name is reported too.
func FindTokenReferences(src string, target Token, opts ReferenceOptions) ([]Reference, error) {
	var suffix *regexp.Regexp
	if opts.SuffixPattern != "" {
		var err error
		suffix, err = regexp.Compile(`^(?:` + opts.SuffixPattern + `)`)
		if err != nil {
			return nil, fmt.Errorf("invalid suffix pattern %q: %w", opts.SuffixPattern, err)
		}
	}
	var refs []Reference
	var prev Token
	tz := NewTokenizer(src, opts.Resource)
	for {
		tok, ok := tz.Next()
		if !ok {
			break
		}
		if tok.Kind.Skippable() {
			continue
		}
		before := prev
		prev = tok
		if tok.Kind != Identifier || tok.Text != target.Text {
			continue
		}
		isSelf := tok.Span.Resource == target.Span.Resource && tok.Span.Offset == target.Span.Offset && target.Span.Length > 0
		if isSelf && !opts.IncludeSelf {
			continue
		}
		if suffix != nil && !suffix.MatchString(src[tok.Span.End():]) {
			continue
		}
		role := Usage
		if before.Is(Keyword, "function") {
			role = Declaration
		}
		refs = append(refs, Reference{
			Name:     tok.Text,
			Resource: tok.Span.Resource,
			Role:     role,
			Span:     tok.Span,
			Line:     tok.Line,
			Column:   tok.Column,
		})
	}
	return refs, nil
}
