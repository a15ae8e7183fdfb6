package resource

import (
	"fmt"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/stitchkit/stitch/internal/gml"
	"github.com/stitchkit/stitch/internal/storage"
)

const referenceCacheSize = 128

type scriptYY struct {
	IsDnD           bool     `json:"isDnD"`
	IsCompatibility bool     `json:"isCompatibility"`
	Parent          ID       `json:"parent"`
	ResourceVersion string   `json:"resourceVersion"`
	Name            string   `json:"name"`
	Tags            []string `json:"tags"`
	ResourceType    string   `json:"resourceType"`
}

type referenceKey struct {
	name        string
	resource    string
	offset      int
	suffix      string
	includeSelf bool
}

type ReferenceOptions struct {
	Suffix      string
	IncludeSelf bool
}

// Script is a GML script resource. Its source and everything derived from it
// is cached until the code is reassigned through SetCode.
type Script struct {
	*Base

	code      *string
	functions []gml.FunctionDeclaration
	scanned   bool
	refs      *lru.Cache[referenceKey, []gml.Reference]
}

func newScript(b *Base) *Script {
	refs, _ := lru.New[referenceKey, []gml.Reference](referenceCacheSize)
	return &Script{Base: b, refs: refs}
}

// CreateScript writes a new script's descriptor and code file. It does not
// register the script anywhere.
func CreateScript(name, code string, ctx *Context, order int) (*Script, error) {
	if !gml.IsIdentifier(name) {
		return nil, pipelineErrorf(InvalidUpsertTarget, name, "script name is not a valid identifier")
	}
	yy, err := marshalYY(scriptYY{
		Parent:          FolderRef(DefaultFolder),
		ResourceVersion: "1.0",
		Name:            name,
		Tags:            []string{},
		ResourceType:    KindScript.ResourceType(),
	})
	if err != nil {
		return nil, err
	}
	s := newScript(newBase(ctx, KindScript, name, yy, order))
	if err := ctx.storage.WriteJSON(s.YYPath(), yy); err != nil {
		return nil, fmt.Errorf("create script %s: %w", name, err)
	}
	if err := s.SetCode(code); err != nil {
		_ = ctx.storage.RemoveAll(s.Dir())
		return nil, err
	}
	return s, nil
}

func (s *Script) CodePath() string {
	return filepath.Join(s.Dir(), s.Name()+".gml")
}

func (s *Script) Code() (string, error) {
	if s.code == nil {
		code, err := s.ctx.storage.ReadText(s.CodePath())
		if err != nil {
			return "", fmt.Errorf("read code of %s: %w", s.Name(), err)
		}
		s.code = &code
	}
	return *s.code, nil
}

// SetCode replaces the script's source and writes it with CRLF line endings.
func (s *Script) SetCode(code string) error {
	s.invalidate()
	if err := s.ctx.storage.WriteText(s.CodePath(), code, storage.CRLF); err != nil {
		return fmt.Errorf("write code of %s: %w", s.Name(), err)
	}
	normalized := storage.NormalizeLineEndings(code, storage.CRLF)
	s.code = &normalized
	return nil
}

// GlobalFunctions returns the named functions declared at the script's outer
// scope, which are the ones callable from elsewhere in the project.
func (s *Script) GlobalFunctions() ([]gml.FunctionDeclaration, error) {
	if s.scanned {
		return s.functions, nil
	}
	code, err := s.Code()
	if err != nil {
		return nil, err
	}
	functions, err := gml.FindOuterFunctions(code, s.Name())
	if err != nil {
		s.ctx.logger.Error("failed to lint gml", "script", s.Name(), "err", err)
		return nil, fmt.Errorf("lint gml in script %s: %w", s.Name(), err)
	}
	s.functions = functions
	s.scanned = true
	return functions, nil
}

// FindTokenReferences lists lexical matches of target in this script's code.
// Scope and type are not considered.
func (s *Script) FindTokenReferences(target gml.Token, opts ReferenceOptions) ([]gml.Reference, error) {
	key := referenceKey{
		name:        target.Text,
		resource:    target.Span.Resource,
		offset:      target.Span.Offset,
		suffix:      opts.Suffix,
		includeSelf: opts.IncludeSelf,
	}
	if refs, ok := s.refs.Get(key); ok {
		return refs, nil
	}
	code, err := s.Code()
	if err != nil {
		return nil, err
	}
	refs, err := gml.FindTokenReferences(code, target, gml.ReferenceOptions{
		Resource:      s.Name(),
		SuffixPattern: opts.Suffix,
		IncludeSelf:   opts.IncludeSelf,
	})
	if err != nil {
		return nil, fmt.Errorf("find references in script %s: %w", s.Name(), err)
	}
	s.refs.Add(key, refs)
	return refs, nil
}

func (s *Script) invalidate() {
	s.code = nil
	s.functions = nil
	s.scanned = false
	s.refs.Purge()
}
