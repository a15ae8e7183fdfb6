package stitch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/stitchkit/stitch/internal/gml"
	"github.com/stitchkit/stitch/internal/resource"
	"github.com/stitchkit/stitch/internal/storage"
)

type options struct {
	logger       *log.Logger
	allowUnknown bool
}

type Option func(*options)

func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithAllowUnknownKinds loads resource kinds this package has no view for as
// generic pass-through resources instead of failing.
func WithAllowUnknownKinds() Option {
	return func(o *options) {
		o.allowUnknown = true
	}
}

// Project owns the manifest and both registries of one GameMaker project.
// It is not safe for concurrent use.
type Project struct {
	dir       string
	storage   *storage.Storage
	logger    *log.Logger
	manifest  *Manifest
	resources *resource.Registry
	folders   *resource.Folders
}

// Open loads the project in dir. Any structural problem fails the whole load.
func Open(dir string, opts ...Option) (*Project, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewWithOptions(os.Stderr, log.Options{Level: log.WarnLevel})
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	manifestPath, err := findManifest(dir)
	if err != nil {
		return nil, err
	}

	s := storage.New()
	raw, err := s.ReadVerbatimJSON(manifestPath)
	if err != nil {
		return nil, err
	}
	p := &Project{
		dir:      dir,
		storage:  s,
		logger:   o.logger,
		manifest: &Manifest{path: manifestPath, raw: raw},
	}
	if err := p.manifest.checkVersion(); err != nil {
		return nil, err
	}

	ctx := resource.NewContext(s, dir, o.logger)
	p.resources, err = resource.NewRegistry([]byte(p.manifest.Field("resources").Raw), ctx, resource.LoadOptions{AllowUnknownKinds: o.allowUnknown})
	if err != nil {
		return nil, err
	}
	p.folders, err = resource.NewFolders([]byte(p.manifest.Field("Folders").Raw))
	if err != nil {
		return nil, err
	}
	p.logger.Debug("opened project", "name", p.Name(), "resources", p.resources.Len(), "folders", p.folders.Len())
	return p, nil
}

func (p *Project) Name() string {
	return p.manifest.Name()
}

func (p *Project) Dir() string {
	return p.dir
}

func (p *Project) Manifest() *Manifest {
	return p.manifest
}

func (p *Project) Resources() *resource.Registry {
	return p.resources
}

func (p *Project) Folders() *resource.Folders {
	return p.folders
}

func (p *Project) Logger() *log.Logger {
	return p.logger
}

// Changed reports whether Save has anything to write.
func (p *Project) Changed() bool {
	return p.resources.Changed() || p.folders.Changed()
}

// Save writes the manifest back. Only the arrays that changed are rewritten,
// one entry per line in the file's own layout; entries that were loaded keep
// their bytes, and so does everything outside the two arrays. Nothing is
// written when nothing changed.
func (p *Project) Save() error {
	if !p.Changed() {
		return nil
	}
	updated := p.manifest.Raw()
	var err error
	if p.resources.Changed() {
		if updated, err = storage.ReplaceArray(updated, "resources", p.resources.Entries()); err != nil {
			return fmt.Errorf("save %s: %w", p.Name(), err)
		}
	}
	if p.folders.Changed() {
		if updated, err = storage.ReplaceArray(updated, "Folders", p.folders.Entries()); err != nil {
			return fmt.Errorf("save %s: %w", p.Name(), err)
		}
	}
	if err := p.storage.WriteJSON(p.manifest.path, updated); err != nil {
		return fmt.Errorf("save %s: %w", p.Name(), err)
	}
	p.manifest.raw = updated
	p.resources.MarkSaved()
	p.folders.MarkSaved()
	p.logger.Info("saved project", "name", p.Name(), "resources", p.resources.Len())
	return nil
}

// EnsureSoundExists imports an audio file. New sounds are placed in the
// default folder, which is added to the tree when missing.
func (p *Project) EnsureSoundExists(sourcePath string) (*resource.Sound, error) {
	before := p.resources.Len()
	snd, err := p.resources.EnsureSoundExists(sourcePath)
	if err != nil {
		return nil, err
	}
	p.placeCreated(before, snd)
	return snd, nil
}

func (p *Project) EnsureSpriteExists(sourcePath string) (*resource.Sprite, error) {
	before := p.resources.Len()
	spr, err := p.resources.EnsureSpriteExists(sourcePath)
	if err != nil {
		return nil, err
	}
	p.placeCreated(before, spr)
	return spr, nil
}

func (p *Project) EnsureScriptExists(name, code string) (*resource.Script, error) {
	before := p.resources.Len()
	scr, err := p.resources.EnsureScriptExists(name, code)
	if err != nil {
		return nil, err
	}
	p.placeCreated(before, scr)
	return scr, nil
}

// placeCreated adds the folder of a resource an upsert just created. Updated
// resources stay where they are and the tree is left alone.
func (p *Project) placeCreated(before int, res resource.Resource) {
	if p.resources.Len() > before {
		p.folders.Ensure(res.FolderPath())
	}
}

// RemoveResource deletes a resource's files and drops it from the manifest.
func (p *Project) RemoveResource(kind resource.Kind, name string) error {
	res, ok := p.resources.Get(kind, name)
	if !ok {
		return &resource.PipelineError{Kind: resource.InvariantViolation, Resource: name, Msg: fmt.Sprintf("no %s named %q", kind, name)}
	}
	return p.resources.Remove(res)
}

// GlobalFunctions lists the outer-scope functions of every script, sorted by
// name.
func (p *Project) GlobalFunctions() ([]gml.FunctionDeclaration, error) {
	var out []gml.FunctionDeclaration
	for _, scr := range p.resources.Scripts() {
		funcs, err := scr.GlobalFunctions()
		if err != nil {
			return nil, err
		}
		out = append(out, funcs...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// FindGlobalFunction returns the declaration of a global function, if any
// script declares one with that name.
func (p *Project) FindGlobalFunction(name string) (gml.FunctionDeclaration, bool, error) {
	funcs, err := p.GlobalFunctions()
	if err != nil {
		return gml.FunctionDeclaration{}, false, err
	}
	for _, fn := range funcs {
		if fn.Name == name {
			return fn, true, nil
		}
	}
	return gml.FunctionDeclaration{}, false, nil
}

// FindFunctionReferences scans every script for the global function's name.
// The match is lexical: locals that shadow the name are reported too.
func (p *Project) FindFunctionReferences(name string, opts resource.ReferenceOptions) ([]gml.Reference, error) {
	decl, ok, err := p.FindGlobalFunction(name)
	if err != nil || !ok {
		return nil, err
	}
	var out []gml.Reference
	for _, scr := range p.resources.Scripts() {
		refs, err := scr.FindTokenReferences(decl.NameToken, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, refs...)
	}
	return out, nil
}

// RenameGlobalFunction replaces every lexical occurrence of a global function
// name, its declaration included, in all scripts. Either every script is
// rewritten or, on failure, the ones already written are restored.
func (p *Project) RenameGlobalFunction(from, to string) (int, error) {
	if !gml.IsIdentifier(to) {
		return 0, &resource.PipelineError{Kind: resource.InvalidUpsertTarget, Resource: to, Msg: "new name is not a valid identifier"}
	}
	decl, ok, err := p.FindGlobalFunction(from)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &resource.PipelineError{Kind: resource.InvariantViolation, Resource: from, Msg: "no global function with this name"}
	}
	if _, taken, err := p.FindGlobalFunction(to); err != nil {
		return 0, err
	} else if taken {
		return 0, &resource.PipelineError{Kind: resource.InvariantViolation, Resource: to, Msg: "a global function with this name already exists"}
	}

	type rewrite struct {
		script   *resource.Script
		original string
		updated  string
	}
	var rewrites []rewrite
	count := 0
	for _, scr := range p.resources.Scripts() {
		refs, err := scr.FindTokenReferences(decl.NameToken, resource.ReferenceOptions{IncludeSelf: true})
		if err != nil {
			return 0, err
		}
		if len(refs) == 0 {
			continue
		}
		code, err := scr.Code()
		if err != nil {
			return 0, err
		}
		rewrites = append(rewrites, rewrite{script: scr, original: code, updated: replaceSpans(code, refs, to)})
		count += len(refs)
	}

	for i, rw := range rewrites {
		if err := rw.script.SetCode(rw.updated); err != nil {
			for _, done := range rewrites[:i] {
				if rerr := done.script.SetCode(done.original); rerr != nil {
					p.logger.Error("could not restore script", "script", done.script.Name(), "err", rerr)
				}
			}
			return 0, fmt.Errorf("rename %s to %s: %w", from, to, err)
		}
	}
	p.logger.Info("renamed function", "from", from, "to", to, "occurrences", count, "scripts", len(rewrites))
	return count, nil
}

// replaceSpans substitutes name for every reference span. refs are in source
// order.
func replaceSpans(code string, refs []gml.Reference, name string) string {
	out := make([]byte, 0, len(code))
	last := 0
	for _, ref := range refs {
		out = append(out, code[last:ref.Span.Offset]...)
		out = append(out, name...)
		last = ref.Span.End()
	}
	return string(append(out, code[last:]...))
}
