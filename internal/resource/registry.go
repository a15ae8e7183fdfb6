package resource

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/exp/slices"
)

type LoadOptions struct {
	// AllowUnknownKinds hydrates kinds this package does not know as Generic
	// instead of failing the load.
	AllowUnknownKinds bool
}

// Registry is the ordered collection of every resource in a project.
type Registry struct {
	ctx     *Context
	items   []Resource
	raw     []byte
	changed bool
}

// NewRegistry hydrates the manifest's resources array, reading every
// descriptor file it references. Any failure aborts the whole load.
func NewRegistry(raw []byte, ctx *Context, opts LoadOptions) (*Registry, error) {
	r := &Registry{ctx: ctx, raw: append([]byte(nil), raw...)}
	if len(raw) == 0 {
		r.raw = []byte(`[]`)
		return r, nil
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsArray() {
		return nil, pipelineErrorf(InvariantViolation, "resources", "expected an array")
	}
	for _, entry := range parsed.Array() {
		res, err := hydrate(entry, ctx, opts.AllowUnknownKinds)
		if err != nil {
			return nil, err
		}
		if err := r.checkUnique(res); err != nil {
			return nil, err
		}
		r.items = append(r.items, res)
	}
	return r, nil
}

func (r *Registry) All() []Resource {
	return slices.Clone(r.items)
}

func (r *Registry) Len() int {
	return len(r.items)
}

func (r *Registry) Sounds() []*Sound {
	return FilterByKind[*Sound](r)
}

func (r *Registry) Sprites() []*Sprite {
	return FilterByKind[*Sprite](r)
}

func (r *Registry) Scripts() []*Script {
	return FilterByKind[*Script](r)
}

// OfKind filters by kind tag, for callers that only know the kind at runtime.
func (r *Registry) OfKind(kind Kind) []Resource {
	var out []Resource
	for _, item := range r.items {
		if item.Kind() == kind {
			out = append(out, item)
		}
	}
	return out
}

// Get finds a resource by kind and name. Names are unique within a kind
// regardless of case, so the match ignores case.
func (r *Registry) Get(kind Kind, name string) (Resource, bool) {
	i := slices.IndexFunc(r.items, func(item Resource) bool {
		return item.Kind() == kind && strings.EqualFold(item.Name(), name)
	})
	if i < 0 {
		return nil, false
	}
	return r.items[i], true
}

func (r *Registry) FilterByFolder(folder string, recursive bool) []Resource {
	var out []Resource
	for _, item := range r.items {
		if item.IsInFolder(folder, recursive) {
			out = append(out, item)
		}
	}
	return out
}

// FilterByKind returns the resources whose descriptor variant is T.
func FilterByKind[T Resource](r *Registry) []T {
	var out []T
	for _, item := range r.items {
		if typed, ok := item.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

func Find[T Resource](r *Registry, match func(T) bool) (T, bool) {
	for _, item := range FilterByKind[T](r) {
		if match(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// FindByField matches a gjson path of the descriptor file against value,
// e.g. FindByField[*Sound](r, "audioGroupId.name", "audiogroup_default").
func FindByField[T Resource](r *Registry, field string, value string) (T, bool) {
	return Find(r, func(item T) bool {
		got := item.Field(field)
		return got.Exists() && got.String() == value
	})
}

func FilterByKindAndFolder[T Resource](r *Registry, folder string, recursive bool) []T {
	var out []T
	for _, item := range r.FilterByFolder(folder, recursive) {
		if typed, ok := item.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

// findNamed is the upsert lookup. It follows the same case rule as the
// uniqueness checks, so an upsert never collides with the resource it should
// update.
func findNamed[T Resource](r *Registry, name string) (T, bool) {
	return Find(r, func(item T) bool {
		return strings.EqualFold(item.Name(), name)
	})
}

// nextOrder is one past the highest order value in the manifest.
func (r *Registry) nextOrder() int {
	next := 0
	for _, item := range r.items {
		if order := int(gjson.GetBytes(item.Dehydrate(), "order").Int()); order >= next {
			next = order + 1
		}
	}
	return next
}

// EnsureSoundExists imports the audio file at sourcePath. A sound with the
// same name, in any case, has its payload replaced in place; otherwise a new
// sound is created in the default folder.
func (r *Registry) EnsureSoundExists(sourcePath string) (*Sound, error) {
	name := NameFromPath(sourcePath)
	if existing, ok := findNamed[*Sound](r, name); ok {
		return existing, existing.ReplaceAudioFile(sourcePath)
	}
	if err := r.checkNameFree(KindSound, name); err != nil {
		return nil, err
	}
	snd, err := CreateSound(name, sourcePath, r.ctx, r.nextOrder())
	if err != nil {
		return nil, err
	}
	return snd, r.add(snd)
}

// EnsureSpriteExists is the sprite counterpart of EnsureSoundExists; the
// source must be a PNG.
func (r *Registry) EnsureSpriteExists(sourcePath string) (*Sprite, error) {
	name := NameFromPath(sourcePath)
	if existing, ok := findNamed[*Sprite](r, name); ok {
		return existing, existing.ReplaceImageFile(sourcePath)
	}
	if err := r.checkNameFree(KindSprite, name); err != nil {
		return nil, err
	}
	spr, err := CreateSprite(name, sourcePath, r.ctx, r.nextOrder())
	if err != nil {
		return nil, err
	}
	return spr, r.add(spr)
}

// EnsureScriptExists sets the code of the named script, creating it first
// when needed.
func (r *Registry) EnsureScriptExists(name, code string) (*Script, error) {
	if existing, ok := findNamed[*Script](r, name); ok {
		return existing, existing.SetCode(code)
	}
	if err := r.checkNameFree(KindScript, name); err != nil {
		return nil, err
	}
	scr, err := CreateScript(name, code, r.ctx, r.nextOrder())
	if err != nil {
		return nil, err
	}
	return scr, r.add(scr)
}

// Remove drops a resource from the registry and deletes its files.
func (r *Registry) Remove(res Resource) error {
	i := slices.IndexFunc(r.items, func(item Resource) bool {
		return item.ID().Path == res.ID().Path
	})
	if i < 0 {
		return pipelineErrorf(InvariantViolation, res.Name(), "resource is not registered")
	}
	if err := r.ctx.storage.RemoveAll(res.base().Dir()); err != nil {
		return fmt.Errorf("remove %s: %w", res.Name(), err)
	}
	r.items = slices.Delete(r.items, i, i+1)
	r.changed = true
	r.ctx.logger.Info("removed resource", "kind", res.Kind(), "name", res.Name())
	return nil
}

func (r *Registry) add(res Resource) error {
	if err := r.checkUnique(res); err != nil {
		return err
	}
	r.items = append(r.items, res)
	r.changed = true
	return nil
}

// checkNameFree runs before any file of a new resource is written.
func (r *Registry) checkNameFree(kind Kind, name string) error {
	id := NewID(kind, name)
	for _, item := range r.items {
		if item.Kind() == kind && strings.EqualFold(item.Name(), name) {
			return pipelineErrorf(InvariantViolation, name, "a %s named %q already exists", strings.TrimSuffix(kind.Dir(), "s"), item.Name())
		}
		if strings.EqualFold(item.ID().Path, id.Path) {
			return pipelineErrorf(InvariantViolation, name, "duplicate identifier %s", id)
		}
	}
	return nil
}

// checkUnique enforces unique identifiers across the project and unique
// names within a kind.
func (r *Registry) checkUnique(res Resource) error {
	for _, item := range r.items {
		if strings.EqualFold(item.ID().Path, res.ID().Path) {
			return pipelineErrorf(InvariantViolation, res.Name(), "duplicate identifier %s", res.ID())
		}
		if item.Kind() == res.Kind() && res.Kind() != KindUnknown && strings.EqualFold(item.Name(), res.Name()) {
			return pipelineErrorf(InvariantViolation, res.Name(), "duplicate %s name", res.Kind())
		}
	}
	return nil
}

func (r *Registry) Changed() bool {
	return r.changed
}

// MarkSaved records the current state as persisted.
func (r *Registry) MarkSaved() {
	r.raw = r.Dehydrate()
	r.changed = false
}

// Entries returns each resource's manifest entry in registry order. Loaded
// entries are the bytes they were read from.
func (r *Registry) Entries() [][]byte {
	out := make([][]byte, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item.Dehydrate())
	}
	return out
}

// Dehydrate returns the resources array in registry order. Entries of
// resources that were loaded keep their original bytes and position.
func (r *Registry) Dehydrate() []byte {
	if !r.changed {
		return append([]byte(nil), r.raw...)
	}
	return joinEntries(r.items, Resource.Dehydrate)
}
