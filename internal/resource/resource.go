package resource

import (
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ID is the identifier pair stored in the project manifest. Path embeds the
// kind directory, so it is unique across the whole project.
type ID struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func (id ID) String() string {
	return id.Path
}

func NewID(kind Kind, name string) ID {
	return ID{Name: name, Path: path.Join(kind.Dir(), name, name+".yy")}
}

type Resource interface {
	ID() ID
	Name() string
	Kind() Kind
	// KindTag is the kind directory as written in the manifest.
	KindTag() string
	FolderPath() string
	IsInFolder(folder string, recursive bool) bool
	// Field looks up a gjson path in the resource's descriptor file.
	Field(path string) gjson.Result
	// Dehydrate returns this resource's entry for the manifest's resource list.
	Dehydrate() []byte
	SetFolder(folder string) error

	base() *Base
}

// Base holds what every descriptor has: its manifest entry and the raw
// contents of its .yy file. Unknown fields in both are kept verbatim.
type Base struct {
	ctx     *Context
	kind    Kind
	kindTag string
	id      ID
	entry   []byte
	yy      []byte
}

func (b *Base) base() *Base {
	return b
}

func (b *Base) ID() ID {
	return b.id
}

func (b *Base) Name() string {
	return b.id.Name
}

func (b *Base) Kind() Kind {
	return b.kind
}

// KindTag is the kind directory as written in the manifest. It differs from
// Kind().Dir() only for kinds this package does not know.
func (b *Base) KindTag() string {
	return b.kindTag
}

func (b *Base) Field(p string) gjson.Result {
	return gjson.GetBytes(b.yy, p)
}

// Data returns a copy of the raw descriptor file contents.
func (b *Base) Data() []byte {
	return append([]byte(nil), b.yy...)
}

func (b *Base) Dehydrate() []byte {
	return append([]byte(nil), b.entry...)
}

// YYPath is the absolute path of the descriptor file.
func (b *Base) YYPath() string {
	return b.ctx.Abs(b.id.Path)
}

// Dir is the absolute path of the directory holding the resource's files.
func (b *Base) Dir() string {
	return filepath.Dir(b.YYPath())
}

func (b *Base) FolderPath() string {
	return NormalizeFolderPath(b.Field("parent.path").String())
}

func (b *Base) IsInFolder(folder string, recursive bool) bool {
	own := strings.ToLower(b.FolderPath())
	folder = strings.ToLower(NormalizeFolderPath(folder))
	if own == folder {
		return true
	}
	if !recursive {
		return false
	}
	return folder == "" || strings.HasPrefix(own, folder+"/")
}

func (b *Base) SetFolder(folder string) error {
	folder = NormalizeFolderPath(folder)
	if folder == "" {
		return pipelineErrorf(InvariantViolation, b.Name(), "empty folder path")
	}
	parent, err := json.Marshal(FolderRef(folder))
	if err != nil {
		return err
	}
	return b.patch(func(yy []byte) ([]byte, error) {
		return sjson.SetRawBytes(yy, "parent", parent)
	})
}

// patch applies edit to a copy of the descriptor, persists the result and
// only then swaps it in.
func (b *Base) patch(edit func(yy []byte) ([]byte, error)) error {
	updated, err := edit(b.Data())
	if err != nil {
		return fmt.Errorf("update %s: %w", b.Name(), err)
	}
	if err := b.ctx.storage.WriteJSON(b.YYPath(), updated); err != nil {
		return fmt.Errorf("update %s: %w", b.Name(), err)
	}
	b.yy = updated
	return nil
}

// FolderRef is the {name, path} pair a descriptor uses to point at its folder.
func FolderRef(folder string) ID {
	folder = NormalizeFolderPath(folder)
	return ID{Name: path.Base(folder), Path: "folders/" + folder + ".yy"}
}

// NormalizeFolderPath turns "folders/A/B.yy", "A\B" or "/A/B/" into "A/B".
func NormalizeFolderPath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	p = strings.Trim(p, "/")
	p = strings.TrimPrefix(p, "folders/")
	p = strings.TrimSuffix(p, ".yy")
	return strings.Trim(p, "/")
}

func newEntry(id ID, order int) []byte {
	entry, _ := sjson.SetBytes([]byte(`{}`), "id", id)
	entry, _ = sjson.SetBytes(entry, "order", order)
	return entry
}

func newBase(ctx *Context, kind Kind, name string, yy []byte, order int) *Base {
	id := NewID(kind, name)
	return &Base{ctx: ctx, kind: kind, kindTag: kind.Dir(), id: id, entry: newEntry(id, order), yy: yy}
}

// hydrate builds the descriptor variant matching the entry's kind directory.
func hydrate(entry gjson.Result, ctx *Context, allowUnknown bool) (Resource, error) {
	id := ID{Name: entry.Get("id.name").String(), Path: entry.Get("id.path").String()}
	if id.Path == "" {
		return nil, pipelineErrorf(InvariantViolation, id.Name, "manifest entry has no id.path")
	}
	if id.Name == "" {
		id.Name = strings.TrimSuffix(path.Base(id.Path), ".yy")
	}
	tag, _, _ := strings.Cut(id.Path, "/")
	kind, known := ParseKind(tag)
	if !known || kind.Dir() != tag {
		if !allowUnknown {
			return nil, pipelineErrorf(UnknownResourceKind, id.Name, "no constructor for resource kind %q", tag)
		}
		kind = KindUnknown
	}
	yy, err := ctx.storage.ReadJSON(ctx.Abs(id.Path))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id.Name, err)
	}
	b := &Base{ctx: ctx, kind: kind, kindTag: tag, id: id, entry: []byte(entry.Raw), yy: yy}

	switch kind {
	case KindScript:
		return newScript(b), nil
	case KindSound:
		return &Sound{Base: b}, nil
	case KindSprite:
		return &Sprite{Base: b}, nil
	case KindAnimCurve, KindExtension, KindFont, KindNote, KindObject, KindPath,
		KindRoom, KindSequence, KindShader, KindTileSet, KindTimeline, KindUnknown:
		return &Generic{Base: b}, nil
	}
	return nil, pipelineErrorf(UnknownResourceKind, id.Name, "no constructor for resource kind %q", tag)
}

// Generic keeps kinds without a specialized view. All of its fields round-trip
// untouched.
type Generic struct {
	*Base
}
