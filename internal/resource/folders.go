package resource

import (
	"path"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/exp/slices"
)

// Folder is one entry of the IDE's asset tree. Membership is implicit:
// resources point at a folder through their parent field.
type Folder struct {
	entry []byte
	path  string
}

func (f *Folder) Path() string {
	return f.path
}

func (f *Folder) Name() string {
	if name := gjson.GetBytes(f.entry, "name").String(); name != "" {
		return name
	}
	return path.Base(f.path)
}

// FolderPath is the folder's manifest path, e.g. "folders/Audio/NEW.yy".
func (f *Folder) FolderPath() string {
	return gjson.GetBytes(f.entry, "folderPath").String()
}

func (f *Folder) Dehydrate() []byte {
	return append([]byte(nil), f.entry...)
}

type Folders struct {
	items   []*Folder
	raw     []byte
	changed bool
}

// NewFolders hydrates the manifest's Folders array.
func NewFolders(raw []byte) (*Folders, error) {
	f := &Folders{raw: append([]byte(nil), raw...)}
	if len(raw) == 0 {
		f.raw = []byte(`[]`)
		return f, nil
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsArray() {
		return nil, pipelineErrorf(InvariantViolation, "Folders", "expected an array")
	}
	for _, entry := range parsed.Array() {
		p := NormalizeFolderPath(entry.Get("folderPath").String())
		if p == "" {
			return nil, pipelineErrorf(InvariantViolation, entry.Get("name").String(), "folder entry has no folderPath")
		}
		f.items = append(f.items, &Folder{entry: []byte(entry.Raw), path: p})
	}
	return f, nil
}

func (f *Folders) All() []*Folder {
	return slices.Clone(f.items)
}

func (f *Folders) Len() int {
	return len(f.items)
}

// Find looks a folder up by path, ignoring case.
func (f *Folders) Find(folder string) (*Folder, bool) {
	folder = NormalizeFolderPath(folder)
	i := slices.IndexFunc(f.items, func(item *Folder) bool {
		return strings.EqualFold(item.path, folder)
	})
	if i < 0 {
		return nil, false
	}
	return f.items[i], true
}

// FindModuleFolders returns every folder whose last path segment is module,
// ignoring case. A "module" is spread over all such folders in the tree.
func (f *Folders) FindModuleFolders(module string) []*Folder {
	var out []*Folder
	for _, item := range f.items {
		if strings.EqualFold(path.Base(item.path), module) {
			out = append(out, item)
		}
	}
	return out
}

// Ensure returns the folder at the given path, adding it and any missing
// ancestors to the tree.
func (f *Folders) Ensure(folder string) *Folder {
	folder = NormalizeFolderPath(folder)
	if existing, ok := f.Find(folder); ok {
		return existing
	}
	if parent := path.Dir(folder); parent != "." {
		f.Ensure(parent)
	}
	ref := FolderRef(folder)
	entry := []byte(`{}`)
	entry, _ = sjson.SetBytes(entry, "folderPath", ref.Path)
	entry, _ = sjson.SetBytes(entry, "order", f.nextOrder())
	entry, _ = sjson.SetBytes(entry, "resourceVersion", "1.0")
	entry, _ = sjson.SetBytes(entry, "name", ref.Name)
	entry, _ = sjson.SetRawBytes(entry, "tags", []byte(`[]`))
	entry, _ = sjson.SetBytes(entry, "resourceType", "GMFolder")
	created := &Folder{entry: entry, path: folder}
	f.items = append(f.items, created)
	f.changed = true
	return created
}

func (f *Folders) nextOrder() int {
	next := 0
	for _, item := range f.items {
		if order := int(gjson.GetBytes(item.entry, "order").Int()); order >= next {
			next = order + 1
		}
	}
	return next
}

func (f *Folders) Changed() bool {
	return f.changed
}

func (f *Folders) MarkSaved() {
	f.raw = f.Dehydrate()
	f.changed = false
}

func (f *Folders) Entries() [][]byte {
	out := make([][]byte, 0, len(f.items))
	for _, item := range f.items {
		out = append(out, item.Dehydrate())
	}
	return out
}

// Dehydrate returns the Folders array. Untouched registries return the bytes
// they were loaded from.
func (f *Folders) Dehydrate() []byte {
	if !f.changed {
		return append([]byte(nil), f.raw...)
	}
	return joinEntries(f.items, (*Folder).Dehydrate)
}

func joinEntries[T any](items []T, dehydrate func(T) []byte) []byte {
	var b strings.Builder
	b.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		b.Write(dehydrate(item))
	}
	b.WriteByte(']')
	return []byte(b.String())
}
