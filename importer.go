package stitch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/stitchkit/stitch/internal/resource"
	"github.com/stitchkit/stitch/internal/storage"
)

// ImportSounds upserts every audio file found at source, which may be a single
// file or a directory searched recursively. With no extensions given, every
// format GameMaker imports is accepted. The import stops at the first failure;
// the sounds upserted before it are returned alongside the error.
func (p *Project) ImportSounds(source string, extensions ...string) ([]*resource.Sound, error) {
	if len(extensions) == 0 {
		extensions = resource.SoundExtensions
	}
	files, err := SourceFiles(source, extensions...)
	if err != nil {
		return nil, err
	}
	var out []*resource.Sound
	for _, f := range files {
		snd, err := p.EnsureSoundExists(f)
		if err != nil {
			return out, err
		}
		out = append(out, snd)
	}
	return out, nil
}

// ImportSprites upserts every PNG found at source.
func (p *Project) ImportSprites(source string) ([]*resource.Sprite, error) {
	files, err := SourceFiles(source, "png")
	if err != nil {
		return nil, err
	}
	var out []*resource.Sprite
	for _, f := range files {
		spr, err := p.EnsureSpriteExists(f)
		if err != nil {
			return out, err
		}
		out = append(out, spr)
	}
	return out, nil
}

// SourceFiles expands source into the files an import would read. A file is
// returned as is; a directory is matched against **/*.{ext,...} in either case.
func SourceFiles(source string, extensions ...string) ([]string, error) {
	isDir, err := storage.New().IsDir(source)
	if err != nil {
		return nil, &resource.PipelineError{Kind: resource.InvalidUpsertTarget, Resource: source, Msg: "cannot read import source", Err: err}
	}
	if !isDir {
		return []string{source}, nil
	}
	var alternatives []string
	for _, ext := range extensions {
		ext = strings.TrimPrefix(ext, ".")
		alternatives = append(alternatives, strings.ToLower(ext), strings.ToUpper(ext))
	}
	pattern := "**/*.{" + strings.Join(alternatives, ",") + "}"
	var files []string
	err = doublestar.GlobWalk(os.DirFS(source), pattern, func(p string, d os.DirEntry) error {
		if !d.IsDir() {
			files = append(files, filepath.Join(source, filepath.FromSlash(p)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", source, err)
	}
	return files, nil
}
