package stitch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tidwall/gjson"
	"golang.org/x/mod/semver"

	"github.com/stitchkit/stitch/internal/resource"
)

const supportedMajor = "v1"

// Manifest is a read-only view of the .yyp file. Fields it does not expose are
// still available through Field and always survive a save.
type Manifest struct {
	path string
	raw  []byte
}

func (m *Manifest) Path() string {
	return m.path
}

func (m *Manifest) Name() string {
	if name := m.Field("name").String(); name != "" {
		return name
	}
	return strings.TrimSuffix(filepath.Base(m.path), filepath.Ext(m.path))
}

func (m *Manifest) ResourceVersion() string {
	return m.Field("resourceVersion").String()
}

func (m *Manifest) IDEVersion() string {
	return m.Field("MetaData.IDEVersion").String()
}

func (m *Manifest) Field(p string) gjson.Result {
	return gjson.GetBytes(m.raw, p)
}

// Raw returns a copy of the manifest as it was last read or written.
func (m *Manifest) Raw() []byte {
	return append([]byte(nil), m.raw...)
}

func (m *Manifest) checkVersion() error {
	v := m.ResourceVersion()
	if v == "" {
		return &resource.PipelineError{Kind: resource.UnsupportedProjectVersion, Resource: m.Name(), Msg: "manifest has no resourceVersion"}
	}
	canonical := "v" + strings.TrimPrefix(v, "v")
	if !semver.IsValid(canonical) || semver.Major(canonical) != supportedMajor {
		return &resource.PipelineError{
			Kind:     resource.UnsupportedProjectVersion,
			Resource: m.Name(),
			Msg:      fmt.Sprintf("resourceVersion %s (IDE %s) is not supported", v, m.IDEVersion()),
		}
	}
	return nil
}

// findManifest locates the single .yyp file directly inside dir.
func findManifest(dir string) (string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), "*.yyp")
	if err != nil {
		return "", fmt.Errorf("find project file in %s: %w", dir, err)
	}
	switch len(matches) {
	case 0:
		return "", &resource.PipelineError{Kind: resource.InvariantViolation, Resource: dir, Msg: "no .yyp project file found"}
	case 1:
		return filepath.Join(dir, matches[0]), nil
	}
	return "", &resource.PipelineError{
		Kind:     resource.InvariantViolation,
		Resource: dir,
		Msg:      fmt.Sprintf("found %d .yyp project files: %s", len(matches), strings.Join(matches, ", ")),
	}
}
