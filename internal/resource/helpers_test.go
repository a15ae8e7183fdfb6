package resource

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stitchkit/stitch/internal/storage"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	return NewContext(storage.New(), t.TempDir(), nil)
}

func writeFile(t *testing.T, p string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, content, 0o644))
}

// writeDescriptor writes a minimal .yy file (with the trailing commas the IDE
// produces) and returns the matching manifest entry.
func writeDescriptor(t *testing.T, ctx *Context, kindDir, name, folder string, extra string) string {
	t.Helper()
	yy := fmt.Sprintf("{\n  %s\"parent\": {\"name\": \"%s\", \"path\": \"folders/%s.yy\",},\n  \"resourceVersion\": \"1.0\",\n  \"name\": \"%s\",\n  \"tags\": [],\n}",
		extra, filepath.Base(folder), folder, name)
	writeFile(t, ctx.Abs(kindDir+"/"+name+"/"+name+".yy"), []byte(yy))
	return fmt.Sprintf(`{"id":{"name":"%s","path":"%s/%s/%s.yy"},"order":0}`, name, kindDir, name, name)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func writeSource(t *testing.T, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	writeFile(t, p, content)
	return p
}

func entries(list ...string) []byte {
	out := "["
	for i, e := range list {
		if i > 0 {
			out += ","
		}
		out += e
	}
	return []byte(out + "]")
}
