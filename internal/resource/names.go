package resource

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/stoewer/go-strcase"

	"github.com/stitchkit/stitch/internal/gml"
	"github.com/stitchkit/stitch/internal/storage"
)

// DefaultFolder receives every resource created by an upsert.
const DefaultFolder = "NEW"

// NameFromPath derives a resource name from a source file name. Stems that
// are not valid GML identifiers are converted to snake_case.
func NameFromPath(p string) string {
	base := filepath.Base(p)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if gml.IsIdentifier(name) {
		return name
	}
	name = strcase.SnakeCase(name)
	name = strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, name)
	if name == "" {
		return ""
	}
	if !gml.IsIdentifier(name) {
		name = "_" + name
	}
	return name
}

func marshalYY(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return storage.Pretty(raw), nil
}
