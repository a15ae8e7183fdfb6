package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

type LineEnding string

const (
	LF   LineEnding = "\n"
	CRLF LineEnding = "\r\n"
)

// Storage is a thin, uncached wrapper around the filesystem. Every write goes
// through a temp file in the target directory followed by a rename.
type Storage struct{}

func New() *Storage {
	return &Storage{}
}

// ReadJSON returns the file as standard JSON. GameMaker writes trailing
// commas; they are removed.
func (s *Storage) ReadJSON(path string) ([]byte, error) {
	data, err := s.ReadVerbatimJSON(path)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		data = StripTrailingCommas(data)
	}
	return data, nil
}

// ReadVerbatimJSON returns the file exactly as written, trailing commas
// included, once it is known to be valid JSON without them.
func (s *Storage) ReadVerbatimJSON(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, wrap("read json", path, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !validJSON(data) {
		return nil, &Error{Op: "read json", Path: path, Kind: MalformedContent, Err: errors.New("invalid json")}
	}
	return data, nil
}

// WriteJSON accepts either raw JSON bytes or a value to be marshaled.
func (s *Storage) WriteJSON(path string, data any) error {
	var raw []byte
	switch v := data.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		var err error
		raw, err = marshal(v)
		if err != nil {
			return &Error{Op: "write json", Path: path, Kind: MalformedContent, Err: err}
		}
	}
	if !validJSON(raw) {
		return &Error{Op: "write json", Path: path, Kind: MalformedContent, Err: errors.New("invalid json")}
	}
	return s.atomicWrite("write json", path, raw)
}

func (s *Storage) ReadText(path string) (string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", wrap("read text", path, err)
	}
	return string(data), nil
}

// WriteText normalizes every line ending in text to ending before writing.
func (s *Storage) WriteText(path, text string, ending LineEnding) error {
	return s.atomicWrite("write text", path, []byte(NormalizeLineEndings(text, ending)))
}

func (s *Storage) ReadBinary(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, wrap("read binary", path, err)
	}
	return data, nil
}

func (s *Storage) WriteBinary(path string, data []byte) error {
	return s.atomicWrite("write binary", path, data)
}

func (s *Storage) CopyFile(src, dst string) error {
	data, err := s.ReadBinary(src)
	if err != nil {
		return err
	}
	return s.atomicWrite("copy", dst, data)
}

func (s *Storage) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *Storage) IsDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, wrap("stat", path, err)
	}
	return info.IsDir(), nil
}

func (s *Storage) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return wrap("remove", path, err)
	}
	return nil
}

func (s *Storage) RemoveAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return wrap("remove", path, err)
	}
	return nil
}

func (s *Storage) atomicWrite(op, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return wrap(op, path, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return wrap(op, path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return wrap(op, path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return wrap(op, path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return wrap(op, path, err)
	}
	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpName, info.Mode().Perm())
	} else {
		_ = os.Chmod(tmpName, 0o644)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return wrap(op, path, err)
	}
	return nil
}

func NormalizeLineEndings(text string, ending LineEnding) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if ending == LF {
		return text
	}
	return strings.ReplaceAll(text, "\n", string(ending))
}

// StripTrailingCommas removes commas that directly precede a closing brace or
// bracket, ignoring anything inside string literals.
func StripTrailingCommas(data []byte) []byte {
	out := make([]byte, 0, len(data))
	inString := false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out = append(out, c)
			if c == '\\' && i+1 < len(data) {
				i++
				out = append(out, data[i])
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case ',':
			j := i + 1
			for j < len(data) && isJSONSpace(data[j]) {
				j++
			}
			if j < len(data) && (data[j] == '}' || data[j] == ']') {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// validJSON accepts standard JSON and the IDE's trailing-comma dialect.
func validJSON(data []byte) bool {
	return gjson.ValidBytes(data) || gjson.ValidBytes(StripTrailingCommas(data))
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Pretty formats raw JSON the way the rest of the project files are laid out.
func Pretty(raw []byte) []byte {
	return pretty.PrettyOptions(raw, &pretty.Options{Width: 80, Indent: "  "})
}

func wrap(op, path string, err error) error {
	kind := IO
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = NotFound
	case errors.Is(err, fs.ErrPermission):
		kind = PermissionDenied
	}
	return &Error{Op: op, Path: path, Kind: kind, Err: err}
}

func marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return Pretty(raw), nil
}
