package resource

import (
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/stitchkit/stitch/internal/storage"
)

type Storage interface {
	ReadJSON(path string) ([]byte, error)
	WriteJSON(path string, data any) error
	ReadText(path string) (string, error)
	WriteText(path, text string, ending storage.LineEnding) error
	ReadBinary(path string) ([]byte, error)
	WriteBinary(path string, data []byte) error
	CopyFile(src, dst string) error
	Exists(path string) bool
	Remove(path string) error
	RemoveAll(path string) error
}

// Context is the read-only handle a descriptor uses to reach the project's
// storage, directory and logger. Registry membership is never changed
// through it.
type Context struct {
	storage Storage
	dir     string
	logger  *log.Logger
}

func NewContext(s Storage, projectDir string, logger *log.Logger) *Context {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Context{storage: s, dir: projectDir, logger: logger}
}

func (c *Context) Storage() Storage {
	return c.storage
}

func (c *Context) Dir() string {
	return c.dir
}

func (c *Context) Logger() *log.Logger {
	return c.logger
}

// Abs resolves a slash separated project-relative path.
func (c *Context) Abs(rel string) string {
	return filepath.Join(c.dir, filepath.FromSlash(rel))
}
