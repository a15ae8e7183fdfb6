package resource

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tidwall/sjson"
	"golang.org/x/exp/slices"
)

// SoundExtensions lists the audio formats GameMaker can import.
var SoundExtensions = []string{"mp3", "wav", "ogg", "wma"}

const (
	compressionNone = 0
	compressionFull = 1
)

type soundYY struct {
	Compression     int      `json:"compression"`
	Volume          float64  `json:"volume"`
	Preload         bool     `json:"preload"`
	BitRate         int      `json:"bitRate"`
	SampleRate      int      `json:"sampleRate"`
	Type            int      `json:"type"`
	BitDepth        int      `json:"bitDepth"`
	AudioGroupID    ID       `json:"audioGroupId"`
	SoundFile       string   `json:"soundFile"`
	Duration        float64  `json:"duration"`
	Parent          ID       `json:"parent"`
	ResourceVersion string   `json:"resourceVersion"`
	Name            string   `json:"name"`
	Tags            []string `json:"tags"`
	ResourceType    string   `json:"resourceType"`
}

type Sound struct {
	*Base
}

func IsSoundFile(p string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(p)), ".")
	return slices.Contains(SoundExtensions, ext)
}

// CreateSound copies the audio file at src into a new sound resource named
// name. On failure nothing is left behind.
func CreateSound(name, src string, ctx *Context, order int) (*Sound, error) {
	if err := checkSource(ctx, name, src, IsSoundFile); err != nil {
		return nil, err
	}
	soundFile := name + strings.ToLower(filepath.Ext(src))
	yy, err := marshalYY(soundYY{
		Compression:     compressionFor(soundFile),
		Volume:          1,
		BitRate:         128,
		SampleRate:      44100,
		BitDepth:        1,
		AudioGroupID:    ID{Name: "audiogroup_default", Path: "audiogroups/audiogroup_default"},
		SoundFile:       soundFile,
		Parent:          FolderRef(DefaultFolder),
		ResourceVersion: "1.0",
		Name:            name,
		Tags:            []string{},
		ResourceType:    KindSound.ResourceType(),
	})
	if err != nil {
		return nil, err
	}
	s := &Sound{Base: newBase(ctx, KindSound, name, yy, order)}
	if err := ctx.storage.CopyFile(src, filepath.Join(s.Dir(), soundFile)); err != nil {
		_ = ctx.storage.RemoveAll(s.Dir())
		return nil, fmt.Errorf("create sound %s: %w", name, err)
	}
	if err := ctx.storage.WriteJSON(s.YYPath(), yy); err != nil {
		_ = ctx.storage.RemoveAll(s.Dir())
		return nil, fmt.Errorf("create sound %s: %w", name, err)
	}
	ctx.logger.Info("created sound", "name", name, "source", src)
	return s, nil
}

func (s *Sound) SoundFile() string {
	return s.Field("soundFile").String()
}

func (s *Sound) AudioFilePath() string {
	return filepath.Join(s.Dir(), s.SoundFile())
}

func (s *Sound) AudioGroup() string {
	return s.Field("audioGroupId.name").String()
}

// ReplaceAudioFile overwrites the sound's payload with the file at src. The
// identifier, name and all other metadata are kept.
func (s *Sound) ReplaceAudioFile(src string) error {
	if err := checkSource(s.ctx, s.Name(), src, IsSoundFile); err != nil {
		return err
	}
	oldFile := s.SoundFile()
	newFile := s.Name() + strings.ToLower(filepath.Ext(src))
	newPath := filepath.Join(s.Dir(), newFile)
	if err := s.ctx.storage.CopyFile(src, newPath); err != nil {
		return fmt.Errorf("replace audio of %s: %w", s.Name(), err)
	}
	if newFile != oldFile {
		err := s.patch(func(yy []byte) ([]byte, error) {
			yy, err := sjson.SetBytes(yy, "soundFile", newFile)
			if err != nil {
				return nil, err
			}
			return sjson.SetBytes(yy, "compression", compressionFor(newFile))
		})
		if err != nil {
			_ = s.ctx.storage.Remove(newPath)
			return err
		}
		if oldFile != "" {
			if err := s.ctx.storage.Remove(filepath.Join(s.Dir(), oldFile)); err != nil {
				s.ctx.logger.Warn("could not remove replaced audio file", "sound", s.Name(), "file", oldFile, "err", err)
			}
		}
	}
	s.ctx.logger.Info("replaced sound", "name", s.Name(), "source", src)
	return nil
}

func compressionFor(file string) int {
	if strings.EqualFold(filepath.Ext(file), ".wav") {
		return compressionNone
	}
	return compressionFull
}

func checkSource(ctx *Context, name, src string, accept func(string) bool) error {
	if name == "" {
		return pipelineErrorf(InvalidUpsertTarget, src, "cannot derive a resource name")
	}
	if !accept(src) {
		return pipelineErrorf(InvalidUpsertTarget, name, "unsupported file type %q", filepath.Ext(src))
	}
	if !ctx.Storage().Exists(src) {
		return pipelineErrorf(InvalidUpsertTarget, name, "source file %s does not exist", src)
	}
	return nil
}
