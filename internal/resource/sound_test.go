package resource

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestCreateSound(t *testing.T) {
	ctx := newTestContext(t)
	snd, err := CreateSound("explosion", writeSource(t, "Explosion.WAV", []byte("RIFF")), ctx, 3)
	require.NoError(t, err)

	assert.Equal(t, ID{Name: "explosion", Path: "sounds/explosion/explosion.yy"}, snd.ID())
	assert.Equal(t, "explosion.wav", snd.SoundFile())
	assert.Equal(t, "audiogroup_default", snd.AudioGroup())
	assert.Equal(t, int64(compressionNone), snd.Field("compression").Int())
	assert.FileExists(t, snd.AudioFilePath())

	entry := gjson.ParseBytes(snd.Dehydrate())
	assert.Equal(t, "sounds/explosion/explosion.yy", entry.Get("id.path").String())
	assert.Equal(t, int64(3), entry.Get("order").Int())

	data, err := os.ReadFile(snd.YYPath())
	require.NoError(t, err)
	assert.Equal(t, "GMSound", gjson.GetBytes(data, "resourceType").String())
	assert.Equal(t, "folders/NEW.yy", gjson.GetBytes(data, "parent.path").String())
}

func TestCreateSoundLeavesNothingBehindOnFailure(t *testing.T) {
	ctx := newTestContext(t)
	_, err := CreateSound("clip", writeSource(t, "clip.flac", []byte("fLaC")), ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidUpsertTarget)
	assert.NoDirExists(t, ctx.Abs("sounds/clip"))
}

func TestReplaceAudioFileWithNewFormat(t *testing.T) {
	ctx := newTestContext(t)
	entry := writeDescriptor(t, ctx, "sounds", "snd_theme", "Audio",
		`"compression": 0, "soundFile": "snd_theme.wav", "volume": 0.5, "conversionMode": 2, `)
	writeFile(t, ctx.Abs("sounds/snd_theme/snd_theme.wav"), []byte("old"))
	reg, err := NewRegistry(entries(entry), ctx, LoadOptions{})
	require.NoError(t, err)
	snd := reg.Sounds()[0]

	require.NoError(t, snd.ReplaceAudioFile(writeSource(t, "theme.ogg", []byte("new"))))
	assert.Equal(t, "snd_theme.ogg", snd.SoundFile())
	assert.Equal(t, int64(compressionFull), snd.Field("compression").Int())
	assert.Equal(t, 0.5, snd.Field("volume").Float())
	assert.Equal(t, int64(2), snd.Field("conversionMode").Int(), "fields this package does not model are kept")
	assert.Equal(t, "Audio", snd.FolderPath())

	assert.NoFileExists(t, ctx.Abs("sounds/snd_theme/snd_theme.wav"))
	payload, err := os.ReadFile(ctx.Abs("sounds/snd_theme/snd_theme.ogg"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(payload))

	assert.False(t, reg.Changed(), "replacing a payload does not touch the manifest")
}

func TestIsSoundFile(t *testing.T) {
	for _, p := range []string{"a.wav", "b.MP3", "dir/c.ogg", "d.wma"} {
		assert.True(t, IsSoundFile(p), p)
	}
	for _, p := range []string{"a.flac", "b", "c.png"} {
		assert.False(t, IsSoundFile(p), p)
	}
}

func TestNameFromPath(t *testing.T) {
	for in, want := range map[string]string{
		"/tmp/explosion.wav":   "explosion",
		"snd_Jump.ogg":         "snd_Jump",
		"Big Boom.wav":         "big_boom",
		"laser-blast.mp3":      "laser_blast",
		"dir/with.dots/ok.png": "ok",
	} {
		assert.Equal(t, want, NameFromPath(in), in)
	}
}
