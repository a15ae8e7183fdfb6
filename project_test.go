package stitch

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchkit/stitch/internal/resource"
)

const testManifest = `{
  "resources": [
    {"id":{"name":"scr_inventory","path":"scripts/scr_inventory/scr_inventory.yy",},"order":2,},
    {"id":{"name":"scr_shop","path":"scripts/scr_shop/scr_shop.yy",},"order":3,},
    {"id":{"name":"snd_coin","path":"sounds/snd_coin/snd_coin.yy",},"order":1,},
  ],
  "Options": [
    {"name":"Windows","path":"options/windows/options_windows.yy",},
  ],
  "isDnDProject": false,
  "isEcma": false,
  "tutorialPath": "",
  "configs": {"name":"Default","children":[],},
  "RoomOrderNodes": [],
  "Folders": [
    {"folderPath":"folders/Audio.yy","order":1,"resourceVersion":"1.0","name":"Audio","tags":[],"resourceType":"GMFolder",},
    {"folderPath":"folders/Modules/Inventory.yy","order":2,"resourceVersion":"1.0","name":"Inventory","tags":[],"resourceType":"GMFolder",},
  ],
  "AudioGroups": [
    {"targets":461609314234257646,"resourceVersion":"1.3","name":"audiogroup_default","resourceType":"GMAudioGroup",},
  ],
  "MetaData": {
    "IDEVersion": "2022.9.1.66",
  },
  "resourceVersion": "1.6",
  "name": "Shopkeeper",
  "tags": [],
  "resourceType": "GMProject",
}`

const inventoryCode = "function inventory_add(item) {\r\n\tarray_push(global.items, item);\r\n}\r\n\r\nfunction inventory_count() {\r\n\treturn array_length(global.items);\r\n}\r\n"

const shopCode = "function shop_buy(item) {\r\n\tif (inventory_count() < 10) {\r\n\t\tinventory_add(item);\r\n\t}\r\n}\r\n"

func writeTestFile(t *testing.T, p string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func descriptor(name, folder, extra string) string {
	return fmt.Sprintf("{\n  %s\"parent\": {\"name\": \"%s\", \"path\": \"folders/%s.yy\",},\n  \"resourceVersion\": \"1.0\",\n  \"name\": \"%s\",\n  \"tags\": [],\n}",
		extra, filepath.Base(folder), folder, name)
}

func newTestProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "Shopkeeper.yyp"), testManifest)
	writeTestFile(t, filepath.Join(dir, "scripts/scr_inventory/scr_inventory.yy"), descriptor("scr_inventory", "Modules/Inventory", `"resourceType": "GMScript", `))
	writeTestFile(t, filepath.Join(dir, "scripts/scr_inventory/scr_inventory.gml"), inventoryCode)
	writeTestFile(t, filepath.Join(dir, "scripts/scr_shop/scr_shop.yy"), descriptor("scr_shop", "Modules/Shop", `"resourceType": "GMScript", `))
	writeTestFile(t, filepath.Join(dir, "scripts/scr_shop/scr_shop.gml"), shopCode)
	writeTestFile(t, filepath.Join(dir, "sounds/snd_coin/snd_coin.yy"), descriptor("snd_coin", "Audio", `"soundFile": "snd_coin.wav", "resourceType": "GMSound", `))
	writeTestFile(t, filepath.Join(dir, "sounds/snd_coin/snd_coin.wav"), "RIFF")
	return dir
}

func openTestProject(t *testing.T, dir string, opts ...Option) *Project {
	t.Helper()
	p, err := Open(dir, opts...)
	require.NoError(t, err)
	return p
}

func TestOpen(t *testing.T) {
	p := openTestProject(t, newTestProject(t))

	assert.Equal(t, "Shopkeeper", p.Name())
	assert.Equal(t, "1.6", p.Manifest().ResourceVersion())
	assert.Equal(t, "2022.9.1.66", p.Manifest().IDEVersion())
	assert.Equal(t, 3, p.Resources().Len())
	assert.Equal(t, 2, p.Folders().Len())
	assert.Len(t, p.Resources().Scripts(), 2)
	assert.False(t, p.Changed())
}

func TestOpenFailures(t *testing.T) {
	t.Run("no project file", func(t *testing.T) {
		_, err := Open(t.TempDir())
		assert.ErrorIs(t, err, resource.ErrInvariantViolation)
	})

	t.Run("two project files", func(t *testing.T) {
		dir := newTestProject(t)
		writeTestFile(t, filepath.Join(dir, "Other.yyp"), testManifest)
		_, err := Open(dir)
		assert.ErrorIs(t, err, resource.ErrInvariantViolation)
	})

	t.Run("unsupported version", func(t *testing.T) {
		dir := newTestProject(t)
		writeTestFile(t, filepath.Join(dir, "Shopkeeper.yyp"), `{"resources":[],"Folders":[],"resourceVersion":"2.0","name":"Shopkeeper"}`)
		_, err := Open(dir)
		assert.ErrorIs(t, err, resource.ErrUnsupportedProjectVersion)
	})

	t.Run("unknown kind", func(t *testing.T) {
		dir := newTestProject(t)
		writeTestFile(t, filepath.Join(dir, "Shopkeeper.yyp"), `{"resources":[{"id":{"name":"ps_fire","path":"particles/ps_fire/ps_fire.yy"},"order":0}],"Folders":[],"resourceVersion":"1.6","name":"Shopkeeper"}`)
		writeTestFile(t, filepath.Join(dir, "particles/ps_fire/ps_fire.yy"), descriptor("ps_fire", "FX", ""))
		_, err := Open(dir)
		assert.ErrorIs(t, err, resource.ErrUnknownResourceKind)

		p, err := Open(dir, WithAllowUnknownKinds())
		require.NoError(t, err)
		assert.Equal(t, resource.KindUnknown, p.Resources().All()[0].Kind())
	})

	t.Run("malformed descriptor", func(t *testing.T) {
		dir := newTestProject(t)
		writeTestFile(t, filepath.Join(dir, "sounds/snd_coin/snd_coin.yy"), "{ not json")
		_, err := Open(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "snd_coin")
	})
}

func TestSaveWithoutChangesKeepsFile(t *testing.T) {
	dir := newTestProject(t)
	p := openTestProject(t, dir)

	require.NoError(t, p.Save())
	raw, err := os.ReadFile(filepath.Join(dir, "Shopkeeper.yyp"))
	require.NoError(t, err)
	assert.Equal(t, testManifest, string(raw))
}

func TestEnsureSoundExistsEndToEnd(t *testing.T) {
	dir := newTestProject(t)
	p := openTestProject(t, dir)
	src := filepath.Join(t.TempDir(), "explosion.wav")
	writeTestFile(t, src, "RIFF-first")

	first, err := p.EnsureSoundExists(src)
	require.NoError(t, err)
	require.NoError(t, p.Save())

	reopened := openTestProject(t, dir)
	sounds := reopened.Resources().Sounds()
	require.Len(t, sounds, 2)
	snd, ok := resource.FindByField[*resource.Sound](reopened.Resources(), "name", "explosion")
	require.True(t, ok)
	assert.Equal(t, first.ID(), snd.ID())
	assert.Equal(t, resource.DefaultFolder, snd.FolderPath())
	_, ok = reopened.Folders().Find(resource.DefaultFolder)
	assert.True(t, ok, "the default folder is added to the tree")

	other := filepath.Join(t.TempDir(), "explosion.wav")
	writeTestFile(t, other, "RIFF-second")
	second, err := reopened.EnsureSoundExists(other)
	require.NoError(t, err)
	assert.Equal(t, first.ID(), second.ID())
	assert.False(t, reopened.Changed(), "replacing a payload leaves the manifest alone")

	payload, err := os.ReadFile(second.AudioFilePath())
	require.NoError(t, err)
	assert.Equal(t, "RIFF-second", string(payload))
}

func TestSaveKeepsUntouchedBytes(t *testing.T) {
	dir := newTestProject(t)
	p := openTestProject(t, dir)
	src := filepath.Join(t.TempDir(), "explosion.wav")
	writeTestFile(t, src, "RIFF")
	_, err := p.EnsureSoundExists(src)
	require.NoError(t, err)
	require.NoError(t, p.Save())
	assert.False(t, p.Changed())

	want := strings.Replace(testManifest,
		`{"id":{"name":"snd_coin","path":"sounds/snd_coin/snd_coin.yy",},"order":1,},`+"\n",
		`{"id":{"name":"snd_coin","path":"sounds/snd_coin/snd_coin.yy",},"order":1,},`+"\n"+
			`    {"id":{"name":"explosion","path":"sounds/explosion/explosion.yy",},"order":4,},`+"\n", 1)
	want = strings.Replace(want,
		`"name":"Inventory","tags":[],"resourceType":"GMFolder",},`+"\n",
		`"name":"Inventory","tags":[],"resourceType":"GMFolder",},`+"\n"+
			`    {"folderPath":"folders/NEW.yy","order":3,"resourceVersion":"1.0","name":"NEW","tags":[],"resourceType":"GMFolder",},`+"\n", 1)
	raw, err := os.ReadFile(filepath.Join(dir, "Shopkeeper.yyp"))
	require.NoError(t, err)
	assert.Equal(t, want, string(raw))

	reopened := openTestProject(t, dir)
	assert.Equal(t, 4, reopened.Resources().Len())
	assert.Equal(t, "461609314234257646", reopened.Manifest().Field("AudioGroups.0.targets").Raw, "large numbers are kept verbatim")
	for i, res := range p.Resources().All() {
		other := reopened.Resources().All()[i]
		assert.Equal(t, res.ID(), other.ID())
		assert.Equal(t, res.FolderPath(), other.FolderPath())
	}
}

func TestSaveAfterRemoveKeepsOtherEntries(t *testing.T) {
	dir := newTestProject(t)
	p := openTestProject(t, dir)
	require.NoError(t, p.RemoveResource(resource.KindScript, "scr_shop"))
	require.NoError(t, p.Save())

	want := strings.Replace(testManifest,
		`    {"id":{"name":"scr_shop","path":"scripts/scr_shop/scr_shop.yy",},"order":3,},`+"\n", "", 1)
	raw, err := os.ReadFile(filepath.Join(dir, "Shopkeeper.yyp"))
	require.NoError(t, err)
	assert.Equal(t, want, string(raw))
}

func TestSaveAddsMissingFolders(t *testing.T) {
	dir := newTestProject(t)
	manifest := strings.Replace(testManifest, "  \"Folders\": [\n", "  \"Folderz\": [\n", 1)
	writeTestFile(t, filepath.Join(dir, "Shopkeeper.yyp"), manifest)
	p := openTestProject(t, dir)
	assert.Equal(t, 0, p.Folders().Len())

	_, err := p.EnsureScriptExists("scr_new", "x = 1;")
	require.NoError(t, err)
	require.NoError(t, p.Save())

	reopened := openTestProject(t, dir)
	_, ok := reopened.Folders().Find(resource.DefaultFolder)
	assert.True(t, ok)
	assert.Equal(t, 4, reopened.Resources().Len())
	assert.Equal(t, p.Manifest().Field("Folderz").Raw, reopened.Manifest().Field("Folderz").Raw)
}

func TestImportSounds(t *testing.T) {
	p := openTestProject(t, newTestProject(t))
	src := t.TempDir()
	writeTestFile(t, filepath.Join(src, "sfx/jump.wav"), "a")
	writeTestFile(t, filepath.Join(src, "sfx/land.OGG"), "b")
	writeTestFile(t, filepath.Join(src, "music/Main Theme.mp3"), "c")
	writeTestFile(t, filepath.Join(src, "notes.txt"), "d")

	sounds, err := p.ImportSounds(src)
	require.NoError(t, err)
	var names []string
	for _, snd := range sounds {
		names = append(names, snd.Name())
	}
	assert.ElementsMatch(t, []string{"jump", "land", "main_theme"}, names)
	assert.Len(t, p.Resources().Sounds(), 4)

	sounds, err = p.ImportSounds(src, "wav")
	require.NoError(t, err)
	require.Len(t, sounds, 1)
	assert.Len(t, p.Resources().Sounds(), 4, "a second import updates in place")

	_, err = p.ImportSounds(filepath.Join(src, "missing"))
	assert.ErrorIs(t, err, resource.ErrInvalidUpsertTarget)
}

func TestImportSprites(t *testing.T) {
	p := openTestProject(t, newTestProject(t))
	src := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 4))))
	writeTestFile(t, filepath.Join(src, "hero.png"), buf.String())

	sprites, err := p.ImportSprites(filepath.Join(src, "hero.png"))
	require.NoError(t, err)
	require.Len(t, sprites, 1)
	assert.Equal(t, "hero", sprites[0].Name())
	assert.Equal(t, 8, sprites[0].Width())
	assert.Equal(t, 4, sprites[0].Height())
}

func TestGlobalFunctions(t *testing.T) {
	p := openTestProject(t, newTestProject(t))
	funcs, err := p.GlobalFunctions()
	require.NoError(t, err)
	var names []string
	for _, fn := range funcs {
		names = append(names, fn.Name)
	}
	assert.Equal(t, []string{"inventory_add", "inventory_count", "shop_buy"}, names)

	refs, err := p.FindFunctionReferences("inventory_add", resource.ReferenceOptions{})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "scr_shop", refs[0].Resource)

	refs, err = p.FindFunctionReferences("nope", resource.ReferenceOptions{})
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestRenameGlobalFunction(t *testing.T) {
	dir := newTestProject(t)
	p := openTestProject(t, dir)

	n, err := p.RenameGlobalFunction("inventory_add", "inventory_push")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	raw, err := os.ReadFile(filepath.Join(dir, "scripts/scr_shop/scr_shop.gml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "inventory_push(item);")
	assert.NotContains(t, string(raw), "inventory_add")

	_, ok, err := p.FindGlobalFunction("inventory_push")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = p.RenameGlobalFunction("inventory_push", "shop_buy")
	assert.ErrorIs(t, err, resource.ErrInvariantViolation)
	_, err = p.RenameGlobalFunction("inventory_push", "not valid")
	assert.ErrorIs(t, err, resource.ErrInvalidUpsertTarget)
	_, err = p.RenameGlobalFunction("missing", "other")
	assert.ErrorIs(t, err, resource.ErrInvariantViolation)
}

func TestRemoveResource(t *testing.T) {
	dir := newTestProject(t)
	p := openTestProject(t, dir)

	require.NoError(t, p.RemoveResource(resource.KindSound, "snd_coin"))
	assert.NoDirExists(t, filepath.Join(dir, "sounds/snd_coin"))
	require.NoError(t, p.Save())

	reopened := openTestProject(t, dir)
	assert.Empty(t, reopened.Resources().Sounds())

	err := reopened.RemoveResource(resource.KindSound, "snd_coin")
	assert.ErrorIs(t, err, resource.ErrInvariantViolation)
}
