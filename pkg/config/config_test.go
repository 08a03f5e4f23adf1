package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/arbiter/pkg/engine"
	"github.com/cuemby/arbiter/pkg/registry"
)

const sampleYAML = `
zones:
  - name: living-room
  - name: kitchen
classes:
  - name: phone
    priority: 7
    modal: true
  - name: media
    priority: 3
    order: lifo
resources:
  - name: speaker
    shareable: true
    attributes:
      - name: volume
        type: uint32
        default: "50"
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "arbiter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_ParsesDocument(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	doc, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, doc.Zones, 2)
	assert.Len(t, doc.Classes, 2)
	require.Len(t, doc.Resources, 1)
	assert.Equal(t, "speaker", doc.Resources[0].Name)
}

func TestApply_DeclaresZonesClassesAndResources(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	doc, err := Load(path)
	require.NoError(t, err)

	eng := engine.New(nil)
	require.NoError(t, doc.Apply(eng))

	_, ok := eng.Registry.ZoneByName("kitchen")
	assert.True(t, ok)

	phone, ok := eng.Registry.ClassByName("phone")
	require.True(t, ok)
	assert.True(t, phone.Modal)
	assert.Equal(t, 7, phone.Priority)

	media, ok := eng.Registry.ClassByName("media")
	require.True(t, ok)
	assert.Equal(t, registry.LIFO, media.Order)

	res, ok := eng.Registry.ResourceByName("speaker")
	require.True(t, ok)
	assert.True(t, res.Shareable)
	require.Len(t, res.AttrDefs, 1)
	assert.Equal(t, "volume", res.AttrDefs[0].Name)
}

func TestApply_UnknownAttributeTypeRejected(t *testing.T) {
	path := writeTemp(t, `
zones: []
classes: []
resources:
  - name: bad
    attributes:
      - name: x
        type: bogus
`)
	doc, err := Load(path)
	require.NoError(t, err)

	eng := engine.New(nil)
	err = doc.Apply(eng)
	assert.Error(t, err)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
