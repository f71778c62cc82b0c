package emulator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-oxitop/bottle"
)

const singleBottleXML = `<?xml version="1.0" encoding="UTF-8"?>
<bottle serial="110222-06" id="999" start="2011-02-22T16:54:55" finish="2011-03-08T16:54:55"
        measurements="360" mode="pressure" bottlevolume="510.0" samplevolume="432.0" dilution="0">
  <head serial="60108" pressurelimit="150">
    <autoreadings>
      <reading value="970"/>
      <reading value="965"/>
    </autoreadings>
    <manualreadings/>
  </head>
</bottle>
`

func TestDefinition_RoundTrip(t *testing.T) {
	ds := DefaultDataset()

	for _, format := range []Format{FormatYAML, FormatCBOR, FormatXML} {
		t.Run(format.String(), func(t *testing.T) {
			data, err := ds.Definition().Marshal(format)
			require.NoError(t, err)

			def, err := ParseDefinition(data, format)
			require.NoError(t, err)

			got, err := def.Dataset()
			require.NoError(t, err)
			assertSameBottles(t, ds.Bottles(), got.Bottles())
		})
	}
}

func TestLoadDefinition(t *testing.T) {
	dir := t.TempDir()
	ds := DefaultDataset()

	for name, format := range map[string]Format{
		"bottles.yaml": FormatYAML,
		"bottles.yml":  FormatYAML,
		"bottles.cbor": FormatCBOR,
		"bottles.XML":  FormatXML,
	} {
		data, err := ds.Definition().Marshal(format)
		require.NoError(t, err)

		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, data, 0o600))

		def, err := LoadDefinition(path)
		require.NoError(t, err, name)
		got, err := def.Dataset()
		require.NoError(t, err, name)
		assert.Equal(t, ds.Serials(), got.Serials(), name)
	}

	_, err := LoadDefinition(filepath.Join(dir, "bottles.json"))
	require.ErrorIs(t, err, ErrUnknownFormat)

	_, err = LoadDefinition(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseDefinition_SingleBottleXML(t *testing.T) {
	def, err := ParseDefinition([]byte(singleBottleXML), FormatXML)
	require.NoError(t, err)

	ds, err := def.Dataset()
	require.NoError(t, err)

	b, ok := ds.Bottle("110222-06")
	require.True(t, ok)
	assert.Equal(t, bottle.Pressure, b.Mode.Kind)
	assert.InDelta(t, 432.0, b.SampleVolume, 1e-9)

	readings := b.Heads[0].Readings
	require.Len(t, readings, 2)
	points := bottle.Delta(readings)
	assert.Equal(t, []bottle.Point{
		{Timestamp: b.Start, Value: 0},
		{Timestamp: b.Start.Add(56 * time.Minute), Value: -5},
	}, points)
}

func TestParseDefinition_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad start", `bottles: [{serial: "110222-06", id: 1, start: "22/02/2011", finish: "2011-03-08T16:54:55", measurements: 360, mode: pressure, heads: [{serial: "60108"}]}]`},
		{"bad mode", `bottles: [{serial: "110222-06", id: 1, start: "2011-02-22T16:54:55", finish: "2011-03-08T16:54:55", measurements: 360, mode: manual, heads: [{serial: "60108"}]}]`},
		{"two pressure heads", `bottles: [{serial: "110222-06", id: 1, start: "2011-02-22T16:54:55", finish: "2011-03-08T16:54:55", measurements: 360, mode: pressure, heads: [{serial: "60108"}, {serial: "60109"}]}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := ParseDefinition([]byte(tt.doc), FormatYAML)
			require.NoError(t, err)

			_, err = def.Dataset()
			require.ErrorIs(t, err, bottle.ErrMalformedRecord)
		})
	}

	_, err := ParseDefinition([]byte("bottles: [unclosed"), FormatYAML)
	require.Error(t, err)

	_, err = ParseDefinition([]byte("<heads/>"), FormatXML)
	require.Error(t, err)

	_, err = ParseDefinition([]byte{0xff}, FormatCBOR)
	require.Error(t, err)

	_, err = ParseDefinition(nil, Format(9))
	require.ErrorIs(t, err, ErrUnknownFormat)
}
