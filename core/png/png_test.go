package png

import (
	"bytes"
	"image"
	"image/color"
	stdpng "image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankit-chaubey/media-preparer/core"
)

func encodeTestImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: uint8((x + y) * 4), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, stdpng.Encode(&buf, img))
	return buf.Bytes()
}

// withMetadata inserts a tEXt and a gAMA chunk after IHDR.
func withMetadata(t *testing.T, data []byte) []byte {
	t.Helper()
	chunks, err := parseChunks(data)
	require.NoError(t, err)
	extra := []chunk{
		{typ: "gAMA", data: []byte{0x00, 0x01, 0x5F, 0x90}}, // 1/2.2
		{typ: "tEXt", data: []byte("Comment\x00shot on a test bench")},
	}
	out := append([]chunk{chunks[0]}, extra...)
	out = append(out, chunks[1:]...)
	return serializeChunks(out)
}

func chunkTypes(t *testing.T, data []byte) map[string]int {
	t.Helper()
	chunks, err := parseChunks(data)
	require.NoError(t, err)
	types := map[string]int{}
	for _, c := range chunks {
		types[c.typ]++
	}
	return types
}

func losslessCfg(strip core.StripMode) core.ProcessingConfig {
	cfg := core.DefaultConfig()
	cfg.Lossy = false
	cfg.Strip = strip
	return cfg
}

func TestParseSerializeRoundTrip(t *testing.T) {
	data := encodeTestImage(t)
	chunks, err := parseChunks(data)
	require.NoError(t, err)
	assert.Equal(t, data, serializeChunks(chunks))
}

func TestParseRejectsCorruptCRC(t *testing.T) {
	data := encodeTestImage(t)
	data[20] ^= 0xFF // inside IHDR payload
	_, err := parseChunks(data)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindDecode))
}

func TestStripAllRemovesEveryAncillaryChunk(t *testing.T) {
	data := withMetadata(t, encodeTestImage(t))
	out, err := New().Process(data, losslessCfg(core.StripAll))
	require.NoError(t, err)

	types := chunkTypes(t, out)
	assert.NotContains(t, types, "tEXt")
	assert.NotContains(t, types, "gAMA")
	assert.Contains(t, types, "IHDR")
	assert.Contains(t, types, "IDAT")
	assert.Contains(t, types, "IEND")
}

func TestStripSafeKeepsRenderingChunks(t *testing.T) {
	data := withMetadata(t, encodeTestImage(t))
	out, err := New().Process(data, losslessCfg(core.StripSafe))
	require.NoError(t, err)

	types := chunkTypes(t, out)
	assert.Contains(t, types, "gAMA")
	assert.NotContains(t, types, "tEXt")
}

func TestStripNoneKeepsEverything(t *testing.T) {
	data := withMetadata(t, encodeTestImage(t))
	out, err := New().Process(data, losslessCfg(core.StripNone))
	require.NoError(t, err)

	types := chunkTypes(t, out)
	assert.Contains(t, types, "gAMA")
	assert.Contains(t, types, "tEXt")
}

func TestStripMonotonicity(t *testing.T) {
	data := withMetadata(t, encodeTestImage(t))
	p := New()

	all, err := p.Process(data, losslessCfg(core.StripAll))
	require.NoError(t, err)
	safe, err := p.Process(data, losslessCfg(core.StripSafe))
	require.NoError(t, err)
	none, err := p.Process(data, losslessCfg(core.StripNone))
	require.NoError(t, err)

	assert.LessOrEqual(t, len(all), len(safe))
	assert.LessOrEqual(t, len(safe), len(none))
}

func TestLosslessOutputDecodesIdentically(t *testing.T) {
	data := encodeTestImage(t)
	out, err := New().Process(data, losslessCfg(core.StripAll))
	require.NoError(t, err)

	want, err := stdpng.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	got, err := stdpng.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	bounds := want.Bounds()
	require.Equal(t, bounds, got.Bounds())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			wr, wg, wb, wa := want.At(x, y).RGBA()
			gr, gg, gb, ga := got.At(x, y).RGBA()
			require.Equal(t, [4]uint32{wr, wg, wb, wa}, [4]uint32{gr, gg, gb, ga},
				"pixel mismatch at (%d,%d)", x, y)
		}
	}
}

func TestLosslessIdempotent(t *testing.T) {
	data := withMetadata(t, encodeTestImage(t))
	p := New()
	cfg := losslessCfg(core.StripAll)

	once, err := p.Process(data, cfg)
	require.NoError(t, err)
	twice, err := p.Process(once, cfg)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestLossyQuantizesToPalette(t *testing.T) {
	data := encodeTestImage(t)
	cfg := core.DefaultConfig()
	out, err := New().Process(data, cfg)
	require.NoError(t, err)

	chunks, err := parseChunks(out)
	require.NoError(t, err)
	hdr, err := parseHeader(chunks[0])
	require.NoError(t, err)
	assert.EqualValues(t, 3, hdr.colorType, "expected indexed color")

	_, err = stdpng.Decode(bytes.NewReader(out))
	require.NoError(t, err)
}

func TestLossyStripNoneCarriesMetadata(t *testing.T) {
	data := withMetadata(t, encodeTestImage(t))
	cfg := core.DefaultConfig()
	cfg.Strip = core.StripNone
	out, err := New().Process(data, cfg)
	require.NoError(t, err)

	types := chunkTypes(t, out)
	assert.Contains(t, types, "tEXt")
	assert.Contains(t, types, "gAMA")
}

func TestQualityControlsPaletteSize(t *testing.T) {
	data := encodeTestImage(t)
	p := New()

	low := core.DefaultConfig()
	low.Quality = 5
	high := core.DefaultConfig()
	high.Quality = 100

	lowOut, err := p.Process(data, low)
	require.NoError(t, err)
	highOut, err := p.Process(data, high)
	require.NoError(t, err)

	lowPal := paletteLen(t, lowOut)
	highPal := paletteLen(t, highOut)
	assert.Less(t, lowPal, highPal)
}

func paletteLen(t *testing.T, data []byte) int {
	t.Helper()
	img, err := stdpng.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	pal, ok := img.(*image.Paletted)
	require.True(t, ok)
	return len(pal.Palette)
}

func TestInspectReportsChunksAndText(t *testing.T) {
	data := withMetadata(t, encodeTestImage(t))
	m, err := New().Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, core.FmtPNG, m.Format)
	assert.Equal(t, len(data), m.FileSize)

	assert.Equal(t, "32 x 32", fieldValue(m, "Dimensions"))
	assert.Equal(t, "shot on a test bench", fieldValue(m, "Comment"))
	assert.NotEmpty(t, fieldValue(m, "Gamma"))
}

func fieldValue(m *core.Metadata, key string) string {
	for _, f := range m.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}
