package jpg

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankit-chaubey/media-preparer/core"
)

func encodeTestJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 8), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestProcessIsUnsupported(t *testing.T) {
	_, err := New().Process(encodeTestJPEG(t), core.DefaultConfig())
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindUnsupportedOperation))
}

func TestInspectReadsFrameHeader(t *testing.T) {
	m, err := New().Inspect(encodeTestJPEG(t))
	require.NoError(t, err)
	assert.Equal(t, core.FmtJPEG, m.Format)

	var dims, mode string
	for _, f := range m.Fields {
		switch f.Key {
		case "Dimensions":
			dims = f.Value
		case "Mode":
			mode = f.Value
		}
	}
	assert.Equal(t, "40 x 30", dims)
	assert.Equal(t, "baseline", mode)
}

func TestInspectSkipsMarkerFillBytes(t *testing.T) {
	// Encoders may pad between segments with extra 0xFF bytes before a
	// marker; inspection must read past them.
	src := encodeTestJPEG(t)
	padded := make([]byte, 0, len(src)+3)
	padded = append(padded, src[:2]...)
	padded = append(padded, 0xFF, 0xFF, 0xFF)
	padded = append(padded, src[2:]...)

	m, err := New().Inspect(padded)
	require.NoError(t, err)

	var dims string
	for _, f := range m.Fields {
		if f.Key == "Dimensions" {
			dims = f.Value
		}
	}
	assert.Equal(t, "40 x 30", dims)
}

func TestInspectRejectsNonJPEG(t *testing.T) {
	_, err := New().Inspect([]byte("not a jpeg"))
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindDecode))
}
