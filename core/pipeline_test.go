package core_test

import (
	"bytes"
	"image"
	"image/color"
	stdpng "image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankit-chaubey/media-preparer/core"
	"github.com/ankit-chaubey/media-preparer/core/jpg"
	"github.com/ankit-chaubey/media-preparer/core/mp3"
	"github.com/ankit-chaubey/media-preparer/core/mp4"
	"github.com/ankit-chaubey/media-preparer/core/png"
	"github.com/ankit-chaubey/media-preparer/core/webp"
)

func testPipeline() *core.Pipeline {
	return core.NewPipeline(png.New(), webp.New(), jpg.New(), mp3.New(), mp4.New())
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, stdpng.Encode(&buf, img))
	return buf.Bytes()
}

func TestRegistryCapabilities(t *testing.T) {
	reg := testPipeline().Registry()
	assert.True(t, reg.Supports(core.FmtPNG, core.OpCompress))
	assert.True(t, reg.Supports(core.FmtJPEG, core.OpConvert))
	assert.False(t, reg.Supports(core.FmtJPEG, core.OpCompress))
	assert.False(t, reg.Supports(core.FmtMP3, core.OpConvert))
	assert.True(t, reg.Supports(core.FmtMP4, core.OpExtract))
	assert.Len(t, reg.Formats(), 5)
}

func TestProcessUnregisteredFormat(t *testing.T) {
	asset := core.NewAssetWithFormat([]byte{1, 2, 3}, core.Format("flac"))
	_, err := testPipeline().Process(asset, core.DefaultConfig())
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindUnsupportedFormat))
}

func TestProcessJPEGIsUnsupported(t *testing.T) {
	asset := core.NewAssetWithFormat([]byte{0xFF, 0xD8, 0xFF}, core.FmtJPEG)
	_, err := testPipeline().Process(asset, core.DefaultConfig())
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindUnsupportedOperation))
}

func TestProcessRejectsInvalidConfig(t *testing.T) {
	asset := core.NewAssetWithFormat(testPNG(t), core.FmtPNG)
	cfg := core.DefaultConfig()
	cfg.Quality = -1
	_, err := testPipeline().Process(asset, cfg)
	assert.Error(t, err)
}

func TestProcessPNGEndToEnd(t *testing.T) {
	data := testPNG(t)
	res, err := testPipeline().Process(core.NewAssetWithFormat(data, core.FmtPNG), core.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, len(data), res.OriginalSize)
	assert.Equal(t, len(res.Output), res.NewSize)

	_, err = stdpng.Decode(bytes.NewReader(res.Output))
	require.NoError(t, err, "output must stay decodable")
}

func TestConvertPNGToJPEG(t *testing.T) {
	out, err := testPipeline().Convert(testPNG(t), core.FmtJPEG, core.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, core.FmtJPEG, core.DetectFormat(out))
}

func TestConvertRejectsNonImageTarget(t *testing.T) {
	_, err := testPipeline().Convert(testPNG(t), core.FmtMP3, core.DefaultConfig())
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindUnsupportedOperation))
}

func TestConvertRejectsAudioSource(t *testing.T) {
	mp3Data := append([]byte{0xFF, 0xFB, 0x90, 0x00}, make([]byte, 64)...)
	_, err := testPipeline().Convert(mp3Data, core.FmtPNG, core.DefaultConfig())
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindUnsupportedOperation))
}

func TestInspectDetectsFormat(t *testing.T) {
	m, err := testPipeline().Inspect(testPNG(t))
	require.NoError(t, err)
	assert.Equal(t, core.FmtPNG, m.Format)
	assert.NotEmpty(t, m.Fields)
}

func TestExtractFramesRejectsImages(t *testing.T) {
	_, err := testPipeline().ExtractFrames(testPNG(t), 1)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindUnsupportedOperation))
}

func TestConcurrentProcessing(t *testing.T) {
	pipe := testPipeline()
	data := testPNG(t)
	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := pipe.Process(core.NewAssetWithFormat(data, core.FmtPNG), core.DefaultConfig())
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		assert.NoError(t, <-done)
	}
}
