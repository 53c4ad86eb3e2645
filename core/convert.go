package core

import (
	"bytes"
	"image"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	// WebP sources decode through the image registry.
	_ "golang.org/x/image/webp"
)

// convertImage decodes the input (PNG, JPEG or WebP) and re-encodes it in
// the target format. JPEG and WebP honor Quality; a lossless config maps
// to maximum-quality JPEG and lossless WebP.
func convertImage(data []byte, target Format, cfg ProcessingConfig) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, WrapError(KindDecode, DetectFormat(data), err)
	}

	switch target {
	case FmtPNG:
		return encodePNG(img)
	case FmtJPEG:
		return encodeJPEG(img, cfg)
	case FmtWebP:
		return encodeWebP(img, cfg)
	default:
		return nil, Errorf(KindUnsupportedOperation, target, "cannot convert to %s", target.Name())
	}
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, WrapError(KindEncode, FmtPNG, err)
	}
	return buf.Bytes(), nil
}

func encodeJPEG(img image.Image, cfg ProcessingConfig) ([]byte, error) {
	quality := cfg.Quality
	if !cfg.Lossy {
		quality = 100
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, WrapError(KindEncode, FmtJPEG, err)
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, cfg ProcessingConfig) ([]byte, error) {
	opt := &webp.Options{Lossless: !cfg.Lossy, Quality: float32(cfg.Quality)}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, opt); err != nil {
		return nil, WrapError(KindEncode, FmtWebP, err)
	}
	return buf.Bytes(), nil
}
