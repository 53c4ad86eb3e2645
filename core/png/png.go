// Package png compresses and inspects PNG images: palette quantization
// for the lossy path, scanline re-filtering plus deflate recompression
// for the lossless one, and chunk-level metadata stripping for both.
package png

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	stdpng "image/png"

	"github.com/ericpauley/go-quantize/quantize"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/ankit-chaubey/media-preparer/core"
)

// Processor implements core.Processor for PNG.
type Processor struct{}

// New returns the PNG processor.
func New() *Processor { return &Processor{} }

func (p *Processor) Formats() []core.Format { return []core.Format{core.FmtPNG} }

func (p *Processor) Operations() []core.Operation {
	return []core.Operation{core.OpCompress, core.OpConvert, core.OpInspect}
}

// Process runs quantization when the config is lossy, then the lossless
// chunk pass (strip + IDAT recompression) on the result. The chunk pass
// alone never changes pixel data, so a lossless run stays bit-exact on
// decode.
func (p *Processor) Process(data []byte, cfg core.ProcessingConfig) ([]byte, error) {
	chunks, err := parseChunks(data)
	if err != nil {
		return nil, err
	}
	if cfg.Lossy {
		quantized, err := quantizePNG(data, cfg)
		if err != nil {
			return nil, err
		}
		fresh, err := parseChunks(quantized)
		if err != nil {
			return nil, core.WrapError(core.KindQuantize, core.FmtPNG, err)
		}
		// Re-encoding discards ancillary chunks; carry the originals over
		// so the strip mode alone decides what survives.
		chunks = carryAncillary(fresh, chunks)
	}
	chunks = applyStrip(chunks, cfg.Strip)
	chunks, err = optimizeIDAT(chunks, cfg)
	if err != nil {
		return nil, err
	}
	return serializeChunks(chunks), nil
}

// quantizePNG reduces the image to an indexed palette sized by quality
// and re-encodes it. The stdlib encoder writes no ancillary chunks, so
// the strip pass that follows only sees IHDR/PLTE/tRNS/IDAT/IEND.
func quantizePNG(data []byte, cfg core.ProcessingConfig) ([]byte, error) {
	img, err := stdpng.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, core.WrapError(core.KindDecode, core.FmtPNG, err)
	}

	paletteSize := 16 + (cfg.Quality*240)/100
	if paletteSize > 256 {
		paletteSize = 256
	}

	q := quantize.MedianCutQuantizer{
		Aggregation:    quantize.Mean,
		AddTransparent: true,
	}
	palette := q.Quantize(make(color.Palette, 0, paletteSize), img)
	if len(palette) == 0 {
		return nil, core.Errorf(core.KindQuantize, core.FmtPNG, "empty palette")
	}

	bounds := img.Bounds()
	dst := image.NewPaletted(bounds, palette)
	// Dithering hides banding on low palette counts but adds noise that
	// compresses worse; skip it near the top of the quality range.
	if cfg.Quality < 90 {
		draw.FloydSteinberg.Draw(dst, bounds, img, bounds.Min)
	} else {
		draw.Draw(dst, bounds, img, bounds.Min, draw.Src)
	}

	var buf bytes.Buffer
	enc := stdpng.Encoder{CompressionLevel: stdpng.BestCompression}
	if err := enc.Encode(&buf, dst); err != nil {
		return nil, core.WrapError(core.KindQuantize, core.FmtPNG, err)
	}
	return buf.Bytes(), nil
}

var colorTypeNames = map[byte]string{
	0: "Grayscale",
	2: "Truecolor",
	3: "Indexed",
	4: "Grayscale+Alpha",
	6: "Truecolor+Alpha",
}

// Inspect lists the image properties, every chunk with its criticality,
// and decodes textual and EXIF metadata.
func (p *Processor) Inspect(data []byte) (*core.Metadata, error) {
	chunks, err := parseChunks(data)
	if err != nil {
		return nil, err
	}
	m := &core.Metadata{Format: core.FmtPNG, FileSize: len(data)}

	hdr, err := parseHeader(chunks[0])
	if err != nil {
		return nil, err
	}
	m.Add("PNG", "Dimensions", fmt.Sprintf("%d x %d", hdr.width, hdr.height))
	m.Add("PNG", "BitDepth", fmt.Sprintf("%d", hdr.bitDepth))
	m.Add("PNG", "ColorType", colorTypeNames[hdr.colorType])
	if hdr.interlace == 1 {
		m.Add("PNG", "Interlace", "Adam7")
	}

	idatCount := 0
	for _, c := range chunks {
		switch c.typ {
		case "IDAT":
			idatCount++
			continue
		case "tEXt":
			key, val := splitKeyword(c.data)
			m.Add("PNG tEXt", key, val)
		case "iTXt":
			key, val := splitITXT(c.data)
			m.Add("PNG iTXt", key, val)
		case "tIME":
			if len(c.data) == 7 {
				year := binary.BigEndian.Uint16(c.data[0:2])
				m.Add("PNG tIME", "LastModified", fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
					year, c.data[2], c.data[3], c.data[4], c.data[5], c.data[6]))
			}
		case "eXIf":
			if x, err := exif.Decode(bytes.NewReader(c.data)); err == nil {
				x.Walk(exifWalker{m: m})
			}
		case "gAMA":
			if len(c.data) == 4 {
				m.Add("PNG", "Gamma", fmt.Sprintf("%.5f", float64(binary.BigEndian.Uint32(c.data))/100000))
			}
		}
		class := "ancillary"
		if c.critical() {
			class = "critical"
		}
		m.Add("PNG Chunks", c.typ, fmt.Sprintf("%d bytes (%s)", len(c.data), class))
	}
	m.Add("PNG Chunks", "IDAT", fmt.Sprintf("%d segment(s) (critical)", idatCount))
	return m, nil
}

// splitKeyword splits a tEXt payload at its NUL separator.
func splitKeyword(data []byte) (string, string) {
	null := bytes.IndexByte(data, 0)
	if null <= 0 {
		return "", ""
	}
	val := ""
	if null+1 < len(data) {
		val = string(data[null+1:])
	}
	return string(data[:null]), val
}

// splitITXT extracts keyword and text from an uncompressed iTXt payload:
// keyword, flag, method, language and translated keyword precede the text,
// each NUL-terminated.
func splitITXT(data []byte) (string, string) {
	null := bytes.IndexByte(data, 0)
	if null <= 0 || null+3 > len(data) {
		return "", ""
	}
	key := string(data[:null])
	rest := data[null+3:]
	for i := 0; i < 2; i++ {
		n := bytes.IndexByte(rest, 0)
		if n < 0 {
			return key, ""
		}
		rest = rest[n+1:]
	}
	return key, string(rest)
}

type exifWalker struct {
	m *core.Metadata
}

func (w exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	val := tag.String()
	if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
		val = val[1 : len(val)-1]
	}
	w.m.Add("EXIF", string(name), val)
	return nil
}
