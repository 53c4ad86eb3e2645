package png

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/ankit-chaubey/media-preparer/core"
)

var signature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// chunk is one decoded PNG chunk. CRC is recomputed on write, so it is
// not stored here.
type chunk struct {
	typ  string
	data []byte
}

// critical reports whether the chunk must survive every strip mode.
// Besides the chunks the format itself marks critical (uppercase first
// letter), tRNS is treated as critical: dropping it changes how paletted
// transparency renders.
func (c chunk) critical() bool {
	return c.typ[0]&0x20 == 0 || c.typ == "tRNS"
}

// safeRetain lists ancillary chunks kept under StripSafe: rendering
// semantics (gamma, chromaticity, color profile) but nothing textual or
// identifying.
var safeRetain = map[string]bool{
	"gAMA": true,
	"cHRM": true,
	"sRGB": true,
	"iCCP": true,
}

// parseChunks splits a PNG buffer into chunks, verifying the signature
// and each chunk CRC.
func parseChunks(data []byte) ([]chunk, error) {
	if !bytes.HasPrefix(data, signature) {
		return nil, core.Errorf(core.KindDecode, core.FmtPNG, "missing PNG signature")
	}
	var chunks []chunk
	pos := len(signature)
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		if pos+12+length > len(data) {
			return nil, core.Errorf(core.KindDecode, core.FmtPNG, "truncated chunk at offset %d", pos)
		}
		typ := string(data[pos+4 : pos+8])
		payload := data[pos+8 : pos+8+length]
		want := binary.BigEndian.Uint32(data[pos+8+length : pos+12+length])
		if crc32.Update(crc32.ChecksumIEEE(data[pos+4:pos+8]), crc32.IEEETable, payload) != want {
			return nil, core.Errorf(core.KindDecode, core.FmtPNG, "bad CRC on %s chunk", typ)
		}
		chunks = append(chunks, chunk{typ: typ, data: append([]byte{}, payload...)})
		pos += 12 + length
		if typ == "IEND" {
			break
		}
	}
	if len(chunks) == 0 || chunks[0].typ != "IHDR" {
		return nil, core.Errorf(core.KindDecode, core.FmtPNG, "IHDR not first chunk")
	}
	if chunks[len(chunks)-1].typ != "IEND" {
		return nil, core.Errorf(core.KindDecode, core.FmtPNG, "IEND missing")
	}
	return chunks, nil
}

// serializeChunks writes the signature plus all chunks with fresh CRCs.
func serializeChunks(chunks []chunk) []byte {
	var buf bytes.Buffer
	buf.Write(signature)
	var hdr [8]byte
	for _, c := range chunks {
		binary.BigEndian.PutUint32(hdr[0:4], uint32(len(c.data)))
		copy(hdr[4:8], c.typ)
		buf.Write(hdr[:])
		buf.Write(c.data)
		crc := crc32.Update(crc32.ChecksumIEEE([]byte(c.typ)), crc32.IEEETable, c.data)
		var crcBuf [4]byte
		binary.BigEndian.PutUint32(crcBuf[:], crc)
		buf.Write(crcBuf[:])
	}
	return buf.Bytes()
}

// applyStrip filters ancillary chunks according to the retention policy.
// Critical chunks always survive.
func applyStrip(chunks []chunk, mode core.StripMode) []chunk {
	if mode == core.StripNone {
		return chunks
	}
	out := chunks[:0:0]
	for _, c := range chunks {
		if c.critical() {
			out = append(out, c)
			continue
		}
		if mode == core.StripSafe && safeRetain[c.typ] {
			out = append(out, c)
		}
	}
	return out
}

// carryAncillary inserts src's ancillary chunks into dst right after
// IHDR. tRNS is excluded: it describes src's pixel encoding, which the
// quantized image no longer has.
func carryAncillary(dst, src []chunk) []chunk {
	var carried []chunk
	for _, c := range src {
		if !c.critical() {
			carried = append(carried, c)
		}
	}
	if len(carried) == 0 {
		return dst
	}
	out := make([]chunk, 0, len(dst)+len(carried))
	out = append(out, dst[0])
	out = append(out, carried...)
	out = append(out, dst[1:]...)
	return out
}

// header is the decoded IHDR payload.
type header struct {
	width, height       int
	bitDepth, colorType byte
	interlace           byte
}

func parseHeader(c chunk) (header, error) {
	if c.typ != "IHDR" || len(c.data) < 13 {
		return header{}, core.Errorf(core.KindDecode, core.FmtPNG, "malformed IHDR")
	}
	return header{
		width:     int(binary.BigEndian.Uint32(c.data[0:4])),
		height:    int(binary.BigEndian.Uint32(c.data[4:8])),
		bitDepth:  c.data[8],
		colorType: c.data[9],
		interlace: c.data[12],
	}, nil
}

// channels per color type: gray, rgb, palette, gray+alpha, rgba.
func (h header) channels() int {
	switch h.colorType {
	case 2:
		return 3
	case 4:
		return 2
	case 6:
		return 4
	default:
		return 1
	}
}

func (h header) bytesPerLine() int {
	return (h.width*int(h.bitDepth)*h.channels() + 7) / 8
}

// bytesPerPixel for filtering purposes; always at least 1.
func (h header) bytesPerPixel() int {
	bpp := int(h.bitDepth) * h.channels() / 8
	if bpp < 1 {
		bpp = 1
	}
	return bpp
}

// optimizeIDAT merges all IDAT chunks, re-filters the scanlines with a
// per-line heuristic search, and recompresses the stream at several
// deflate levels, keeping whichever variant comes out smallest —
// including the original stream, so the pass never grows the image data.
func optimizeIDAT(chunks []chunk, cfg core.ProcessingConfig) ([]chunk, error) {
	hdr, err := parseHeader(chunks[0])
	if err != nil {
		return nil, err
	}

	var original bytes.Buffer
	for _, c := range chunks {
		if c.typ == "IDAT" {
			original.Write(c.data)
		}
	}
	if original.Len() == 0 {
		return nil, core.Errorf(core.KindDecode, core.FmtPNG, "no IDAT data")
	}

	raw, err := inflate(original.Bytes())
	if err != nil {
		return nil, core.WrapError(core.KindOptimize, core.FmtPNG, err)
	}

	candidates := [][]byte{raw}
	// Interlaced images keep their original filtering: Adam7 pass
	// geometry makes per-line search not worth the complexity.
	if hdr.interlace == 0 && len(raw) == (hdr.bytesPerLine()+1)*hdr.height {
		if refiltered, ok := refilter(raw, hdr, cfg.Speed); ok {
			candidates = append(candidates, refiltered)
		}
	}

	best := original.Bytes()
	levels := []int{zlib.BestCompression}
	if cfg.Speed <= 3 {
		levels = append(levels, 6)
	}
	for _, cand := range candidates {
		for _, level := range levels {
			compressed, err := deflate(cand, level)
			if err != nil {
				return nil, core.WrapError(core.KindOptimize, core.FmtPNG, err)
			}
			if len(compressed) < len(best) {
				best = compressed
			}
		}
	}

	out := make([]chunk, 0, len(chunks))
	wrote := false
	for _, c := range chunks {
		if c.typ != "IDAT" {
			out = append(out, c)
			continue
		}
		if !wrote {
			out = append(out, chunk{typ: "IDAT", data: best})
			wrote = true
		}
	}
	return out, nil
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func deflate(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// refilter reverses the existing per-line filters and re-applies the one
// minimizing the sum of absolute differences per line (the standard
// heuristic for deflate-friendliness). High speed settings skip the
// search and filter every line with Paeth.
func refilter(raw []byte, hdr header, speed int) ([]byte, bool) {
	stride := hdr.bytesPerLine()
	bpp := hdr.bytesPerPixel()
	rowSize := stride + 1

	// Reconstruct unfiltered scanlines.
	pixels := make([]byte, hdr.height*stride)
	prev := make([]byte, stride)
	for y := 0; y < hdr.height; y++ {
		row := raw[y*rowSize : (y+1)*rowSize]
		cur := pixels[y*stride : (y+1)*stride]
		copy(cur, row[1:])
		if !unfilterLine(row[0], cur, prev, bpp) {
			return nil, false
		}
		prev = cur
	}

	out := make([]byte, hdr.height*rowSize)
	prev = make([]byte, stride)
	scratch := make([]byte, stride)
	for y := 0; y < hdr.height; y++ {
		cur := pixels[y*stride : (y+1)*stride]
		dst := out[y*rowSize : (y+1)*rowSize]
		if speed >= 8 {
			dst[0] = 4
			filterLine(4, dst[1:], cur, prev, bpp)
		} else {
			bestFilter, bestScore := byte(0), -1
			for f := byte(0); f <= 4; f++ {
				filterLine(f, scratch, cur, prev, bpp)
				score := 0
				for _, b := range scratch {
					score += abs(int(int8(b)))
				}
				if bestScore < 0 || score < bestScore {
					bestFilter, bestScore = f, score
					copy(dst[1:], scratch)
				}
			}
			dst[0] = bestFilter
		}
		prev = cur
	}
	return out, true
}

func unfilterLine(filter byte, cur, prev []byte, bpp int) bool {
	switch filter {
	case 0:
	case 1: // Sub
		for i := bpp; i < len(cur); i++ {
			cur[i] += cur[i-bpp]
		}
	case 2: // Up
		for i := range cur {
			cur[i] += prev[i]
		}
	case 3: // Average
		for i := range cur {
			left := 0
			if i >= bpp {
				left = int(cur[i-bpp])
			}
			cur[i] += byte((left + int(prev[i])) / 2)
		}
	case 4: // Paeth
		for i := range cur {
			var left, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			cur[i] += paeth(left, prev[i], upLeft)
		}
	default:
		return false
	}
	return true
}

func filterLine(filter byte, dst, cur, prev []byte, bpp int) {
	switch filter {
	case 0:
		copy(dst, cur)
	case 1:
		for i := range cur {
			if i >= bpp {
				dst[i] = cur[i] - cur[i-bpp]
			} else {
				dst[i] = cur[i]
			}
		}
	case 2:
		for i := range cur {
			dst[i] = cur[i] - prev[i]
		}
	case 3:
		for i := range cur {
			left := 0
			if i >= bpp {
				left = int(cur[i-bpp])
			}
			dst[i] = cur[i] - byte((left+int(prev[i]))/2)
		}
	case 4:
		for i := range cur {
			var left, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			dst[i] = cur[i] - paeth(left, prev[i], upLeft)
		}
	}
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
