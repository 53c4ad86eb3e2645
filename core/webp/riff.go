package webp

import (
	"bytes"
	"encoding/binary"

	"github.com/ankit-chaubey/media-preparer/core"
)

// VP8X feature flags, byte 0 of the VP8X payload.
const (
	flagICC   = 0x20
	flagAlpha = 0x10
	flagEXIF  = 0x08
	flagXMP   = 0x04
	flagAnim  = 0x02
)

// parseRIFF splits a WebP file into its chunks. Chunk sizes are
// little-endian and odd-sized payloads are followed by a padding byte
// that belongs to neither chunk.
func parseRIFF(data []byte) ([]core.ContainerElement, error) {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WEBP")) {
		return nil, core.Errorf(core.KindDecode, core.FmtWebP, "missing RIFF/WEBP header")
	}
	var elems []core.ContainerElement
	offset := 12
	for offset+8 <= len(data) {
		tag := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		offset += 8
		if offset+size > len(data) {
			return nil, core.Errorf(core.KindDecode, core.FmtWebP, "truncated %q chunk", tag)
		}
		payload := append([]byte{}, data[offset:offset+size]...)
		elems = append(elems, core.ContainerElement{Tag: tag, Payload: payload})
		offset += (size + 1) &^ 1
	}
	if len(elems) == 0 {
		return nil, core.Errorf(core.KindDecode, core.FmtWebP, "no chunks in container")
	}
	animated, hasAlpha := false, false
	for _, e := range elems {
		switch e.Tag {
		case "ANIM", "ANMF":
			animated = true
		case "ALPH":
			hasAlpha = true
		}
	}
	for i := range elems {
		elems[i].Critical = isCritical(elems[i].Tag, animated, hasAlpha)
	}
	return elems, nil
}

// isCritical marks the chunks a decoder cannot do without: the bitstream
// and alpha plane always, the animation scaffolding when frames are
// present, and VP8X whenever any extended-format feature (animation or a
// separate alpha plane) remains in the file — an ALPH chunk outside the
// extended format is not decodable.
func isCritical(tag string, animated, hasAlpha bool) bool {
	switch tag {
	case "VP8 ", "VP8L", "ALPH":
		return true
	case "VP8X":
		return animated || hasAlpha
	case "ANIM", "ANMF":
		return animated
	}
	return false
}

// safeRetain lists ancillary chunks kept under StripSafe: the structure
// a decoder may want even for single images. ICCP is not on the list;
// ICC payloads routinely embed creator tool and timestamp records.
var safeRetain = map[string]bool{
	"VP8X": true,
	"ANIM": true,
	"ANMF": true,
}

// applyStrip drops ancillary chunks according to the retention policy
// and rewrites the VP8X feature flags to match what was removed. A VP8X
// left with no features and no alpha is dropped entirely.
func applyStrip(elems []core.ContainerElement, mode core.StripMode) []core.ContainerElement {
	if mode == core.StripNone {
		return elems
	}
	kept := elems[:0:0]
	removed := map[string]bool{}
	for _, e := range elems {
		if e.Critical || (mode == core.StripSafe && safeRetain[e.Tag]) {
			kept = append(kept, e)
			continue
		}
		removed[e.Tag] = true
	}
	return fixVP8X(kept, removed)
}

// fixVP8X clears the feature bits of removed chunks and prunes a VP8X
// that no longer announces anything.
func fixVP8X(elems []core.ContainerElement, removed map[string]bool) []core.ContainerElement {
	for i, e := range elems {
		if e.Tag != "VP8X" || len(e.Payload) < 10 {
			continue
		}
		flags := e.Payload[0]
		if removed["ICCP"] {
			flags &^= flagICC
		}
		if removed["EXIF"] {
			flags &^= flagEXIF
		}
		if removed["XMP "] {
			flags &^= flagXMP
		}
		if flags&(flagICC|flagAlpha|flagEXIF|flagXMP|flagAnim) == 0 {
			// Plain single-image file; the bitstream chunk alone suffices.
			return append(elems[:i:i], elems[i+1:]...)
		}
		payload := append([]byte{}, e.Payload...)
		payload[0] = flags
		elems[i].Payload = payload
	}
	return elems
}

// serializeRIFF rebuilds the file: RIFF size is 4 (the WEBP fourcc) plus
// every chunk's header, payload and padding.
func serializeRIFF(elems []core.ContainerElement) []byte {
	total := 4
	for _, e := range elems {
		total += 8 + (len(e.Payload)+1)&^1
	}
	var buf bytes.Buffer
	buf.Grow(total + 8)
	buf.WriteString("RIFF")
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(total))
	buf.Write(size[:])
	buf.WriteString("WEBP")
	for _, e := range elems {
		buf.WriteString(e.Tag)
		binary.LittleEndian.PutUint32(size[:], uint32(len(e.Payload)))
		buf.Write(size[:])
		buf.Write(e.Payload)
		if len(e.Payload)%2 != 0 {
			buf.WriteByte(0)
		}
	}
	return buf.Bytes()
}

// synthesizeVP8X builds a VP8X chunk announcing the given features for a
// width x height canvas. Dimensions are stored minus one in 24 bits.
func synthesizeVP8X(flags byte, width, height int) core.ContainerElement {
	payload := make([]byte, 10)
	payload[0] = flags
	putUint24(payload[4:7], uint32(width-1))
	putUint24(payload[7:10], uint32(height-1))
	return core.ContainerElement{Tag: "VP8X", Payload: payload}
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}
