package mp4

import (
	"encoding/binary"

	"github.com/ankit-chaubey/media-preparer/core"
)

// box is one ISOBMFF box: fourcc type plus payload bytes. Walking is
// read-only; the engine never rewrites box trees by hand, offset tables
// inside stbl make naive mutation a corruption hazard.
type box struct {
	typ     string
	payload []byte
}

// parseBoxes splits a buffer into consecutive boxes. size==1 means a
// 64-bit largesize follows the type; size==0 means the box runs to the
// end of the enclosing scope.
func parseBoxes(data []byte) ([]box, error) {
	var out []box
	pos := 0
	for pos+8 <= len(data) {
		size := int64(binary.BigEndian.Uint32(data[pos : pos+4]))
		typ := string(data[pos+4 : pos+8])
		hdr := int64(8)
		switch size {
		case 0:
			size = int64(len(data) - pos)
		case 1:
			if pos+16 > len(data) {
				return nil, core.Errorf(core.KindDecode, core.FmtMP4, "truncated largesize box")
			}
			size = int64(binary.BigEndian.Uint64(data[pos+8 : pos+16]))
			hdr = 16
		}
		if size < hdr || int64(pos)+size > int64(len(data)) {
			return nil, core.Errorf(core.KindDecode, core.FmtMP4, "box %q overruns file", typ)
		}
		out = append(out, box{typ: typ, payload: data[int64(pos)+hdr : int64(pos)+size]})
		pos += int(size)
	}
	if len(out) == 0 {
		return nil, core.Errorf(core.KindDecode, core.FmtMP4, "no boxes found")
	}
	return out, nil
}

// findBox returns the first box of the given type.
func findBox(boxes []box, typ string) (box, bool) {
	for _, b := range boxes {
		if b.typ == typ {
			return b, true
		}
	}
	return box{}, false
}

// findPath descends through nested containers by type.
func findPath(data []byte, path ...string) (box, bool) {
	cur := data
	var found box
	for _, typ := range path {
		boxes, err := parseBoxes(cur)
		if err != nil {
			return box{}, false
		}
		b, ok := findBox(boxes, typ)
		if !ok {
			return box{}, false
		}
		found = b
		cur = b.payload
	}
	return found, true
}

// movieInfo is what the walker pulls out of moov for inspection.
type movieInfo struct {
	timescale uint32
	duration  uint64
	width     float64
	height    float64
	codecs    []string
}

func parseMovie(moov []byte) movieInfo {
	var info movieInfo
	if mvhd, ok := findPath(moov, "mvhd"); ok && len(mvhd.payload) >= 4 {
		p := mvhd.payload
		if p[0] == 1 && len(p) >= 28 {
			info.timescale = binary.BigEndian.Uint32(p[20:24])
			info.duration = binary.BigEndian.Uint64(p[24:32])
		} else if len(p) >= 20 {
			info.timescale = binary.BigEndian.Uint32(p[12:16])
			info.duration = uint64(binary.BigEndian.Uint32(p[16:20]))
		}
	}
	boxes, err := parseBoxes(moov)
	if err != nil {
		return info
	}
	for _, b := range boxes {
		if b.typ != "trak" {
			continue
		}
		if tkhd, ok := findPath(b.payload, "tkhd"); ok {
			w, h := trackDimensions(tkhd.payload)
			if w > info.width {
				info.width, info.height = w, h
			}
		}
		if stsd, ok := findPath(b.payload, "mdia", "minf", "stbl", "stsd"); ok {
			info.codecs = append(info.codecs, sampleFormats(stsd.payload)...)
		}
	}
	return info
}

// trackDimensions reads the 16.16 fixed-point width/height at the end of
// a tkhd payload.
func trackDimensions(p []byte) (float64, float64) {
	var off int
	switch {
	case len(p) >= 1 && p[0] == 1 && len(p) >= 96:
		off = 88
	case len(p) >= 84:
		off = 76
	default:
		return 0, 0
	}
	w := float64(binary.BigEndian.Uint32(p[off:off+4])) / 65536
	h := float64(binary.BigEndian.Uint32(p[off+4:off+8])) / 65536
	return w, h
}

// sampleFormats lists the codec fourccs in an stsd payload.
func sampleFormats(p []byte) []string {
	if len(p) < 8 {
		return nil
	}
	count := int(binary.BigEndian.Uint32(p[4:8]))
	var out []string
	pos := 8
	for i := 0; i < count && pos+8 <= len(p); i++ {
		size := int(binary.BigEndian.Uint32(p[pos : pos+4]))
		if size < 8 || pos+size > len(p) {
			break
		}
		out = append(out, string(p[pos+4:pos+8]))
		pos += size
	}
	return out
}
