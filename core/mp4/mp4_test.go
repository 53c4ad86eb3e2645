package mp4

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankit-chaubey/media-preparer/core"
)

func rawBox(typ string, payload []byte) []byte {
	var buf bytes.Buffer
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(8+len(payload)))
	buf.Write(size[:])
	buf.WriteString(typ)
	buf.Write(payload)
	return buf.Bytes()
}

// mvhdV0 builds a version-0 mvhd payload with the given timescale and
// duration.
func mvhdV0(timescale, duration uint32) []byte {
	p := make([]byte, 100)
	binary.BigEndian.PutUint32(p[12:16], timescale)
	binary.BigEndian.PutUint32(p[16:20], duration)
	return p
}

// tkhdV0 builds a version-0 tkhd payload carrying 16.16 dimensions.
func tkhdV0(width, height uint32) []byte {
	p := make([]byte, 84)
	binary.BigEndian.PutUint32(p[76:80], width<<16)
	binary.BigEndian.PutUint32(p[80:84], height<<16)
	return p
}

func testMovie(fastStart bool) []byte {
	ftyp := rawBox("ftyp", []byte("isom\x00\x00\x02\x00isomiso2avc1"))
	trak := rawBox("trak", bytes.Join([][]byte{
		rawBox("tkhd", tkhdV0(1280, 720)),
		rawBox("mdia", rawBox("minf", rawBox("stbl", rawBox("stsd", stsdPayload("avc1"))))),
	}, nil))
	moov := rawBox("moov", append(rawBox("mvhd", mvhdV0(1000, 90000)), trak...))
	mdat := rawBox("mdat", bytes.Repeat([]byte{0xCC}, 64))

	if fastStart {
		return bytes.Join([][]byte{ftyp, moov, mdat}, nil)
	}
	return bytes.Join([][]byte{ftyp, mdat, moov}, nil)
}

func stsdPayload(codec string) []byte {
	var buf bytes.Buffer
	buf.Write(make([]byte, 4)) // version + flags
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], 1)
	buf.Write(count[:])
	entry := rawBox(codec, make([]byte, 16))
	buf.Write(entry)
	return buf.Bytes()
}

func fieldValue(m *core.Metadata, key string) string {
	for _, f := range m.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

func TestParseBoxes(t *testing.T) {
	boxes, err := parseBoxes(testMovie(true))
	require.NoError(t, err)
	require.Len(t, boxes, 3)
	assert.Equal(t, "ftyp", boxes[0].typ)
	assert.Equal(t, "moov", boxes[1].typ)
	assert.Equal(t, "mdat", boxes[2].typ)
}

func TestParseBoxesRejectsOverrun(t *testing.T) {
	data := testMovie(true)
	_, err := parseBoxes(data[:len(data)-10])
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindDecode))
}

func TestParseBoxesLargesize(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(1))
	buf.WriteString("mdat")
	binary.Write(&buf, binary.BigEndian, uint64(16+len(payload)))
	buf.Write(payload)

	boxes, err := parseBoxes(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, payload, boxes[0].payload)
}

func TestInspectMovie(t *testing.T) {
	m, err := New().Inspect(testMovie(true))
	require.NoError(t, err)
	assert.Equal(t, core.FmtMP4, m.Format)
	assert.Equal(t, "isom", fieldValue(m, "Brand"))
	assert.Equal(t, "1:30", fieldValue(m, "Duration"))
	assert.Equal(t, "1280 x 720", fieldValue(m, "Dimensions"))
	assert.Equal(t, "avc1", fieldValue(m, "Codec"))
	assert.Contains(t, fieldValue(m, "FastStart"), "yes")
}

func TestInspectDetectsMissingFastStart(t *testing.T) {
	m, err := New().Inspect(testMovie(false))
	require.NoError(t, err)
	assert.Contains(t, fieldValue(m, "FastStart"), "no")
}

func TestMapCRF(t *testing.T) {
	assert.Equal(t, 18, mapCRF(100))
	assert.Equal(t, 35, mapCRF(0))
	assert.Equal(t, 22, mapCRF(80))

	// Higher quality never yields a higher CRF.
	prev := mapCRF(0)
	for q := 1; q <= 100; q++ {
		cur := mapCRF(q)
		assert.LessOrEqual(t, cur, prev, "quality %d", q)
		prev = cur
	}
}

func TestMapPreset(t *testing.T) {
	assert.Equal(t, "veryslow", mapPreset(1))
	assert.Equal(t, "slow", mapPreset(2))
	assert.Equal(t, "medium", mapPreset(3))
	assert.Equal(t, "medium", mapPreset(4))
	assert.Equal(t, "fast", mapPreset(5))
	assert.Equal(t, "faster", mapPreset(7))
	assert.Equal(t, "ultrafast", mapPreset(10))
}

func TestMissingBinaryIsReported(t *testing.T) {
	p := NewWithEncoder(&Encoder{Binary: "mediaprep-no-such-ffmpeg"})
	_, err := p.Process(testMovie(true), core.DefaultConfig())
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindExternalToolMissing))

	_, err = p.ExtractFrames(testMovie(true), 1)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindExternalToolMissing))
}

func TestProcessRejectsGarbage(t *testing.T) {
	_, err := New().Process([]byte("definitely not ISOBMFF data"), core.DefaultConfig())
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindDecode))
}
