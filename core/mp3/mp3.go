// Package mp3 strips and inspects ID3 metadata on MP3 files. The audio
// frames are never re-encoded: compression here means removing or
// rebuilding the tag blocks around the MPEG stream.
package mp3

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"

	"github.com/ankit-chaubey/media-preparer/core"
)

// Processor implements core.Processor for MP3.
type Processor struct{}

// New returns the MP3 processor.
func New() *Processor { return &Processor{} }

func (p *Processor) Formats() []core.Format { return []core.Format{core.FmtMP3} }

func (p *Processor) Operations() []core.Operation {
	return []core.Operation{core.OpCompress, core.OpInspect}
}

// safeFrames are the ID3v2 text frames kept under StripSafe: descriptive
// track identity, nothing that points at a person, device or location.
// Unlisted frames are dropped; an unknown frame is treated as unsafe.
var safeFrames = map[string]bool{
	"TIT2": true, // title
	"TPE1": true, // artist
	"TALB": true, // album
	"TRCK": true, // track number
	"TCON": true, // genre
	"TYER": true, // year (v2.3)
	"TDRC": true, // recording time (v2.4)
}

// safeFrameOrder fixes the rebuild order so equal inputs produce equal
// outputs.
var safeFrameOrder = []string{"TIT2", "TPE1", "TALB", "TRCK", "TCON", "TYER", "TDRC"}

// Process applies the strip mode. StripAll slices both tags off and
// returns the bare MPEG stream; StripSafe rebuilds a fresh v2.4 tag
// holding only the safe frames. Quality and speed have no effect here.
func (p *Processor) Process(data []byte, cfg core.ProcessingConfig) ([]byte, error) {
	if cfg.Strip == core.StripNone {
		return append([]byte{}, data...), nil
	}

	v2size, err := id3v2Size(data)
	if err != nil {
		return nil, err
	}
	audioEnd := len(data)
	if hasID3v1(data) {
		audioEnd -= 128
	}
	if v2size > audioEnd {
		return nil, core.Errorf(core.KindDecode, core.FmtMP3, "ID3v2 tag overruns file")
	}
	audio := data[v2size:audioEnd]

	if cfg.Strip == core.StripAll {
		return append([]byte{}, audio...), nil
	}

	// StripSafe: rebuild a minimal v2.4 tag in front of the audio.
	newTag := id3v2.NewEmptyTag()
	if v2size > 0 {
		parsed, err := id3v2.ParseReader(bytes.NewReader(data), id3v2.Options{Parse: true})
		if err != nil {
			return nil, core.WrapError(core.KindDecode, core.FmtMP3, err)
		}
		for _, id := range safeFrameOrder {
			for _, f := range parsed.GetFrames(id) {
				newTag.AddFrame(id, f)
			}
		}
	}
	if hasID3v1(data) {
		carryID3v1(newTag, data[len(data)-128:])
	}

	var buf bytes.Buffer
	if newTag.Count() > 0 {
		if _, err := newTag.WriteTo(&buf); err != nil {
			return nil, core.WrapError(core.KindEncode, core.FmtMP3, err)
		}
	}
	buf.Write(audio)
	return buf.Bytes(), nil
}

// carryID3v1 copies the legacy trailer's fields into the new tag unless
// the v2 side already provided them. Everything ID3v1 can hold is safe.
func carryID3v1(t *id3v2.Tag, trailer []byte) {
	set := func(id, value string) {
		value = strings.TrimRight(strings.TrimRight(value, "\x00"), " ")
		if value == "" || t.GetTextFrame(id).Text != "" {
			return
		}
		t.AddTextFrame(id, id3v2.EncodingUTF8, value)
	}
	set("TIT2", string(trailer[3:33]))
	set("TPE1", string(trailer[33:63]))
	set("TALB", string(trailer[63:93]))
	set("TDRC", string(trailer[93:97]))
}

// id3v2Size returns the total byte length of a leading ID3v2 tag, or 0
// when none is present. The size field is synchsafe: 7 bits per byte.
func id3v2Size(data []byte) (int, error) {
	if len(data) < 10 || !bytes.HasPrefix(data, []byte("ID3")) {
		return 0, nil
	}
	for _, b := range data[6:10] {
		if b&0x80 != 0 {
			return 0, core.Errorf(core.KindDecode, core.FmtMP3, "invalid synchsafe tag size")
		}
	}
	size := int(data[6])<<21 | int(data[7])<<14 | int(data[8])<<7 | int(data[9])
	total := 10 + size
	if data[5]&0x10 != 0 {
		total += 10 // footer
	}
	if total > len(data) {
		return 0, core.Errorf(core.KindDecode, core.FmtMP3, "ID3v2 tag overruns file")
	}
	return total, nil
}

// hasID3v1 reports whether the file ends in a 128-byte ID3v1 trailer.
func hasID3v1(data []byte) bool {
	return len(data) >= 128 && bytes.Equal(data[len(data)-128:len(data)-125], []byte("TAG"))
}

// Inspect reads the common fields through dhowden/tag and lists every
// ID3v2 frame with its retention class.
func (p *Processor) Inspect(data []byte) (*core.Metadata, error) {
	m := &core.Metadata{Format: core.FmtMP3, FileSize: len(data)}

	v2size, err := id3v2Size(data)
	if err != nil {
		return nil, err
	}
	audioSize := len(data) - v2size
	if hasID3v1(data) {
		audioSize -= 128
		m.Add("MP3", "ID3v1", "present (128 bytes)")
	}
	m.Add("MP3", "AudioSize", fmt.Sprintf("%d bytes", audioSize))

	if t, err := tag.ReadFrom(bytes.NewReader(data)); err == nil {
		cat := string(t.Format())
		if cat == "" {
			cat = "Audio Tags"
		}
		m.Add(cat, "Title", t.Title())
		m.Add(cat, "Artist", t.Artist())
		m.Add(cat, "Album", t.Album())
		m.Add(cat, "AlbumArtist", t.AlbumArtist())
		m.Add(cat, "Genre", t.Genre())
		m.Add(cat, "Comment", t.Comment())
		if t.Year() != 0 {
			m.Add(cat, "Year", fmt.Sprintf("%d", t.Year()))
		}
		if track, total := t.Track(); track != 0 {
			val := fmt.Sprintf("%d", track)
			if total != 0 {
				val = fmt.Sprintf("%d/%d", track, total)
			}
			m.Add(cat, "TrackNumber", val)
		}
	}

	if v2size > 0 {
		parsed, err := id3v2.ParseReader(bytes.NewReader(data), id3v2.Options{Parse: true})
		if err != nil {
			return nil, core.WrapError(core.KindDecode, core.FmtMP3, err)
		}
		for id, frames := range parsed.AllFrames() {
			class := "unsafe"
			if safeFrames[id] {
				class = "safe"
			}
			m.Add("ID3v2 Frames", id, fmt.Sprintf("%d frame(s) (%s)", len(frames), class))
		}
	}
	return m, nil
}
