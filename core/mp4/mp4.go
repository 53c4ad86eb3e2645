// Package mp4 compresses and inspects MP4/M4V video. Inspection walks
// the box tree in-process; every mutation (transcode, remux, metadata
// strip, frame export) is delegated to an external ffmpeg binary.
package mp4

import (
	"fmt"
	"strings"

	"github.com/ankit-chaubey/media-preparer/core"
)

// Processor implements core.Processor and core.FrameExtractor for MP4.
type Processor struct {
	enc *Encoder
}

// New returns an MP4 processor backed by ffmpeg from PATH.
func New() *Processor { return &Processor{enc: NewEncoder()} }

// NewWithEncoder returns a processor using a custom encoder, mainly for
// pointing at a specific binary or temp directory.
func NewWithEncoder(enc *Encoder) *Processor { return &Processor{enc: enc} }

func (p *Processor) Formats() []core.Format { return []core.Format{core.FmtMP4} }

func (p *Processor) Operations() []core.Operation {
	return []core.Operation{core.OpCompress, core.OpInspect, core.OpExtract}
}

// Process validates the box structure, then hands the buffer to ffmpeg.
func (p *Processor) Process(data []byte, cfg core.ProcessingConfig) ([]byte, error) {
	if _, err := parseBoxes(data); err != nil {
		return nil, err
	}
	return p.enc.Compress(data, cfg)
}

// ExtractFrames exports stills through ffmpeg.
func (p *Processor) ExtractFrames(data []byte, fps float64) ([]core.Frame, error) {
	if _, err := parseBoxes(data); err != nil {
		return nil, err
	}
	return p.enc.ExtractFrames(data, fps)
}

// Inspect walks the top-level boxes and the movie header. It also
// reports whether moov precedes mdat, the precondition for progressive
// playback.
func (p *Processor) Inspect(data []byte) (*core.Metadata, error) {
	boxes, err := parseBoxes(data)
	if err != nil {
		return nil, err
	}
	m := &core.Metadata{Format: core.FmtMP4, FileSize: len(data)}

	moovIdx, mdatIdx := -1, -1
	for i, b := range boxes {
		switch b.typ {
		case "ftyp":
			if len(b.payload) >= 4 {
				m.Add("MP4", "Brand", strings.TrimSpace(string(b.payload[0:4])))
			}
		case "moov":
			moovIdx = i
			info := parseMovie(b.payload)
			if info.timescale > 0 {
				secs := float64(info.duration) / float64(info.timescale)
				m.Add("MP4", "Duration", formatDuration(secs))
			}
			if info.width > 0 {
				m.Add("MP4", "Dimensions", fmt.Sprintf("%.0f x %.0f", info.width, info.height))
			}
			for _, c := range info.codecs {
				m.Add("MP4", "Codec", strings.TrimSpace(c))
			}
		case "mdat":
			mdatIdx = i
		}
		m.Add("MP4 Boxes", b.typ, fmt.Sprintf("%d bytes", len(b.payload)))
	}
	if moovIdx >= 0 && mdatIdx >= 0 {
		if moovIdx < mdatIdx {
			m.Add("MP4", "FastStart", "yes (moov before mdat)")
		} else {
			m.Add("MP4", "FastStart", "no (moov after mdat)")
		}
	}
	return m, nil
}

func formatDuration(secs float64) string {
	total := int(secs)
	h := total / 3600
	min := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, min, s)
	}
	return fmt.Sprintf("%d:%02d", min, s)
}
