// Package core defines the shared types, the format registry, and the
// processing pipeline for Media Preparer.
package core

import (
	"fmt"
	"strings"
)

// StripMode controls how much embedded metadata survives processing.
// The same mode means the same retention level for every format, even
// though the concrete chunks/frames/boxes removed differ per format.
type StripMode string

const (
	// StripNone keeps every metadata element unchanged.
	StripNone StripMode = "none"
	// StripSafe keeps user-facing descriptive metadata (title, gamma,
	// color profile essentials) and drops identifying/EXIF-like data.
	StripSafe StripMode = "safe"
	// StripAll keeps no ancillary metadata at all.
	StripAll StripMode = "all"
)

// ParseStripMode parses a strip mode name (case-insensitive).
func ParseStripMode(s string) (StripMode, error) {
	switch strings.ToLower(s) {
	case "none":
		return StripNone, nil
	case "safe":
		return StripSafe, nil
	case "all":
		return StripAll, nil
	default:
		return "", fmt.Errorf("unknown strip mode: %q (expected none, safe or all)", s)
	}
}

// ProcessingConfig holds the knobs for one processing operation. It is a
// plain value: construct it once, pass it by value, never mutate it while
// a call is in flight.
type ProcessingConfig struct {
	// Quality 0-100 (lower = smaller output, worse quality).
	Quality int
	// Speed 1-10 (1 = slowest/best, 10 = fastest/worst).
	Speed int
	// Lossy enables the quantization/re-encoding path. When false only
	// lossless optimization and metadata stripping run.
	Lossy bool
	// Strip selects the metadata retention policy.
	Strip StripMode
}

// DefaultConfig returns the standard configuration: quality 80, speed 3,
// lossy processing, strip everything.
func DefaultConfig() ProcessingConfig {
	return ProcessingConfig{
		Quality: 80,
		Speed:   3,
		Lossy:   true,
		Strip:   StripAll,
	}
}

// Validate checks that the configuration values are inside their ranges.
func (c ProcessingConfig) Validate() error {
	if c.Quality < 0 || c.Quality > 100 {
		return fmt.Errorf("quality %d out of range 0-100", c.Quality)
	}
	if c.Speed < 1 || c.Speed > 10 {
		return fmt.Errorf("speed %d out of range 1-10", c.Speed)
	}
	switch c.Strip {
	case StripNone, StripSafe, StripAll:
	default:
		return fmt.Errorf("invalid strip mode %q", c.Strip)
	}
	return nil
}

// Asset is an immutable input buffer plus its detected format. Transforms
// never mutate the buffer in place; they always produce a new one.
type Asset struct {
	Data   []byte
	Format Format
}

// NewAsset detects the format from the buffer contents and wraps it.
// Detection is content-only: file names lie, magic bytes do not.
func NewAsset(data []byte) (Asset, error) {
	f := DetectFormat(data)
	if f == FmtUnknown {
		return Asset{}, &ProcessingError{Kind: KindUnsupportedFormat, Detail: "unrecognized file contents"}
	}
	return Asset{Data: data, Format: f}, nil
}

// NewAssetWithFormat wraps a buffer with a caller-supplied format hint,
// bypassing detection.
func NewAssetWithFormat(data []byte, f Format) Asset {
	return Asset{Data: data, Format: f}
}

// ProcessingResult is what one processor call produces.
type ProcessingResult struct {
	Output       []byte
	OriginalSize int
	NewSize      int
}

// Reduction returns the fraction of the original size that was removed.
func (r *ProcessingResult) Reduction() float64 {
	if r.OriginalSize == 0 {
		return 0
	}
	return 1 - float64(r.NewSize)/float64(r.OriginalSize)
}

// Operation enumerates what a processor can be asked to do.
type Operation string

const (
	OpCompress Operation = "compress"
	OpConvert  Operation = "convert"
	OpInspect  Operation = "inspect"
	OpExtract  Operation = "extract"
)

// Processor is the interface every format implementation satisfies.
// Implementations must be safe for concurrent use: a single Processor
// value is shared by every call going through the pipeline.
type Processor interface {
	// Formats lists the formats this processor handles.
	Formats() []Format
	// Operations lists the capabilities of this processor.
	Operations() []Operation
	// Process applies the lossy or lossless transform according to the
	// configuration and returns a fresh output buffer.
	Process(data []byte, cfg ProcessingConfig) ([]byte, error)
	// Inspect reads descriptive metadata without transforming anything.
	Inspect(data []byte) (*Metadata, error)
}

// FrameExtractor is an optional interface for processors that can export
// individual video frames as still images.
type FrameExtractor interface {
	ExtractFrames(data []byte, fps float64) ([]Frame, error)
}

// Frame is a single extracted still, numbered in playback order.
type Frame struct {
	Index int
	Data  []byte // PNG-encoded image
}

// ContainerElement is one tagged element of a container format: a RIFF
// chunk, an ID3 frame, or an MP4 box. Critical elements are required for
// decode and are never dropped, whatever the strip mode says.
type ContainerElement struct {
	Tag      string
	Payload  []byte
	Critical bool
}

// MetaField is a single metadata key-value pair discovered by Inspect.
type MetaField struct {
	Key      string // Canonical field name (e.g. "Codec", "Artist", "Title")
	Value    string // String representation of the value
	Category string // Category label (e.g. "EXIF", "ID3v2", "PNG Chunks")
}

// Metadata holds everything Inspect discovered about one buffer.
type Metadata struct {
	Format   Format
	FileSize int
	Fields   []MetaField
}

// Add appends a field, skipping empty values.
func (m *Metadata) Add(category, key, value string) {
	if value == "" {
		return
	}
	m.Fields = append(m.Fields, MetaField{Key: key, Value: value, Category: category})
}

// Summary returns a short string of key fields for quick display.
func (m *Metadata) Summary() string {
	for _, f := range m.Fields {
		if f.Key == "Title" || f.Key == "Codec" || f.Key == "Artist" {
			return f.Key + ": " + f.Value
		}
	}
	return m.Format.Name()
}
