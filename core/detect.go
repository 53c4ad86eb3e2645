package core

import (
	"bytes"
	"strings"
)

// Format enumerates every format the engine understands.
type Format string

const (
	FmtPNG  Format = "png"
	FmtWebP Format = "webp"
	FmtJPEG Format = "jpeg"
	FmtMP3  Format = "mp3"
	FmtMP4  Format = "mp4"

	FmtUnknown Format = "unknown"
)

// Name returns the human-readable format name.
func (f Format) Name() string {
	switch f {
	case FmtPNG:
		return "PNG"
	case FmtWebP:
		return "WebP"
	case FmtJPEG:
		return "JPEG"
	case FmtMP3:
		return "MP3"
	case FmtMP4:
		return "MP4"
	default:
		return "Unknown"
	}
}

// ParseFormat parses a format name as given on a command line.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(s) {
	case "png":
		return FmtPNG, true
	case "webp":
		return FmtWebP, true
	case "jpg", "jpeg":
		return FmtJPEG, true
	case "mp3":
		return FmtMP3, true
	case "mp4", "m4v":
		return FmtMP4, true
	default:
		return FmtUnknown, false
	}
}

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// DetectFormat identifies the format from the buffer's magic bytes. It
// deliberately ignores file extensions: a mislabeled file must never be
// processed as its claimed format.
func DetectFormat(b []byte) Format {
	if len(b) < 4 {
		return FmtUnknown
	}
	switch {
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	case bytes.HasPrefix(b, pngSignature):
		return FmtPNG
	// WebP: RIFF????WEBP
	case len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WEBP")):
		return FmtWebP
	// JPEG: FF D8 FF
	case b[0] == 0xFF && b[1] == 0xD8 && b[2] == 0xFF:
		return FmtJPEG
	// MP3: ID3 tag or raw MPEG sync FF Ex/Fx
	case bytes.HasPrefix(b, []byte("ID3")):
		return FmtMP3
	case b[0] == 0xFF && b[1]&0xE0 == 0xE0:
		return FmtMP3
	// MP4/M4V: ftyp box at offset 4
	case len(b) >= 8 && bytes.Equal(b[4:8], []byte("ftyp")):
		return FmtMP4
	}
	return FmtUnknown
}
