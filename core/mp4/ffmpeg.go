package mp4

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ankit-chaubey/media-preparer/core"
)

// Encoder shells out to ffmpeg for every mutating MP4 operation.
// Rewriting sample tables in-process is not worth the corruption risk;
// ffmpeg gets the interop cases right.
type Encoder struct {
	// Binary is the ffmpeg executable name or path.
	Binary string
	// TempDir overrides where intermediate files go; empty means the
	// system default.
	TempDir string
}

// NewEncoder returns an Encoder using "ffmpeg" from PATH.
func NewEncoder() *Encoder { return &Encoder{Binary: "ffmpeg"} }

// check verifies the binary is reachable before any work is staged.
func (e *Encoder) check() error {
	if _, err := exec.LookPath(e.Binary); err != nil {
		return core.Errorf(core.KindExternalToolMissing, core.FmtMP4,
			"%s not found in PATH", e.Binary)
	}
	return nil
}

// mapCRF maps quality 0-100 onto the x264 CRF scale: 100 gives CRF 18
// (visually transparent), 0 gives CRF 35.
func mapCRF(quality int) int {
	return 35 - (17*quality)/100
}

// mapPreset maps speed 1-10 onto x264 presets.
func mapPreset(speed int) string {
	switch speed {
	case 1:
		return "veryslow"
	case 2:
		return "slow"
	case 3, 4:
		return "medium"
	case 5, 6:
		return "fast"
	case 7, 8:
		return "faster"
	default:
		return "ultrafast"
	}
}

// Compress transcodes (lossy) or remuxes (lossless) the buffer through
// ffmpeg, applying the strip mode and moving moov up front for
// progressive playback.
func (e *Encoder) Compress(data []byte, cfg core.ProcessingConfig) ([]byte, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	in, cleanupIn, err := e.stageInput(data)
	if err != nil {
		return nil, err
	}
	defer cleanupIn()
	out := e.tempName("out")
	defer os.Remove(out)

	args := []string{"-y", "-i", in}
	if cfg.Strip != core.StripNone {
		args = append(args, "-map_metadata", "-1")
	}
	if cfg.Lossy {
		args = append(args,
			"-c:v", "libx264",
			"-crf", fmt.Sprintf("%d", mapCRF(cfg.Quality)),
			"-preset", mapPreset(cfg.Speed),
			"-c:a", "aac", "-b:a", "128k",
		)
	} else {
		args = append(args, "-c:v", "copy", "-c:a", "copy")
	}
	args = append(args, "-movflags", "+faststart", out)

	if err := e.run(args); err != nil {
		return nil, err
	}
	result, err := os.ReadFile(out)
	if err != nil {
		return nil, core.WrapError(core.KindEncode, core.FmtMP4, err)
	}
	return result, nil
}

// ExtractFrames renders stills to PNG at the given rate. fps == 0 dumps
// every decoded frame.
func (e *Encoder) ExtractFrames(data []byte, fps float64) ([]core.Frame, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	in, cleanupIn, err := e.stageInput(data)
	if err != nil {
		return nil, err
	}
	defer cleanupIn()

	outDir, err := os.MkdirTemp(e.TempDir, "frames-")
	if err != nil {
		return nil, core.WrapError(core.KindEncode, core.FmtMP4, err)
	}
	defer os.RemoveAll(outDir)

	args := []string{"-y", "-i", in}
	if fps > 0 {
		args = append(args, "-vf", fmt.Sprintf("fps=%g", fps))
	}
	args = append(args, filepath.Join(outDir, "frame_%04d.png"))
	if err := e.run(args); err != nil {
		return nil, err
	}

	names, err := filepath.Glob(filepath.Join(outDir, "frame_*.png"))
	if err != nil {
		return nil, core.WrapError(core.KindEncode, core.FmtMP4, err)
	}
	sort.Strings(names)
	frames := make([]core.Frame, 0, len(names))
	for i, name := range names {
		png, err := os.ReadFile(name)
		if err != nil {
			return nil, core.WrapError(core.KindEncode, core.FmtMP4, err)
		}
		frames = append(frames, core.Frame{Index: i, Data: png})
	}
	if len(frames) == 0 {
		return nil, core.Errorf(core.KindExternalToolFailed, core.FmtMP4, "no frames produced")
	}
	return frames, nil
}

func (e *Encoder) stageInput(data []byte) (string, func(), error) {
	name := e.tempName("in")
	if err := os.WriteFile(name, data, 0o600); err != nil {
		return "", nil, core.WrapError(core.KindEncode, core.FmtMP4, err)
	}
	return name, func() { os.Remove(name) }, nil
}

func (e *Encoder) tempName(role string) string {
	dir := e.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, fmt.Sprintf("mediaprep-%s-%s.mp4", role, uuid.NewString()))
}

// run executes ffmpeg and converts a non-zero exit into an error
// carrying the tail of its diagnostics.
func (e *Encoder) run(args []string) error {
	cmd := exec.Command(e.Binary, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &core.ProcessingError{
			Kind:   core.KindExternalToolFailed,
			Format: core.FmtMP4,
			Detail: tail(stderr.String(), 500),
			Err:    err,
		}
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
