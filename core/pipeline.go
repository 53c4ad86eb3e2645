package core

import (
	"log/slog"
)

// Pipeline dispatches assets to format processors. It holds no mutable
// state after construction, so a single Pipeline may serve any number of
// concurrent calls for independent assets. Retries and caching are caller
// concerns; the pipeline does neither.
type Pipeline struct {
	reg *Registry
	log *slog.Logger
}

// NewPipeline builds a pipeline over the given processors.
func NewPipeline(processors ...Processor) *Pipeline {
	reg := NewRegistry()
	for _, p := range processors {
		reg.Register(p)
	}
	return &Pipeline{reg: reg, log: slog.Default()}
}

// Registry exposes the read-only capability table.
func (p *Pipeline) Registry() *Registry { return p.reg }

// Process runs the compress operation on one asset and returns the new
// buffer plus size statistics. Errors from the processor propagate
// unchanged.
func (p *Pipeline) Process(asset Asset, cfg ProcessingConfig) (*ProcessingResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, WrapError(KindUnsupportedOperation, asset.Format, err)
	}
	proc, err := p.resolve(asset.Format, OpCompress)
	if err != nil {
		return nil, err
	}

	p.log.Debug("processing asset",
		"format", asset.Format, "size", len(asset.Data),
		"lossy", cfg.Lossy, "strip", cfg.Strip)

	out, err := proc.Process(asset.Data, cfg)
	if err != nil {
		return nil, err
	}
	return &ProcessingResult{
		Output:       out,
		OriginalSize: len(asset.Data),
		NewSize:      len(out),
	}, nil
}

// Inspect detects the buffer's format and returns its descriptive
// metadata without transforming anything.
func (p *Pipeline) Inspect(data []byte) (*Metadata, error) {
	asset, err := NewAsset(data)
	if err != nil {
		return nil, err
	}
	proc, err := p.resolve(asset.Format, OpInspect)
	if err != nil {
		return nil, err
	}
	return proc.Inspect(data)
}

// Convert re-encodes an image buffer into the target format. Only image
// formats participate; audio and video formats reject the operation.
func (p *Pipeline) Convert(data []byte, target Format, cfg ProcessingConfig) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, WrapError(KindUnsupportedOperation, target, err)
	}
	asset, err := NewAsset(data)
	if err != nil {
		return nil, err
	}
	if _, err := p.resolve(asset.Format, OpConvert); err != nil {
		return nil, err
	}
	switch target {
	case FmtPNG, FmtJPEG, FmtWebP:
	default:
		return nil, Errorf(KindUnsupportedOperation, target, "cannot convert to %s", target.Name())
	}
	p.log.Debug("converting image", "from", asset.Format, "to", target, "lossy", cfg.Lossy)
	return convertImage(data, target, cfg)
}

// ExtractFrames exports still frames from a video buffer. fps == 0 means
// every decoded frame; fps > 0 means one frame per 1/fps seconds.
func (p *Pipeline) ExtractFrames(data []byte, fps float64) ([]Frame, error) {
	asset, err := NewAsset(data)
	if err != nil {
		return nil, err
	}
	proc, err := p.resolve(asset.Format, OpExtract)
	if err != nil {
		return nil, err
	}
	ex, ok := proc.(FrameExtractor)
	if !ok {
		return nil, Errorf(KindUnsupportedOperation, asset.Format, "processor cannot extract frames")
	}
	return ex.ExtractFrames(data, fps)
}

func (p *Pipeline) resolve(f Format, op Operation) (Processor, error) {
	proc, ok := p.reg.Lookup(f)
	if !ok {
		return nil, Errorf(KindUnsupportedFormat, f, "no processor registered for %s", f.Name())
	}
	if !p.reg.Supports(f, op) {
		return nil, Errorf(KindUnsupportedOperation, f, "%s does not support %s", f.Name(), op)
	}
	return proc, nil
}
