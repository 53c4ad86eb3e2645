// Command mediaprep reduces media file sizes and strips metadata for
// PNG, WebP, JPEG, MP3 and MP4 inputs.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ankit-chaubey/media-preparer/core"
	"github.com/ankit-chaubey/media-preparer/core/jpg"
	"github.com/ankit-chaubey/media-preparer/core/mp3"
	"github.com/ankit-chaubey/media-preparer/core/mp4"
	"github.com/ankit-chaubey/media-preparer/core/png"
	"github.com/ankit-chaubey/media-preparer/core/webp"
)

var (
	flagVerbose   bool
	flagQuality   int
	flagSpeed     int
	flagLossless  bool
	flagStrip     string
	flagOutput    string
	flagRecursive bool
	flagBackup    bool
	flagDryRun    bool
	flagParallel  int
	flagJSON      bool
	flagTo        string
	flagFPS       float64
)

func newPipeline() *core.Pipeline {
	return core.NewPipeline(png.New(), webp.New(), jpg.New(), mp3.New(), mp4.New())
}

func buildConfig() (core.ProcessingConfig, error) {
	strip, err := core.ParseStripMode(flagStrip)
	if err != nil {
		return core.ProcessingConfig{}, err
	}
	cfg := core.ProcessingConfig{
		Quality: flagQuality,
		Speed:   flagSpeed,
		Lossy:   !flagLossless,
		Strip:   strip,
	}
	return cfg, cfg.Validate()
}

func main() {
	root := &cobra.Command{
		Use:           "mediaprep",
		Short:         "Size reduction and metadata stripping for common media formats",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if flagVerbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newCompressCmd(), newConvertCmd(), newInspectCmd(), newExtractCmd())

	if err := root.Execute(); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
}

func addProcessingFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&flagQuality, "quality", "q", 80, "quality 0-100")
	cmd.Flags().IntVarP(&flagSpeed, "speed", "s", 3, "speed 1-10 (1 = thorough, 10 = fast)")
	cmd.Flags().BoolVar(&flagLossless, "lossless", false, "lossless processing only")
	cmd.Flags().StringVar(&flagStrip, "strip", "all", "metadata retention: none, safe or all")
}

func newCompressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compress <file|dir>...",
		Short: "Reduce file size and strip metadata in one pass",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCompress,
	}
	addProcessingFlags(cmd)
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output directory (default: in place)")
	cmd.Flags().BoolVarP(&flagRecursive, "recursive", "r", false, "descend into directories")
	cmd.Flags().BoolVar(&flagBackup, "backup", false, "keep a .bak copy when writing in place")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "report what would change without writing")
	cmd.Flags().IntVarP(&flagParallel, "parallel", "p", runtime.NumCPU(), "max files processed at once")
	return cmd
}

func runCompress(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	files, err := collectFiles(args, flagRecursive)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no supported files found")
	}

	pipe := newPipeline()
	pr := newPrinter(false)
	var failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(max(1, flagParallel))
	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := compressOne(pipe, pr, file, cfg); err != nil {
				pr.fileError(file, err)
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait() // workers report per-file failures via the printer

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d file(s) failed", n, len(files))
	}
	return nil
}

func compressOne(pipe *core.Pipeline, pr *printer, file string, cfg core.ProcessingConfig) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	asset, err := core.NewAsset(data)
	if err != nil {
		return err
	}
	res, err := pipe.Process(asset, cfg)
	if err != nil {
		return err
	}

	// A larger output means the source was already better compressed
	// than anything this configuration can produce; keep the original.
	if res.NewSize >= res.OriginalSize {
		pr.fileSkipped(file, res)
		return nil
	}
	if flagDryRun {
		pr.fileResult(file, res, true)
		return nil
	}

	dst := resolveOutput(file, flagOutput)
	if dst == file && flagBackup {
		if err := createBackup(file); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(dst, res.Output, 0o644); err != nil {
		return err
	}
	pr.fileResult(file, res, false)
	return nil
}

func newConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert --to <format> <file>...",
		Short: "Re-encode images as png, jpg or webp",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runConvert,
	}
	addProcessingFlags(cmd)
	cmd.Flags().StringVar(&flagTo, "to", "", "target format: png, jpg or webp")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output directory (default: alongside input)")
	cmd.MarkFlagRequired("to")
	return cmd
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	target, ok := core.ParseFormat(flagTo)
	if !ok {
		return fmt.Errorf("unknown target format %q", flagTo)
	}

	pipe := newPipeline()
	pr := newPrinter(false)
	for _, file := range args {
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		out, err := pipe.Convert(data, target, cfg)
		if err != nil {
			return err
		}
		dst := replaceExt(resolveOutput(file, flagOutput), target)
		if err := os.WriteFile(dst, out, 0o644); err != nil {
			return err
		}
		pr.success(fmt.Sprintf("%s -> %s (%s)", file, dst, sizeString(len(out))))
	}
	return nil
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <file>...",
		Short: "Show format details and embedded metadata",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runInspect,
	}
	cmd.Flags().BoolVar(&flagJSON, "json", false, "machine-readable output")
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	pipe := newPipeline()
	pr := newPrinter(flagJSON)
	for _, file := range args {
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		m, err := pipe.Inspect(data)
		if err != nil {
			return err
		}
		pr.printMetadata(file, m)
	}
	return nil
}

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <video.mp4>",
		Short: "Export video frames as PNG stills",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtract,
	}
	cmd.Flags().Float64Var(&flagFPS, "fps", 1, "frames per second to sample (0 = every frame)")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", ".", "directory for the extracted frames")
	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	frames, err := newPipeline().ExtractFrames(data, flagFPS)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(flagOutput, 0o755); err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	pr := newPrinter(false)
	for _, f := range frames {
		name := filepath.Join(flagOutput, fmt.Sprintf("%s_%04d.png", base, f.Index))
		if err := os.WriteFile(name, f.Data, 0o644); err != nil {
			return err
		}
	}
	pr.success(fmt.Sprintf("extracted %d frame(s) to %s", len(frames), flagOutput))
	return nil
}
