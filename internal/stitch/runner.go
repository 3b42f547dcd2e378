package stitch

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kiesman99/zoomstitch/internal/stitcher"
)

// Options configures a command line run
type Options struct {
	// Output is the PNG path; empty writes to stdout
	Output string
	// ImageURL skips page scraping and stitches this deep-zoom image directly
	ImageURL string
	// DryRun prints the tile URLs instead of downloading them
	DryRun   bool
	Stitcher stitcher.Options
}

// Runner drives one stitch from the command line
type Runner struct {
	stitcher *stitcher.Stitcher
	options  *Options
	stdout   io.Writer
	stderr   io.Writer
}

// NewRunner creates a runner writing to the process stdout and stderr
func NewRunner(opts *Options) *Runner {
	return NewRunnerWith(opts, stitcher.New(opts.Stitcher), os.Stdout, os.Stderr)
}

// NewRunnerWith creates a runner with explicit collaborators
func NewRunnerWith(opts *Options, st *stitcher.Stitcher, stdout, stderr io.Writer) *Runner {
	return &Runner{
		stitcher: st,
		options:  opts,
		stdout:   stdout,
		stderr:   stderr,
	}
}

// Run stitches the image behind pageURL and writes it out
func (r *Runner) Run(ctx context.Context, pageURL string) error {
	// Check if output is to terminal
	if r.options.Output == "" && !r.options.DryRun && isTerminal(r.stdout) {
		return fmt.Errorf("didn't specify output file and standard output is a terminal")
	}

	imageURL := r.options.ImageURL
	if imageURL == "" {
		if pageURL == "" {
			return fmt.Errorf("no page URL provided")
		}
		var err error
		imageURL, err = r.stitcher.ResolveImage(ctx, pageURL)
		if err != nil {
			return err
		}
	}
	fmt.Fprintf(r.stderr, "==Image: %s\n", imageURL)

	if r.options.DryRun {
		return r.listTiles(ctx, imageURL)
	}

	result, err := r.stitcher.StitchImage(ctx, imageURL)
	if err != nil {
		return err
	}
	r.printPlan(result.Plan)
	fmt.Fprintf(r.stderr, "==Raster Size: %dx%d\n", result.Width, result.Height)

	return r.writePNG(result.ImageData)
}

func (r *Runner) listTiles(ctx context.Context, imageURL string) error {
	plan, err := r.stitcher.Plan(ctx, imageURL)
	if err != nil {
		return err
	}
	r.printPlan(plan)

	for _, d := range plan.Descriptors {
		fmt.Fprintln(r.stdout, d.URL())
	}
	fmt.Fprintf(r.stderr, "==Tiles: %d\n", len(plan.Descriptors))
	return nil
}

func (r *Runner) printPlan(plan *stitcher.Plan) {
	fmt.Fprintf(r.stderr, "==Image Size: %s\n", plan.Extent)
	fmt.Fprintf(r.stderr, "==Grid: %d columns x %d rows of %d px (edge %dx%d)\n",
		plan.Grid.Columns, plan.Grid.Rows, plan.Grid.TileSize, plan.Grid.EdgeWidth, plan.Grid.EdgeHeight)
	fmt.Fprintf(r.stderr, "==Scale: %.4g\n", plan.Ratio)
}

// writePNG writes PNG output
func (r *Runner) writePNG(data []byte) error {
	if r.options.Output == "" {
		fmt.Fprintf(r.stderr, "Output PNG: stdout\n")
		_, err := r.stdout.Write(data)
		return err
	}

	fmt.Fprintf(r.stderr, "Output PNG: %s\n", r.options.Output)
	if err := os.WriteFile(r.options.Output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write PNG: %w", err)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice != 0
}
