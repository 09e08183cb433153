// Package cover produces a JPEG cover image for a finished clip.
package cover

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/disintegration/imaging"
)

// Snapshotter grabs one frame of a video as PNG. The media engine implements
// it.
type Snapshotter interface {
	Snapshot(ctx context.Context, inMP4 string, at time.Duration, outPNG string) error
}

type Options struct {
	Width   int
	Height  int
	At      time.Duration
	Quality int
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = 540, 960
	}
	if o.At <= 0 {
		o.At = time.Second
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = 80
	}
	return o
}

// Generate writes a cover for clipPath to outJPEG. The frame is taken at
// Options.At, or halfway through clips shorter than twice that.
func Generate(ctx context.Context, snap Snapshotter, clipPath string, clipDur time.Duration, outJPEG string, opts Options) error {
	opts = opts.withDefaults()
	at := opts.At
	if clipDur > 0 && at*2 > clipDur {
		at = clipDur / 2
	}

	frame := outJPEG + ".frame.png"
	defer os.Remove(frame)
	if err := snap.Snapshot(ctx, clipPath, at, frame); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	img, err := imaging.Open(frame)
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	thumb := imaging.Fill(img, opts.Width, opts.Height, imaging.Center, imaging.Lanczos)
	if err := imaging.Save(thumb, outJPEG, imaging.JPEGQuality(opts.Quality)); err != nil {
		return fmt.Errorf("encode cover: %w", err)
	}
	return nil
}
