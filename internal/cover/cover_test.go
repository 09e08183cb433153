package cover

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeSnap struct {
	at time.Duration
}

func (f *fakeSnap) Snapshot(_ context.Context, _ string, at time.Duration, outPNG string) error {
	f.at = at
	img := image.NewRGBA(image.Rect(0, 0, 1080, 1920))
	for y := 0; y < 1920; y++ {
		for x := 0; x < 1080; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	f2, err := os.Create(outPNG)
	if err != nil {
		return err
	}
	defer f2.Close()
	return png.Encode(f2, img)
}

func TestGenerate(t *testing.T) {
	out := filepath.Join(t.TempDir(), "001.jpg")
	snap := &fakeSnap{}
	if err := Generate(context.Background(), snap, "clip.mp4", 30*time.Second, out, Options{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if snap.at != time.Second {
		t.Fatalf("expected frame at 1s, got %v", snap.at)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("cover is not a jpeg: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 540 || b.Dy() != 960 {
		t.Fatalf("unexpected cover size %v", b)
	}
	if _, err := os.Stat(out + ".frame.png"); !os.IsNotExist(err) {
		t.Fatalf("temporary frame left behind: %v", err)
	}
}

func TestGenerate_ShortClipUsesMidpoint(t *testing.T) {
	snap := &fakeSnap{}
	out := filepath.Join(t.TempDir(), "c.jpg")
	if err := Generate(context.Background(), snap, "clip.mp4", 1200*time.Millisecond, out, Options{}); err != nil {
		t.Fatal(err)
	}
	if snap.at != 600*time.Millisecond {
		t.Fatalf("expected midpoint frame, got %v", snap.at)
	}
}
