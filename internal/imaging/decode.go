// Package imaging wraps image decoding and the pixel-level primitives the
// analysis waves consume: histograms, hashes, edge and sharpness measures.
// Waves treat these as black-box signal sources; nothing here knows about
// the blackboard or the orchestrator.
package imaging

import (
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"os"
	"path/filepath"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Decoded is a decoded image plus its animation frames, if any.
// The orchestrator owns a Decoded for the duration of a run; waves receive
// it read-only and must not mutate the pixel data.
type Decoded struct {
	Path       string
	Format     string
	Width      int
	Height     int
	IsAnimated bool

	// First (or only) frame, fully composed.
	Frame *image.RGBA

	// All composed frames for animated inputs; len 1 for stills.
	Frames []*image.RGBA

	// Per-frame delay in 10ms units (GIF semantics); nil for stills.
	Delays []int
}

// FrameCount returns the number of decoded frames.
func (d *Decoded) FrameCount() int {
	return len(d.Frames)
}

// Decode reads and decodes the image at path. Animated GIFs are decoded
// frame-by-frame with each frame composed onto the previous canvas, so
// partial-frame GIFs yield full frames.
func Decode(path string) (*Decoded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".gif") {
		g, err := gif.DecodeAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to decode gif: %w", err)
		}
		return composeGIF(path, g)
	}

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	frame := toRGBA(img)
	b := frame.Bounds()
	return &Decoded{
		Path:   path,
		Format: format,
		Width:  b.Dx(),
		Height: b.Dy(),
		Frame:  frame,
		Frames: []*image.RGBA{frame},
	}, nil
}

// composeGIF flattens GIF frames onto a rolling canvas. Disposal modes other
// than "restore to background" are treated as "do not dispose", which matches
// how the overwhelming majority of animated memes are authored.
func composeGIF(path string, g *gif.GIF) (*Decoded, error) {
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("gif has no frames")
	}

	w, h := g.Config.Width, g.Config.Height
	if w == 0 || h == 0 {
		b := g.Image[0].Bounds()
		w, h = b.Dx(), b.Dy()
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	frames := make([]*image.RGBA, 0, len(g.Image))
	for i, src := range g.Image {
		if i > 0 && g.Disposal != nil && g.Disposal[i-1] == gif.DisposalBackground {
			prev := g.Image[i-1].Bounds()
			draw.Draw(canvas, prev, image.Transparent, image.Point{}, draw.Src)
		}
		draw.Draw(canvas, src.Bounds(), src, src.Bounds().Min, draw.Over)
		frame := image.NewRGBA(canvas.Bounds())
		copy(frame.Pix, canvas.Pix)
		frames = append(frames, frame)
	}

	return &Decoded{
		Path:       path,
		Format:     "gif",
		Width:      w,
		Height:     h,
		IsAnimated: len(frames) > 1,
		Frame:      frames[0],
		Frames:     frames,
		Delays:     g.Delay,
	}, nil
}

// toRGBA converts any decoded image to RGBA without touching already-RGBA inputs.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
