package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"io"

	"github.com/disintegration/imaging"
)

// ErrClosed is returned by a Decoder used after Close.
var ErrClosed = errors.New("preview: decoder closed")

// Decoder exposes the frames of an animation one at a time.
type Decoder interface {
	// Frames returns the number of frames.
	Frames() int
	// Seek selects frame i. It returns io.EOF when i is past the last frame.
	Seek(i int) error
	// Frame returns the selected frame.
	Frame() image.Image
	Close() error
}

// DecodeFunc turns raw file bytes into a Decoder whose frames are size×size.
type DecodeFunc func(data []byte, size int) (Decoder, error)

type gifDecoder struct {
	frames []image.Image
	cur    int
}

// DecodeGIF decodes every frame up front. Frames are composited onto the
// logical screen, honouring the disposal method of the previous frame, and
// resized to size×size.
func DecodeGIF(data []byte, size int) (Decoder, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode gif: %w", err)
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("decode gif: no frames")
	}
	w, h := g.Config.Width, g.Config.Height
	if w == 0 || h == 0 {
		b := g.Image[0].Bounds()
		w, h = b.Max.X, b.Max.Y
	}

	canvas := imaging.New(w, h, color.Transparent)
	frames := make([]image.Image, 0, len(g.Image))
	for i, fr := range g.Image {
		var disposal byte
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		saved := canvas
		canvas = imaging.Overlay(canvas, fr, fr.Bounds().Min, 1.0)
		frames = append(frames, imaging.Resize(canvas, size, size, imaging.CatmullRom))

		switch disposal {
		case gif.DisposalBackground:
			b := fr.Bounds()
			canvas = imaging.Paste(canvas, imaging.New(b.Dx(), b.Dy(), color.Transparent), b.Min)
		case gif.DisposalPrevious:
			canvas = saved
		}
	}
	return &gifDecoder{frames: frames}, nil
}

func (d *gifDecoder) Frames() int { return len(d.frames) }

func (d *gifDecoder) Seek(i int) error {
	if d.frames == nil {
		return ErrClosed
	}
	if i < 0 || i >= len(d.frames) {
		return io.EOF
	}
	d.cur = i
	return nil
}

func (d *gifDecoder) Frame() image.Image {
	if d.frames == nil {
		return nil
	}
	return d.frames[d.cur]
}

func (d *gifDecoder) Close() error {
	d.frames = nil
	return nil
}
