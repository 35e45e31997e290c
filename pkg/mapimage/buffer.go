package mapimage

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
)

// canonical map dimensions
const (
	Width  = 128
	Height = 128
)

// MapID identifies a map instance. Assigned by the host item system.
type MapID uint32

// Crop describes which tile of a source image a buffer was produced from.
// Size is the number of tiles per side, X/Y the tile column and row.
type Crop struct {
	Source string `json:"source,omitempty"`
	Size   int    `json:"crop_size"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// FullImage is the crop of an image rendered onto a single map.
var FullImage = Crop{Size: 1}

// Meta is the metadata a buffer was produced with.
type Meta struct {
	Crop   Crop `json:"crop"`
	Scale  int8 `json:"scale"`
	Locked bool `json:"locked"`
}

// Buffer is an immutable decoded pixel grid. Pixels are non-premultiplied
// RGBA, row-major from the top-left corner.
type Buffer struct {
	width, height int
	pix           []byte
	meta          Meta
}

// New copies img into a buffer of the canonical size. Images of a different
// size are drawn from their top-left corner; scale them beforehand.
func New(img image.Image, meta Meta) *Buffer {
	dst := image.NewNRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	return &Buffer{
		width:  Width,
		height: Height,
		pix:    dst.Pix,
		meta:   meta,
	}
}

// FromPixels wraps a copy of raw NRGBA pixel data. len(pix) must be
// width*height*4.
func FromPixels(width, height int, pix []byte, meta Meta) (*Buffer, error) {
	if width <= 0 || height <= 0 || len(pix) != width*height*4 {
		return nil, fmt.Errorf("mapimage: %d bytes of pixel data for %dx%d", len(pix), width, height)
	}
	cp := make([]byte, len(pix))
	copy(cp, pix)
	return &Buffer{
		width:  width,
		height: height,
		pix:    cp,
		meta:   meta,
	}, nil
}

var blank = sync.OnceValue(func() *Buffer {
	return &Buffer{
		width:  Width,
		height: Height,
		pix:    make([]byte, Width*Height*4),
		meta:   Meta{Crop: FullImage, Locked: true},
	}
})

// Blank returns the shared fully transparent placeholder buffer.
func Blank() *Buffer { return blank() }

func (b *Buffer) Width() int  { return b.width }
func (b *Buffer) Height() int { return b.height }
func (b *Buffer) Meta() Meta  { return b.meta }

// Pixels returns a copy of the raw pixel data.
func (b *Buffer) Pixels() []byte {
	cp := make([]byte, len(b.pix))
	copy(cp, b.pix)
	return cp
}

// Len returns the size of the pixel data in bytes.
func (b *Buffer) Len() int { return len(b.pix) }

// At returns the color of the pixel at (x, y).
func (b *Buffer) At(x, y int) color.NRGBA {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return color.NRGBA{}
	}
	i := (y*b.width + x) * 4
	return color.NRGBA{R: b.pix[i], G: b.pix[i+1], B: b.pix[i+2], A: b.pix[i+3]}
}

// Image returns a copy of the buffer as an image.
func (b *Buffer) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.width, b.height))
	copy(img.Pix, b.pix)
	return img
}

// Equal reports whether both buffers hold identical pixels and dimensions.
func (b *Buffer) Equal(o *Buffer) bool {
	if b == o {
		return true
	}
	if b == nil || o == nil || b.width != o.width || b.height != o.height {
		return false
	}
	return string(b.pix) == string(o.pix)
}
