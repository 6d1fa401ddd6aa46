// Package mask derives an edit mask and a transparent-background variant from
// a plain image by estimating the background color from its corners.
//
// Classification is a single per-pixel pass with no flood fill, so regions
// inside the subject that match the background color are also marked
// editable.
package mask

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/disintegration/imaging"

	"maestro/internal/storage"
)

// DefaultTolerance is the per-channel distance under which a pixel counts as
// background.
const DefaultTolerance = 30

var (
	ErrSourceNotFound = errors.New("mask: source image not found")
	ErrDecode         = errors.New("mask: cannot decode source image")
	ErrTempFile       = errors.New("mask: cannot allocate temp file")
)

var (
	transparent = color.NRGBA{}
	preserve    = color.NRGBA{A: 0xff}
)

// Synthesizer writes its artifacts into Scratch. A zero Tolerance means
// DefaultTolerance; set Exact to match the background color exactly.
type Synthesizer struct {
	Tolerance int
	Exact     bool
	Scratch   *storage.Scratch
}

// WithTolerance returns a copy using tol, where 0 selects exact matching.
func (s Synthesizer) WithTolerance(tol int) Synthesizer {
	s.Tolerance = tol
	s.Exact = tol == 0
	return s
}

func (s Synthesizer) tolerance() int {
	switch {
	case s.Exact:
		return 0
	case s.Tolerance <= 0:
		return DefaultTolerance
	default:
		return s.Tolerance
	}
}

// Result holds the scratch paths of both artifacts. Callers own the files.
type Result struct {
	TransparentPath string
	MaskPath        string
	Background      color.NRGBA
}

// Classification marks each pixel of an image, row-major, as editable
// (background) or preserved (subject).
type Classification struct {
	Width      int
	Height     int
	Background color.NRGBA
	Editable   []bool
}

// At reports whether the pixel at (x, y), relative to the image origin, is
// background.
func (c *Classification) At(x, y int) bool {
	return c.Editable[y*c.Width+x]
}

// Synthesize reads srcPath and produces the transparent variant and the mask.
func (s Synthesizer) Synthesize(srcPath string) (Result, error) {
	if _, err := os.Stat(srcPath); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrSourceNotFound, srcPath)
	}
	img, err := imaging.Open(srcPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	src := imaging.Clone(img)
	cls := Classify(src, s.tolerance())

	cut := image.NewNRGBA(image.Rect(0, 0, cls.Width, cls.Height))
	mask := image.NewNRGBA(image.Rect(0, 0, cls.Width, cls.Height))
	for y := 0; y < cls.Height; y++ {
		for x := 0; x < cls.Width; x++ {
			if cls.At(x, y) {
				cut.SetNRGBA(x, y, transparent)
				mask.SetNRGBA(x, y, transparent)
				continue
			}
			cut.SetNRGBA(x, y, src.NRGBAAt(x, y))
			mask.SetNRGBA(x, y, preserve)
		}
	}

	cutPath, err := s.writePNG("transparent", cut)
	if err != nil {
		return Result{}, err
	}
	maskPath, err := s.writePNG("mask", mask)
	if err != nil {
		s.Scratch.Remove(cutPath)
		return Result{}, err
	}
	return Result{TransparentPath: cutPath, MaskPath: maskPath, Background: cls.Background}, nil
}

// Classify estimates the background from the four corner pixels and marks
// every pixel whose RGB channels are all within tolerance of it.
func Classify(img image.Image, tolerance int) *Classification {
	src := imaging.Clone(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	cls := &Classification{Width: w, Height: h, Editable: make([]bool, w*h)}
	if w == 0 || h == 0 {
		return cls
	}

	corners := [4]color.NRGBA{
		src.NRGBAAt(0, 0),
		src.NRGBAAt(w-1, 0),
		src.NRGBAAt(0, h-1),
		src.NRGBAAt(w-1, h-1),
	}
	var r, g, b int
	for _, c := range corners {
		r += int(c.R)
		g += int(c.G)
		b += int(c.B)
	}
	bg := color.NRGBA{R: uint8(r / 4), G: uint8(g / 4), B: uint8(b / 4), A: 0xff}
	cls.Background = bg

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := src.NRGBAAt(x, y)
			cls.Editable[y*w+x] = within(p.R, bg.R, tolerance) &&
				within(p.G, bg.G, tolerance) &&
				within(p.B, bg.B, tolerance)
		}
	}
	return cls
}

func within(a, b uint8, tol int) bool {
	d := int(a) - int(b)
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func (s Synthesizer) writePNG(prefix string, img image.Image) (string, error) {
	f, err := s.Scratch.Create(prefix, "png")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTempFile, err)
	}
	path := f.Name()
	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		f.Close()
		s.Scratch.Remove(path)
		return "", fmt.Errorf("%w: encode png: %v", ErrTempFile, err)
	}
	if err := f.Close(); err != nil {
		s.Scratch.Remove(path)
		return "", fmt.Errorf("%w: %v", ErrTempFile, err)
	}
	return path, nil
}
