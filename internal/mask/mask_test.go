package mask

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"maestro/internal/storage"
)

var (
	bgColor      = color.NRGBA{R: 240, G: 240, B: 240, A: 255}
	subjectColor = color.NRGBA{R: 20, G: 90, B: 160, A: 255}
)

// subjectImage draws a solid block in the middle of a uniform background.
func subjectImage(w, h int, block image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if image.Pt(x, y).In(block) {
				img.SetNRGBA(x, y, subjectColor)
			} else {
				img.SetNRGBA(x, y, bgColor)
			}
		}
	}
	return img
}

func TestClassifySeparatesSubject(t *testing.T) {
	block := image.Rect(8, 8, 24, 20)
	cls := Classify(subjectImage(32, 28, block), DefaultTolerance)

	if cls.Background != bgColor {
		t.Fatalf("unexpected background estimate %+v", cls.Background)
	}
	for y := 0; y < cls.Height; y++ {
		for x := 0; x < cls.Width; x++ {
			inSubject := image.Pt(x, y).In(block)
			if cls.At(x, y) == inSubject {
				t.Fatalf("pixel (%d,%d) misclassified: editable=%v subject=%v", x, y, cls.At(x, y), inSubject)
			}
		}
	}
}

func TestClassifyZeroToleranceMatchesExactly(t *testing.T) {
	img := subjectImage(10, 10, image.Rectangle{})
	img.SetNRGBA(4, 4, color.NRGBA{R: 241, G: 240, B: 240, A: 255})

	cls := Classify(img, 0)
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			want := !(x == 4 && y == 4)
			if cls.At(x, y) != want {
				t.Fatalf("pixel (%d,%d): editable=%v, want %v", x, y, cls.At(x, y), want)
			}
		}
	}
}

func TestClassifyKeepsInteriorHoles(t *testing.T) {
	img := subjectImage(20, 20, image.Rect(4, 4, 16, 16))
	img.SetNRGBA(10, 10, bgColor)

	cls := Classify(img, DefaultTolerance)
	if !cls.At(10, 10) {
		t.Fatalf("background-colored pixel inside the subject should be editable")
	}
}

func TestSynthesizeWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.png")
	block := image.Rect(4, 4, 12, 12)
	if err := imaging.Save(subjectImage(16, 16, block), src); err != nil {
		t.Fatalf("save source: %v", err)
	}
	scratch, _ := storage.NewScratch(filepath.Join(dir, "scratch"))

	res, err := Synthesizer{Tolerance: DefaultTolerance, Scratch: scratch}.Synthesize(src)
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}

	cut := openNRGBA(t, res.TransparentPath)
	mask := openNRGBA(t, res.MaskPath)
	if a := cut.NRGBAAt(0, 0).A; a != 0 {
		t.Fatalf("background should be transparent in variant, alpha=%d", a)
	}
	if got := cut.NRGBAAt(6, 6); got != subjectColor {
		t.Fatalf("subject pixel changed in variant: %+v", got)
	}
	if a := mask.NRGBAAt(0, 0).A; a != 0 {
		t.Fatalf("background should be editable in mask, alpha=%d", a)
	}
	if a := mask.NRGBAAt(6, 6).A; a != 255 {
		t.Fatalf("subject should be preserved in mask, alpha=%d", a)
	}
	if !scratch.Owns(res.MaskPath) || !scratch.Owns(res.TransparentPath) {
		t.Fatalf("artifacts must live in scratch")
	}
}

func TestSynthesizeErrors(t *testing.T) {
	dir := t.TempDir()
	scratch, _ := storage.NewScratch(dir)
	s := Synthesizer{Tolerance: DefaultTolerance, Scratch: scratch}

	if _, err := s.Synthesize(filepath.Join(dir, "missing.png")); !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}

	junk := filepath.Join(dir, "junk.png")
	_ = os.WriteFile(junk, []byte("not an image"), 0o644)
	if _, err := s.Synthesize(junk); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}

	src := filepath.Join(dir, "ok.png")
	_ = imaging.Save(subjectImage(4, 4, image.Rectangle{}), src)
	gone, _ := storage.NewScratch(filepath.Join(dir, "gone"))
	_ = os.RemoveAll(gone.Dir())
	broken := Synthesizer{Tolerance: DefaultTolerance, Scratch: gone}
	if _, err := broken.Synthesize(src); !errors.Is(err, ErrTempFile) {
		t.Fatalf("expected ErrTempFile, got %v", err)
	}
}

func openNRGBA(t *testing.T, path string) *image.NRGBA {
	t.Helper()
	img, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	return imaging.Clone(img)
}

func TestSynthesizerTolerance(t *testing.T) {
	cases := []struct {
		name string
		s    Synthesizer
		want int
	}{
		{"zero value", Synthesizer{}, DefaultTolerance},
		{"negative", Synthesizer{Tolerance: -5}, DefaultTolerance},
		{"explicit", Synthesizer{Tolerance: 12}, 12},
		{"exact", Synthesizer{Tolerance: 40, Exact: true}, 0},
		{"with zero", Synthesizer{}.WithTolerance(0), 0},
		{"with value", Synthesizer{Exact: true}.WithTolerance(64), 64},
	}
	for _, tc := range cases {
		if got := tc.s.tolerance(); got != tc.want {
			t.Errorf("%s: tolerance = %d, want %d", tc.name, got, tc.want)
		}
	}
}
