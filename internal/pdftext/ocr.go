package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrOCRFailed wraps failures of the OCR engine.
var ErrOCRFailed = errors.New("ocr failed")

// OCREngine recognizes the text in an image file.
type OCREngine interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// Tesseract runs the tesseract command line.
type Tesseract struct {
	// Command is the tesseract executable. Default: "tesseract"
	Command string
	// Language is the traineddata name. Default: "por"
	Language string

	logger *zap.Logger
}

var _ OCREngine = (*Tesseract)(nil)

// NewTesseract creates a Tesseract engine.
func NewTesseract(command, language string, logger *zap.Logger) *Tesseract {
	if command == "" {
		command = "tesseract"
	}
	if language == "" {
		language = "por"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tesseract{Command: command, Language: language, logger: logger}
}

// Recognize implements OCREngine. PNG and JPEG images are converted to
// grayscale and contrast-stretched first; other formats are passed to
// tesseract untouched.
func (t *Tesseract) Recognize(ctx context.Context, imagePath string) (string, error) {
	input := imagePath
	if prepared, err := preprocessFile(imagePath); err != nil {
		t.logger.Debug("image preprocessing skipped", zap.String("image", filepath.Base(imagePath)), zap.Error(err))
	} else if prepared != "" {
		defer os.Remove(prepared)
		input = prepared
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Command, input, "stdout", "-l", t.Language)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s: %v: %s", ErrOCRFailed, t.Command, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// preprocessFile writes a grayscale, autocontrasted PNG copy of path and
// returns its name. It returns "" without error for formats it does not
// decode.
func preprocessFile(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
		return "", nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var img image.Image
	if ext == ".png" {
		img, err = png.Decode(f)
	} else {
		img, err = jpeg.Decode(f)
	}
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}

	out, err := os.CreateTemp("", "adminrag-ocr-*.png")
	if err != nil {
		return "", err
	}
	if err := png.Encode(out, Autocontrast(Grayscale(img))); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

// Grayscale converts img to 8-bit luminance.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// Autocontrast linearly stretches the darkest pixel to 0 and the lightest
// to 255. Uniform images are returned unchanged.
func Autocontrast(img *image.Gray) *image.Gray {
	lo, hi := uint8(255), uint8(0)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := img.GrayAt(x, y).Y
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}
	if hi <= lo {
		return img
	}

	var lut [256]uint8
	scale := 255.0 / float64(hi-lo)
	for i := range lut {
		switch {
		case i <= int(lo):
			lut[i] = 0
		case i >= int(hi):
			lut[i] = 255
		default:
			lut[i] = uint8(float64(i-int(lo))*scale + 0.5)
		}
	}

	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetGray(x, y, color.Gray{Y: lut[img.GrayAt(x, y).Y]})
		}
	}
	return out
}
