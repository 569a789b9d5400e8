package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOCR struct {
	mock.Mock
}

func (m *MockOCR) Recognize(ctx context.Context, imagePath string) (string, error) {
	args := m.Called(ctx, imagePath)
	return args.String(0), args.Error(1)
}

const helvetica = "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"

// writePDF writes a single-page PDF whose content stream is content, with
// /F1 bound to Helvetica.
func writePDF(t *testing.T, dir, name, content string) string {
	t.Helper()
	return writePDFWithFont(t, dir, name, helvetica, content)
}

// writePDFWithFont is writePDF with an arbitrary /F1 font dictionary.
func writePDFWithFont(t *testing.T, dir, name, font, content string) string {
	t.Helper()

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		font,
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestExtractor_TextLayer(t *testing.T) {
	dir := t.TempDir()
	path := writePDF(t, dir, "boleto.pdf",
		"BT /F1 12 Tf 72 720 Td (Pagador: Maria Souza) Tj 0 -16 Td (CPF: 529.982.247-25) Tj ET")

	ocr := new(MockOCR)
	e := NewExtractor(Options{OCR: ocr}, nil)

	text, err := e.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, text, "Pagador: Maria Souza")
	assert.Contains(t, text, "CPF: 529.982.247-25")
	ocr.AssertNotCalled(t, "Recognize", mock.Anything, mock.Anything)
}

func TestExtractor_UndecodableCIDTextIsThin(t *testing.T) {
	dir := t.TempDir()
	// Glyph ids of a subset font with no ToUnicode map: two bytes per glyph,
	// high byte zero.
	font := "<< /Type /Font /Subtype /Type0 /BaseFont /ABCDEF+Arial /Encoding /Identity-H /DescendantFonts [] >>"
	path := writePDFWithFont(t, dir, "cid.pdf", font,
		"BT /F1 10 Tf 72 700 Td <00330024002A0024002700320035> Tj ET")

	ocr := new(MockOCR)
	e := NewExtractor(Options{OCR: ocr}, nil)

	text, err := e.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.NotContains(t, text, "\x00")
	assert.NotContains(t, text, "\uFFFD")
	assert.Less(t, visibleChars(text), DefaultMinTextChars)
	// No embedded images, so there is nothing to recognize.
	ocr.AssertNotCalled(t, "Recognize", mock.Anything, mock.Anything)
}

func TestVisibleChars(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"plain", "PAGADOR", 7},
		{"spaces ignored", " PAGO \n em\t05 ", 8},
		{"nul interleaved glyph ids", "\x003\x00$\x00*\x00$\x00'\x002\x005", 7},
		{"replacement runes", "\uFFFD\uFFFDab", 2},
		{"accented", "BENEFICIÁRIO", 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, visibleChars(tt.in))
		})
	}
}

func TestPrintable(t *testing.T) {
	assert.Equal(t, "3$*$'25", printable("\x003\x00$\x00*\x00$\x00'\x002\x005"))
	assert.Equal(t, "CPF\n529\tok", printable("CPF\n529\tok\r\uFFFD"))
}

func TestExtractor_ThinTextWithoutImagesKeepsTextLayer(t *testing.T) {
	dir := t.TempDir()
	path := writePDF(t, dir, "scan.pdf", "BT /F1 12 Tf 72 720 Td (p. 1) Tj ET")

	ocr := new(MockOCR)
	e := NewExtractor(Options{OCR: ocr, MinTextChars: 30}, nil)

	text, err := e.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "p. 1", strings.TrimSpace(text))
	ocr.AssertNotCalled(t, "Recognize", mock.Anything, mock.Anything)
}

func TestExtractor_PlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slip.txt")
	require.NoError(t, os.WriteFile(path, []byte("CPF 529.982.247-25\xff"), 0o600))

	text, err := NewExtractor(Options{}, nil).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "CPF 529.982.247-25�", text)
}

func TestExtractor_Errors(t *testing.T) {
	dir := t.TempDir()
	e := NewExtractor(Options{}, nil)

	_, err := e.Extract(context.Background(), filepath.Join(dir, "photo.heic"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = e.Extract(context.Background(), filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.pdf")
	require.NoError(t, os.WriteFile(bad, []byte("not a pdf"), 0o600))
	_, err = e.Extract(context.Background(), bad)
	assert.Error(t, err)
}

func TestAutocontrast(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 1))
	img.SetGray(0, 0, color.Gray{Y: 100})
	img.SetGray(1, 0, color.Gray{Y: 150})
	img.SetGray(2, 0, color.Gray{Y: 200})

	out := Autocontrast(img)
	assert.Equal(t, uint8(0), out.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(128), out.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(255), out.GrayAt(2, 0).Y)

	flat := image.NewGray(image.Rect(0, 0, 2, 2))
	assert.Same(t, flat, Autocontrast(flat))
}

func TestGrayscale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	assert.Equal(t, uint8(255), Grayscale(img).GrayAt(0, 0).Y)
}

func TestTesseract_Recognize(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in for tesseract")
	}
	dir := t.TempDir()

	// The stand-in echoes its arguments so the call shape can be checked.
	script := filepath.Join(dir, "tesseract")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"args: $2 $3 $4\"\n"), 0o700))

	imgPath := filepath.Join(dir, "page_1.png")
	f, err := os.Create(imgPath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 4, 4))))
	require.NoError(t, f.Close())

	out, err := NewTesseract(script, "", nil).Recognize(context.Background(), imgPath)
	require.NoError(t, err)
	assert.Equal(t, "args: stdout -l por\n", out)
}

func TestTesseract_Failure(t *testing.T) {
	tess := NewTesseract(filepath.Join(t.TempDir(), "no-such-binary"), "eng", nil)
	_, err := tess.Recognize(context.Background(), "page.tiff")
	assert.ErrorIs(t, err, ErrOCRFailed)
}
