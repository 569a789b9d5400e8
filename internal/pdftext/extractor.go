// Package pdftext acquires the text of inbox documents: the PDF text layer
// decoded through each font's encoding and ToUnicode map, with an OCR
// fallback over the embedded page images (extracted with pdfcpu) when the
// text layer is too thin or undecodable (scanned slips, subset CID fonts).
package pdftext

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("adminrag.pdftext")

// DefaultMinTextChars is the text-layer length below which OCR is tried.
const DefaultMinTextChars = 30

// ErrUnsupportedFormat is returned for files that are neither PDF nor text.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Source returns the text of a document.
type Source interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Options configures an Extractor.
type Options struct {
	// OCR is used when the text layer has fewer than MinTextChars
	// printable non-space characters. Nil disables the fallback.
	OCR          OCREngine
	MinTextChars int
}

// Extractor implements Source for PDF and plain-text files.
type Extractor struct {
	ocr          OCREngine
	minTextChars int
	conf         *model.Configuration
	logger       *zap.Logger
}

var _ Source = (*Extractor)(nil)

// NewExtractor creates an Extractor.
func NewExtractor(opts Options, logger *zap.Logger) *Extractor {
	if opts.MinTextChars <= 0 {
		opts.MinTextChars = DefaultMinTextChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Extractor{ocr: opts.OCR, minTextChars: opts.MinTextChars, conf: conf, logger: logger}
}

// Extract implements Source. Text files are returned as-is (invalid UTF-8
// replaced); PDFs go through the text layer and then, if needed, OCR. An
// OCR failure is logged and the thin text layer is returned instead.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	ctx, span := tracer.Start(ctx, "Extractor.Extract")
	defer span.End()
	span.SetAttributes(attribute.String("document", filepath.Base(path)))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text":
		data, err := os.ReadFile(path)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		return strings.ToValidUTF8(string(data), "�"), nil
	case ".pdf":
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	text, err := e.textLayer(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("text_layer.chars", utf8.RuneCountInString(text)))

	if e.ocr == nil || visibleChars(text) >= e.minTextChars {
		return text, nil
	}

	ocrText, err := e.ocrImages(ctx, path)
	if err != nil {
		e.logger.Warn("ocr fallback failed, using text layer",
			zap.String("document", filepath.Base(path)), zap.Error(err))
		span.RecordError(err)
		return text, nil
	}
	span.SetAttributes(attribute.Bool("ocr", true))
	if strings.TrimSpace(ocrText) == "" {
		return text, nil
	}
	return ocrText, nil
}

// textLayer returns the decoded text of every page. A page the reader cannot
// decode is logged and skipped so the document can still fall back to OCR.
func (e *Extractor) textLayer(path string) (text string, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("reading text layer of %s: %v", path, rec)
		}
	}()

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		t, err := pageText(p)
		if err != nil {
			e.logger.Warn("skipping undecodable page",
				zap.String("document", filepath.Base(path)), zap.Int("page", i), zap.Error(err))
			continue
		}
		if t = strings.TrimSpace(printable(t)); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n"), nil
}

// pageText decodes one page. Broken font dictionaries make the reader panic,
// which is reported as an error for that page only.
func pageText(p pdf.Page) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("decoding page: %v", rec)
		}
	}()
	fonts := make(map[string]*pdf.Font)
	for _, name := range p.Fonts() {
		font := p.Font(name)
		fonts[name] = &font
	}
	return p.GetPlainText(fonts)
}

// printable drops control characters and replacement runes, which is what
// glyph ids of fonts without a usable encoding decode to.
func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == utf8.RuneError || unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// ocrImages extracts the embedded images and recognizes them in page order.
func (e *Extractor) ocrImages(ctx context.Context, path string) (string, error) {
	dir, err := os.MkdirTemp("", "adminrag-images-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := api.ExtractImagesFile(path, dir, nil, e.conf); err != nil {
		return "", fmt.Errorf("extracting images from %s: %w", path, err)
	}
	images, err := sortedFiles(dir)
	if err != nil {
		return "", err
	}
	if len(images) == 0 {
		return "", nil
	}

	var parts []string
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		t, err := e.ocr.Recognize(ctx, img)
		if err != nil {
			return "", err
		}
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	e.logger.Debug("ocr fallback used",
		zap.String("document", filepath.Base(path)),
		zap.Int("images", len(images)))
	return strings.Join(parts, "\n"), nil
}

// visibleChars counts the printable non-space runes of s.
func visibleChars(s string) int {
	n := 0
	for _, r := range s {
		if r != utf8.RuneError && unicode.IsGraphic(r) && !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

var digitRun = regexp.MustCompile(`\d+`)

// sortedFiles lists the regular files in dir ordered by the numbers in
// their names, so page 10 sorts after page 2.
func sortedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.SliceStable(names, func(i, j int) bool { return naturalLess(names[i], names[j]) })

	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(dir, n)
	}
	return out, nil
}

func naturalLess(a, b string) bool {
	na, nb := digitRun.FindAllString(a, -1), digitRun.FindAllString(b, -1)
	for i := 0; i < len(na) && i < len(nb); i++ {
		x, _ := strconv.Atoi(na[i])
		y, _ := strconv.Atoi(nb[i])
		if x != y {
			return x < y
		}
	}
	if len(na) != len(nb) {
		return len(na) < len(nb)
	}
	return a < b
}
