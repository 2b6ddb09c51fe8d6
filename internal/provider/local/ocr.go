package local

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/amara-nwosu/docscan/constants"
	"github.com/amara-nwosu/docscan/internal/provider"
)

// Config holds the local OCR toolchain configuration.
type Config struct {
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"

	TesseractLang string // default "eng"
	TessdataDir   string

	WorkDir string // scratch dir for temp files, default os.TempDir()
}

// Extractor is the offline fallback provider. It shells out to tesseract
// for images and pdftotext for PDFs, then recovers fields from the raw
// text with regex heuristics. Accuracy is well below the remote service;
// confidence scores reflect that.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

type Option func(*Extractor)

// WithRunner substitutes the command runner, for tests.
func WithRunner(r Runner) Option {
	return func(e *Extractor) { e.runner = r }
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	e := &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) Extract(ctx context.Context, req provider.Request) (*provider.Result, error) {
	format := constants.SniffFormat(req.Data)
	if format == "" {
		return nil, provider.NewError(constants.ErrCodeUnsupportedDocument, "unrecognized document format")
	}

	path, cleanup, err := e.writeTemp(req.Data, format)
	if err != nil {
		return nil, provider.NewError(constants.ErrCodeInternalError, fmt.Sprintf("stage document: %v", err))
	}
	defer cleanup()

	var text string
	var ocrConf float32
	switch format {
	case "PDF":
		text, err = e.pdfText(ctx, path)
	default:
		text, ocrConf, err = e.imageText(ctx, path)
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, provider.NewError(constants.ErrCodeTimeout, "local ocr timed out")
		}
		return nil, provider.NewError(constants.ErrCodeInternalError, err.Error())
	}

	text = normalizeText(text)
	if text == "" {
		return nil, provider.NewError(constants.ErrCodePoorQuality, "no text could be recovered from the document")
	}

	conf := blendConfidence(ocrConf, heuristicConfidence(text))
	p := parseText(text, req.Kind)
	if len(p.fields) == 0 {
		return nil, provider.NewError(constants.ErrCodePoorQuality, "no fields could be recovered from the document")
	}

	res := &provider.Result{
		Fields:      p.fields,
		Confidences: make(map[string]float32, len(p.fields)),
		LineItems:   p.lineItems,
	}
	for name := range p.fields {
		res.Confidences[name] = conf * p.fieldScores[name]
	}
	for i := range res.LineItems {
		res.LineItems[i].Confidence *= conf
	}

	e.logger.Debug("ocr.local.extracted",
		"format", format,
		"fields", len(res.Fields),
		"line_items", len(res.LineItems),
		"confidence", conf,
	)
	return res, nil
}

// blendConfidence weights the engine's own word confidence over the text
// heuristic when the engine reported one.
func blendConfidence(ocrConf, heurConf float32) float32 {
	if ocrConf <= 0 {
		return heurConf
	}
	conf := 0.7*ocrConf + 0.3*heurConf
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

func (e *Extractor) writeTemp(data []byte, format string) (string, func(), error) {
	ext := map[string]string{"PDF": ".pdf", "PNG": ".png", "JPEG": ".jpg"}[format]
	path := filepath.Join(e.cfg.WorkDir, "docscan-"+uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", nil, err
	}
	return path, func() { _ = os.Remove(path) }, nil
}

func (e *Extractor) pdfText(ctx context.Context, path string) (string, error) {
	// pdftotext -layout <file> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w (%s)", err, truncate(string(errb), 256))
	}
	return string(out), nil
}

func (e *Extractor) imageText(ctx context.Context, path string) (string, float32, error) {
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", 0, fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 256))
	}
	return parseTSV(string(out))
}

// parseTSV rebuilds line text from tesseract's TSV output and computes the
// mean word confidence in 0..1. TSV rows carry block/par/line numbers in
// columns 2..4 and the recognized word in the last column.
func parseTSV(tsv string) (string, float32, error) {
	var b strings.Builder
	var sum, n float64
	prevLine := ""
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		word := cols[len(cols)-1]
		confStr := cols[len(cols)-2]
		if word == "" || strings.TrimSpace(word) == "" {
			continue
		}
		lineKey := cols[1] + ":" + cols[2] + ":" + cols[3] + ":" + cols[4]
		if prevLine != "" && lineKey != prevLine {
			b.WriteByte('\n')
		} else if prevLine != "" {
			b.WriteByte(' ')
		}
		b.WriteString(word)
		prevLine = lineKey

		if confStr != "" && confStr != "-1" {
			if v, err := strconv.ParseFloat(confStr, 64); err == nil {
				sum += v
				n++
			}
		}
	}
	var conf float32
	if n > 0 {
		conf = float32(sum / n / 100.0)
	}
	return b.String(), conf, nil
}

var _ provider.Extractor = (*Extractor)(nil)
