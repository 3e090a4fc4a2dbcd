// Package ingest reads the text that extraction commands operate on: plain
// files, PDFs, directories of either, standard input or inline text.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Stdin is the input name that reads standard input.
const Stdin = "-"

// ErrNoText is returned when an input yields no text.
var ErrNoText = errors.New("no extractable text")

// Document is one unit of input text.
type Document struct {
	ID    string
	Title string
	Path  string
	Text  string
	// Pages is the page count of a PDF input, else 0.
	Pages int
}

// Request describes the inputs to read.
type Request struct {
	// Inputs are file paths, directories, "-" for stdin, or literal text when
	// the argument is not an existing path.
	Inputs []string
	Stdin  io.Reader
	// Title overrides the derived title of a single input.
	Title  string
	Logger *slog.Logger
}

// Read resolves every input into documents. Directories expand to the
// supported files they contain, PDFs ordered by numeric suffix.
func Read(ctx context.Context, req Request) ([]Document, error) {
	log := req.Logger
	if log == nil {
		log = slog.Default()
	}
	if len(req.Inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}

	var (
		docs  []Document
		files []string
	)
	for _, in := range req.Inputs {
		switch {
		case in == Stdin:
			r := req.Stdin
			if r == nil {
				r = os.Stdin
			}
			data, err := io.ReadAll(r)
			if err != nil {
				return nil, fmt.Errorf("failed to read stdin: %w", err)
			}
			docs = append(docs, Document{ID: "stdin", Title: "stdin", Text: string(data)})
		case isPath(in):
			expanded, err := expand(in)
			if err != nil {
				return nil, err
			}
			files = append(files, expanded...)
		default:
			docs = append(docs, Document{ID: uuid.NewString(), Text: in})
		}
	}

	read, err := readFiles(ctx, files, log)
	if err != nil {
		return nil, err
	}
	docs = append(docs, read...)

	if req.Title != "" && len(docs) == 1 {
		docs[0].Title = req.Title
	}
	log.Info("read inputs", "documents", len(docs))
	return docs, nil
}

func isPath(s string) bool {
	if strings.ContainsAny(s, "\n") {
		return false
	}
	_, err := os.Stat(s)
	return err == nil
}

// supportedExt lists the file types read from directories.
var supportedExt = map[string]bool{".txt": true, ".md": true, ".text": true, ".pdf": true}

func expand(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("input not found: %s", path)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}
	var pdfs, texts []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !supportedExt[ext] {
			continue
		}
		full := filepath.Join(path, e.Name())
		if ext == ".pdf" {
			pdfs = append(pdfs, full)
		} else {
			texts = append(texts, full)
		}
	}
	sort.Strings(texts)
	return append(texts, sortPDFsByNumber(pdfs)...), nil
}

// readFiles reads files concurrently, keeping input order.
func readFiles(ctx context.Context, paths []string, log *slog.Logger) ([]Document, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	type result struct {
		idx int
		doc Document
		err error
	}

	results := make(chan result, len(paths))
	sem := make(chan struct{}, runtime.NumCPU())

	for i, p := range paths {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		go func(idx int, path string) {
			defer func() { <-sem }()
			doc, err := readFile(path)
			results <- result{idx: idx, doc: doc, err: err}
		}(i, p)
	}

	docs := make([]Document, len(paths))
	var firstErr error
	for range paths {
		r := <-results
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
		docs[r.idx] = r.doc
	}
	if firstErr != nil {
		return nil, firstErr
	}
	for _, d := range docs {
		log.Debug("read input", "path", d.Path, "chars", len(d.Text), "pages", d.Pages)
	}
	return docs, nil
}

func readFile(path string) (Document, error) {
	doc := Document{
		ID:    filepath.Base(path),
		Title: deriveTitle(path),
		Path:  path,
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, pages, err := ReadPDF(path)
		if err != nil {
			return doc, fmt.Errorf("failed to read %s: %w", path, err)
		}
		doc.Text = text
		doc.Pages = pages
		return doc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc.Text = string(data)
	return doc, nil
}

// ReadPDF returns the plain text of a PDF and its page count.
func ReadPDF(path string) (string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	pages, err := api.PageCount(f, nil)
	f.Close()
	if err != nil {
		return "", 0, fmt.Errorf("failed to get page count: %w", err)
	}

	pf, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	defer pf.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", 0, fmt.Errorf("extract pdf text: %w", err)
	}
	var buf strings.Builder
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", 0, fmt.Errorf("read extracted text: %w", err)
	}
	text := strings.TrimSpace(buf.String())
	if text == "" {
		return "", pages, ErrNoText
	}
	return text, pages, nil
}

var (
	pdfNumberSuffix = regexp.MustCompile(`-(\d+)\.pdf$`)
	numberSuffix    = regexp.MustCompile(`-\d+$`)
)

// sortPDFsByNumber sorts PDF paths by their numeric suffix.
// e.g., ["paper-2.pdf", "paper-1.pdf", "paper-10.pdf"] -> ["paper-1.pdf", "paper-2.pdf", "paper-10.pdf"]
func sortPDFsByNumber(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)

	sort.SliceStable(sorted, func(i, j int) bool {
		mi := pdfNumberSuffix.FindStringSubmatch(sorted[i])
		mj := pdfNumberSuffix.FindStringSubmatch(sorted[j])

		if len(mi) > 1 && len(mj) > 1 {
			ni, _ := strconv.Atoi(mi[1])
			nj, _ := strconv.Atoi(mj[1])
			return ni < nj
		}

		// Files without numbers come first
		if len(mi) > 1 {
			return false
		}
		if len(mj) > 1 {
			return true
		}
		return sorted[i] < sorted[j]
	})

	return sorted
}

// deriveTitle extracts a title from a filename.
// e.g., "marfan-review.pdf" -> "marfan-review"
// e.g., "marfan-review-2.txt" -> "marfan-review"
func deriveTitle(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return numberSuffix.ReplaceAllString(name, "")
}
