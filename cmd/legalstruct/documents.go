package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/adverant/nexus/legalstruct-worker/internal/processor"
)

var textExtensions = map[string]bool{".txt": true, ".text": true, ".md": true}

// defaultBatchExtensions are the inputs batch picks up from a directory
var defaultBatchExtensions = []string{".txt", ".md", ".png", ".jpg", ".jpeg", ".tif", ".tiff"}

// document is one input file, loaded as text or as raw bytes for OCR
type document struct {
	ID       string
	Filename string
	Text     string
	Buffer   []byte
	MimeType string
}

// loadDocument reads path ("-" for stdin). Text files are read as text;
// everything else is passed as bytes and typed by its magic bytes later.
func loadDocument(path string) (*document, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc := &document{
		ID:       documentID(path),
		Filename: filepath.Base(path),
	}
	ext := strings.ToLower(filepath.Ext(path))
	if path == "-" || textExtensions[ext] {
		doc.Text = string(data)
		doc.MimeType = "text/plain"
	} else {
		doc.Buffer = data
	}
	return doc, nil
}

// documentID is the file name without its extension
func documentID(path string) string {
	if path == "-" {
		return "stdin"
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (d *document) processRequest() *processor.ProcessRequest {
	return &processor.ProcessRequest{
		JobID:      uuid.NewString(),
		DocumentID: d.ID,
		Filename:   d.Filename,
		MimeType:   d.MimeType,
		Text:       d.Text,
		FileBuffer: d.Buffer,
	}
}

// collectInputs lists the files in dir with one of the given extensions, sorted
func collectInputs(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	wanted := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		wanted[ext] = true
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if wanted[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// outputPath maps an input file to its JSON result in outDir
func outputPath(outDir, input string) string {
	return filepath.Join(outDir, documentID(input)+".json")
}
