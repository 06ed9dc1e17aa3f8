package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/legalstruct-worker/internal/app"
	"github.com/adverant/nexus/legalstruct-worker/internal/config"
	"github.com/adverant/nexus/legalstruct-worker/internal/logging"
	"github.com/adverant/nexus/legalstruct-worker/internal/ocr/tesseract"
	"github.com/adverant/nexus/legalstruct-worker/internal/processor"
)

// overrides are the per-run engine settings shared by process and enqueue
type overrides struct {
	models        []string
	maxRetries    int
	diffThreshold float64
	reference     string
}

func (o *overrides) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&o.models, "models", nil, "model escalation order (overrides LLM_MODELS)")
	cmd.Flags().IntVar(&o.maxRetries, "max-retries", 0, "retries after the first attempt")
	cmd.Flags().Float64Var(&o.diffThreshold, "diff-threshold", 0, "similarity below which a result is rejected")
	cmd.Flags().StringVar(&o.reference, "reference", "", "file with the reference text to compare against")
}

// apply copies the flags the user set onto req
func (o *overrides) apply(cmd *cobra.Command, req *processor.ProcessRequest) error {
	req.Models = o.models
	if cmd.Flags().Changed("max-retries") {
		if o.maxRetries < 0 {
			return fmt.Errorf("--max-retries must be >= 0, got %d", o.maxRetries)
		}
		n := o.maxRetries
		req.MaxRetries = &n
	}
	if cmd.Flags().Changed("diff-threshold") {
		if o.diffThreshold <= 0 || o.diffThreshold > 1 {
			return fmt.Errorf("--diff-threshold must be in (0, 1], got %v", o.diffThreshold)
		}
		req.DiffThreshold = o.diffThreshold
	}
	if o.reference != "" {
		data, err := os.ReadFile(o.reference)
		if err != nil {
			return fmt.Errorf("failed to read reference text: %w", err)
		}
		req.ReferenceText = string(data)
	}
	return nil
}

var (
	processFlags overrides
	processOut   string

	processCmd = &cobra.Command{
		Use:   "process <file|->",
		Short: "Structure a single document and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runProcess,
	}
)

var (
	batchOut        string
	batchExtensions []string
	batchWorkers    int

	batchCmd = &cobra.Command{
		Use:   "batch <dir>",
		Short: "Structure every document in a directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
)

func init() {
	processFlags.register(processCmd)
	processCmd.Flags().StringVarP(&processOut, "output", "o", "", "write the result to this file instead of stdout")

	batchCmd.Flags().StringVarP(&batchOut, "output", "o", "", "output directory (default <dir>/structured)")
	batchCmd.Flags().StringSliceVar(&batchExtensions, "ext", defaultBatchExtensions, "file extensions to include")
	batchCmd.Flags().IntVarP(&batchWorkers, "concurrency", "c", 0, "documents in flight (default WORKER_CONCURRENCY)")
}

// newLocalProcessor builds a processor without storage, for one-off runs
func newLocalProcessor() (*processor.DocumentProcessor, *config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	eng, err := app.NewEngine(cfg, nil)
	if err != nil {
		return nil, nil, err
	}

	ocrEngine, err := tesseract.New(&tesseract.Config{Languages: cfg.TesseractLanguages})
	if err != nil {
		return nil, nil, err
	}

	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		Engine:      eng,
		OCR:         ocrEngine,
		MaxFileSize: cfg.MaxFileSize,
	})
	if err != nil {
		return nil, nil, err
	}
	return proc, cfg, nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	doc, err := loadDocument(args[0])
	if err != nil {
		return err
	}
	req := doc.processRequest()
	if err := processFlags.apply(cmd, req); err != nil {
		return err
	}

	proc, _, err := newLocalProcessor()
	if err != nil {
		return err
	}

	result, err := proc.ProcessDocument(cmd.Context(), req)
	if err != nil {
		return err
	}

	if processOut == "" {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	return writeJSONFile(processOut, result)
}

// batchSummary counts batch outcomes by status
type batchSummary struct {
	mu       sync.Mutex
	statuses map[string]int
	failed   atomic.Int64
}

func (s *batchSummary) add(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses == nil {
		s.statuses = make(map[string]int)
	}
	s.statuses[status]++
}

func runBatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	inputs, err := collectInputs(dir, batchExtensions)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no documents with extensions %v in %s", batchExtensions, dir)
	}

	outDir := batchOut
	if outDir == "" {
		outDir = filepath.Join(dir, "structured")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	proc, cfg, err := newLocalProcessor()
	if err != nil {
		return err
	}
	workers := batchWorkers
	if workers <= 0 {
		workers = cfg.WorkerConcurrency
	}

	logger := logging.NewLogger("[Batch]")
	summary := &batchSummary{}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(workers)
	for _, input := range inputs {
		g.Go(func() error {
			doc, err := loadDocument(input)
			if err != nil {
				summary.failed.Add(1)
				logger.Error("Failed to load document", "file", input, "error", err)
				return nil
			}

			result, err := proc.ProcessDocument(ctx, doc.processRequest())
			if err != nil {
				// An interrupted batch stops; a bad document does not.
				if ctx.Err() != nil {
					return ctx.Err()
				}
				summary.failed.Add(1)
				logger.Error("Failed to structure document", "file", input, "error", err)
				return nil
			}

			summary.add(result.Status)
			return writeJSONFile(outputPath(outDir, input), result)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Processed %d documents into %s\n", len(inputs), outDir)
	statuses := make([]string, 0, len(summary.statuses))
	for status := range summary.statuses {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Fprintf(out, "  %-14s %d\n", status, summary.statuses[status])
	}
	if n := summary.failed.Load(); n > 0 {
		fmt.Fprintf(out, "  %-14s %d\n", "errors", n)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONFile(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := writeJSON(f, v); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
