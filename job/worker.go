package job

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"m3u8conv/engine"
	"m3u8conv/logger"
)

// FinishHook runs once a job reaches a terminal state. Hooks cannot alter the record.
type FinishHook func(ctx context.Context, rec Record)

// WorkerOptions configures a Worker
type WorkerOptions struct {
	OutputDir     string
	PublicBaseURL string
	// MaxConcurrent bounds simultaneous engine runs. Zero means unbounded.
	MaxConcurrent int64
	Hooks         []FinishHook
}

// Worker drives the engine for each job and mirrors its events into the registry
type Worker struct {
	registry  Registry
	engine    engine.Engine
	outputDir string
	baseURL   string
	sem       *semaphore.Weighted

	hookMu sync.RWMutex
	hooks  []FinishHook

	wg  sync.WaitGroup
	now func() time.Time
}

// NewWorker creates a worker bound to a registry and an engine
func NewWorker(registry Registry, eng engine.Engine, opts WorkerOptions) *Worker {
	w := &Worker{
		registry:  registry,
		engine:    eng,
		outputDir: opts.OutputDir,
		baseURL:   strings.TrimRight(opts.PublicBaseURL, "/"),
		hooks:     append([]FinishHook(nil), opts.Hooks...),
		now:       time.Now,
	}
	if opts.MaxConcurrent > 0 {
		w.sem = semaphore.NewWeighted(opts.MaxConcurrent)
	}
	return w
}

// AddHook registers a hook to run after every terminal update
func (w *Worker) AddHook(h FinishHook) {
	w.hookMu.Lock()
	defer w.hookMu.Unlock()
	w.hooks = append(w.hooks, h)
}

// Start validates the job's inputs and launches the engine in the background.
// Setup failures move the job to error and are also returned to the caller.
func (w *Worker) Start(ctx context.Context, id string) error {
	rec, err := w.registry.Get(id)
	if err != nil {
		return err
	}

	if err := w.preflight(rec); err != nil {
		logger.Warnf("Job %s failed pre-flight: %v", id, err)
		// submitters must not wait on hooks such as callbacks
		if updated, ok := w.markFailed(rec, userMessage(err)); ok {
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.runHooks(ctx, updated)
			}()
		}
		return err
	}

	filename := w.outputFilename(id)
	outputPath := filepath.Join(w.outputDir, filename)
	if _, err := w.registry.Update(id, Patch{OutputPath: StringPtr(outputPath)}); err != nil {
		return fmt.Errorf("failed to record output path: %w", err)
	}

	req := engine.Request{
		Source: rec.Source.Locator,
		Kind:   rec.Source.Kind,
		Output: outputPath,
	}

	w.wg.Add(1)
	go w.run(ctx, id, filename, req)

	logger.Infof("Started conversion %s (%s source)", id, rec.Source.Kind)
	return nil
}

// Wait blocks until every launched job has reached a terminal state
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) preflight(rec Record) error {
	if rec.Source.Kind == engine.SourceLocalFile {
		if _, err := os.Stat(rec.Source.Locator); err != nil {
			return fmt.Errorf("%w: %v", ErrSourceNotFound, err)
		}
	}

	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	probe, err := os.CreateTemp(w.outputDir, ".write-probe-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		logger.Warnf("Failed to remove write probe %s: %v", probe.Name(), err)
	}
	return nil
}

func (w *Worker) outputFilename(id string) string {
	short := strings.ReplaceAll(id, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("converted_%d_%s.mp4", w.now().UnixMilli(), short)
}

func (w *Worker) artifactFor(filename string) *Artifact {
	view := w.baseURL + "/downloads/" + url.PathEscape(filename)
	return &Artifact{
		ViewURL:     view,
		DownloadURL: view + "?download=1",
		Filename:    filename,
	}
}

// run is the per-job handler; it applies engine events in the order received
func (w *Worker) run(ctx context.Context, id, filename string, req engine.Request) {
	defer w.wg.Done()

	if w.sem != nil {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			w.handleFailure(ctx, id, fmt.Sprintf("conversion interrupted: %v", err))
			return
		}
		defer w.sem.Release(1)
	}

	terminal, started := false, false
	for ev := range w.engine.Remux(ctx, req) {
		if terminal {
			logger.Warnf("Job %s: ignoring %s event after terminal event", id, ev.Type)
			continue
		}
		switch ev.Type {
		case engine.EventStarted:
			started = true
			w.update(id, Patch{Status: StatusPtr(StatusConverting), Progress: IntPtr(0)})
		case engine.EventProgress:
			started = true
			w.update(id, Patch{Status: StatusPtr(StatusConverting), Progress: IntPtr(percentValue(ev.Percent))})
		case engine.EventCompleted:
			terminal = true
			if !started {
				// completed is only reachable from converting
				w.update(id, Patch{Status: StatusPtr(StatusConverting)})
			}
			w.handleCompletion(ctx, id, filename)
		case engine.EventFailed:
			terminal = true
			w.handleFailure(ctx, id, ev.Message)
		}
	}

	if !terminal {
		w.handleFailure(ctx, id, "engine stopped without reporting a result")
	}
}

func percentValue(p *float64) int {
	if p == nil || math.IsNaN(*p) {
		return 0
	}
	return int(math.Round(*p))
}

func (w *Worker) update(id string, patch Patch) (Record, bool) {
	rec, err := w.registry.Update(id, patch)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Warnf("Job %s disappeared from registry", id)
		} else {
			logger.Errorf("Failed to update job %s: %v", id, err)
		}
		return rec, false
	}
	return rec, true
}

func (w *Worker) handleCompletion(ctx context.Context, id, filename string) {
	rec, ok := w.update(id, Patch{
		Status:   StatusPtr(StatusCompleted),
		Progress: IntPtr(100),
		Artifact: w.artifactFor(filename),
	})
	if !ok {
		return
	}

	removeTemp(rec.Source.TempPath)
	logger.Infof("Conversion %s completed: %s", id, filename)
	w.runHooks(ctx, rec)
}

func (w *Worker) handleFailure(ctx context.Context, id, message string) {
	logger.Errorf("Conversion %s failed: %s", id, message)

	rec, err := w.registry.Get(id)
	if err != nil {
		logger.Warnf("Job %s disappeared from registry", id)
		return
	}
	w.finishWithError(ctx, rec, ClassifyEngineError(message))
}

func (w *Worker) finishWithError(ctx context.Context, rec Record, detail string) {
	if updated, ok := w.markFailed(rec, detail); ok {
		w.runHooks(ctx, updated)
	}
}

// markFailed moves the job to error and removes its partial output and upload
func (w *Worker) markFailed(rec Record, detail string) (Record, bool) {
	updated, ok := w.update(rec.ID, Patch{
		Status:      StatusPtr(StatusError),
		ErrorDetail: StringPtr(detail),
	})
	if !ok {
		return updated, false
	}

	if updated.OutputPath != "" {
		if err := os.Remove(updated.OutputPath); err != nil && !os.IsNotExist(err) {
			logger.Warnf("Failed to remove partial output %s: %v", updated.OutputPath, err)
			// Don't fail the job for cleanup errors
		}
	}
	removeTemp(updated.Source.TempPath)
	return updated, true
}

func (w *Worker) runHooks(ctx context.Context, rec Record) {
	w.hookMu.RLock()
	hooks := append([]FinishHook(nil), w.hooks...)
	w.hookMu.RUnlock()

	hookCtx := context.WithoutCancel(ctx)
	for _, h := range hooks {
		h(hookCtx, rec)
	}
}

func removeTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warnf("Failed to remove uploaded playlist %s: %v", path, err)
	}
}
