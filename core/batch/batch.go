// Package batch orchestrates corpus runs: discovery, a bounded worker
// pool, the per-document pipeline, quarantine of unparsable inputs, and
// the end-of-run summary.
package batch

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/Amanuensis/core/errors"
	"github.com/FocuswithJustin/Amanuensis/core/gate"
	"github.com/FocuswithJustin/Amanuensis/core/index"
	"github.com/FocuswithJustin/Amanuensis/core/suggest"
	"github.com/FocuswithJustin/Amanuensis/core/tei"
	"github.com/FocuswithJustin/Amanuensis/internal/fileutil"
	"github.com/FocuswithJustin/Amanuensis/internal/logging"
)

// Flusher is the store's durability hook, called when a run ends for any
// reason.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Engine wires the pipeline stages for one run.
type Engine struct {
	Locator    *tei.Locator
	Aggregator *suggest.Aggregator
	Gate       *gate.Gate
	Applicator *tei.Applicator
	Replacer   *fileutil.Replacer
	Store      Flusher
	// Concurrency bounds the worker pool. Values below 1 mean serial.
	Concurrency int
}

// DocResult is the outcome for a single document.
type DocResult struct {
	Path       string
	OutputPath string
	Hash       string // blake3 of the written output
	Applied    int
	Escalated  int
	Unresolved int
}

// QuarantineRecord describes one unparsable input.
type QuarantineRecord struct {
	Path   string
	Dest   string
	Hash   string // blake3 of the offending input
	Reason string
}

// Summary is the end-of-run report.
type Summary struct {
	RunID       string
	Documents   int
	Completed   int
	Applied     int
	Escalated   int
	Unresolved  int
	Quarantined []QuarantineRecord
	Elapsed     time.Duration
}

// Run processes every document under inputDir, writing results under
// outputDir and moving unparsable inputs to quarantineDir. Workers run
// concurrently; in interactive runs each document takes its turn at the
// gate in corpus order, so escalations reach the review channel ordered
// by document, then by position within the document, whatever the pool
// size. Cancellation stops scheduling new documents, flushes the store,
// and returns the partial summary.
func (e *Engine) Run(ctx context.Context, inputDir, outputDir, quarantineDir string) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: uuid.NewString()}
	ctx = logging.WithRunID(ctx, summary.RunID)

	paths, err := fileutil.Discover(inputDir)
	if err != nil {
		return nil, err
	}
	summary.Documents = len(paths)
	logging.InfoContext(ctx, "batch_start", "documents", len(paths), "input", inputDir)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	limit := e.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	// turns[i] opens once document i-1 has been through the gate.
	// Suggestion work stays parallel; only the gate stage is sequenced.
	interactive := !e.Gate.Quiet
	turns := make([]chan struct{}, len(paths)+1)
	for i := range turns {
		turns[i] = make(chan struct{})
	}
	close(turns[0])

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			var once sync.Once
			release := func() { once.Do(func() { close(turns[i+1]) }) }
			defer release()
			if gctx.Err() != nil {
				return gctx.Err()
			}

			outPath := filepath.Join(outputDir, fileutil.OutputName(path))
			st, err := e.loadDocument(gctx, path, outPath)
			if err == nil {
				if interactive {
					select {
					case <-turns[i]:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
				err = e.resolveRecords(gctx, st)
				release()
			}

			var result *DocResult
			if err == nil {
				result, err = e.commitDocument(st)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, errors.ErrMalformedStructure) {
					rec := e.quarantine(path, quarantineDir, err)
					summary.Quarantined = append(summary.Quarantined, rec)
					return nil
				}
				return err
			}
			summary.Completed++
			summary.Applied += result.Applied
			summary.Escalated += result.Escalated
			summary.Unresolved += result.Unresolved
			return nil
		})
	}

	runErr := g.Wait()
	if e.Store != nil {
		// Durability on every exit path, cancellation included.
		if ferr := e.Store.Flush(context.Background()); ferr != nil && runErr == nil {
			runErr = ferr
		}
	}
	summary.Elapsed = time.Since(start)
	logging.BatchSummary(summary.RunID, summary.Applied, summary.Escalated,
		summary.Unresolved, len(summary.Quarantined), summary.Elapsed)
	return summary, runErr
}

// ProcessDocument runs the full pipeline on one document: cleanup, parse,
// locate, suggest, gate, apply, atomic write. Escalated records suspend
// only themselves; the document completes once every one is settled.
func (e *Engine) ProcessDocument(ctx context.Context, inPath, outPath string) (*DocResult, error) {
	st, err := e.loadDocument(ctx, inPath, outPath)
	if err != nil {
		return nil, err
	}
	if err := e.resolveRecords(ctx, st); err != nil {
		return nil, err
	}
	return e.commitDocument(st)
}

// docState carries one document between the pipeline stages.
type docState struct {
	inPath  string
	ix      *index.Index
	records []*tei.Abbreviation
	result  *DocResult
}

// loadDocument reads, cleans, parses, and locates one document, then
// gathers suggestions for every record. This is the expensive stage and
// runs fully parallel across workers.
func (e *Engine) loadDocument(ctx context.Context, inPath, outPath string) (*docState, error) {
	data, err := fileutil.ReadDocument(inPath)
	if err != nil {
		return nil, err
	}
	if e.Replacer != nil {
		var changes []fileutil.Change
		data, changes = e.Replacer.Apply(data)
		for _, c := range changes {
			logging.Debug("unicode_cleanup", "path", inPath, "old", c.Old, "new", c.New, "count", c.Count)
		}
	}

	ix, err := index.Parse(data)
	if err != nil {
		return nil, err
	}

	records := e.Locator.Locate(ix)
	logging.DocumentEvent("located", inPath, "records", len(records))
	for _, rec := range records {
		rec.Suggestions = e.Aggregator.Suggest(ctx, rec.Key, rec.Context)
	}

	return &docState{
		inPath:  inPath,
		ix:      ix,
		records: records,
		result:  &DocResult{Path: inPath, OutputPath: outPath},
	}, nil
}

// resolveRecords runs every record through the gate in document order
// and waits for the decisions on the escalated ones. In an interactive
// run this stage holds the corpus-order turn, so a reviewer sees one
// document's requests before the next document's.
func (e *Engine) resolveRecords(ctx context.Context, st *docState) error {
	var pending []*gate.Request
	for _, rec := range st.records {
		req, err := e.Gate.Process(ctx, st.inPath, rec)
		if err != nil {
			return err
		}
		if req != nil {
			pending = append(pending, req)
			st.result.Escalated++
		}
	}
	for _, req := range pending {
		if err := e.Gate.Settle(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// commitDocument applies resolved records and writes the output.
func (e *Engine) commitDocument(st *docState) (*DocResult, error) {
	result := st.result

	// Apply in reverse document order: wrapping a node into <choice>
	// shifts the positions of later same-named siblings, so later
	// locators must be spent before earlier mutations land.
	for i := len(st.records) - 1; i >= 0; i-- {
		rec := st.records[i]
		if !rec.Status.Resolved() {
			result.Unresolved++
			continue
		}
		if err := e.Applicator.Apply(st.ix, rec); err != nil {
			if errors.Is(err, errors.ErrStructuralConflict) {
				logging.DocumentEvent("apply_conflict", st.inPath, "locator", string(rec.Locator))
				rec.Status = tei.StatusUnresolved
				result.Unresolved++
				continue
			}
			return nil, err
		}
		result.Applied++
	}

	out := st.ix.Serialize()
	result.Hash = hashBytes(out)
	if err := fileutil.WriteAtomic(result.OutputPath, out); err != nil {
		return nil, err
	}
	logging.DocumentEvent("completed", st.inPath,
		"applied", result.Applied, "escalated", result.Escalated, "unresolved", result.Unresolved)
	return result, nil
}

func (e *Engine) quarantine(path, quarantineDir string, cause error) QuarantineRecord {
	rec := QuarantineRecord{Path: path, Reason: cause.Error()}
	if data, err := fileutil.ReadDocument(path); err == nil {
		rec.Hash = hashBytes(data)
	}
	dest, err := fileutil.Quarantine(path, quarantineDir)
	if err != nil {
		logging.Error("quarantine_failed", "path", path, "error", err.Error())
		return rec
	}
	rec.Dest = dest
	logging.DocumentEvent("quarantined", path, "dest", dest, "reason", rec.Reason)
	return rec
}

func hashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
