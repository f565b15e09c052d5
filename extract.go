package rpa

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/renkit/rpa/internal/extract"
	"github.com/renkit/rpa/internal/pathutil"
)

// ExtractOption configures ExtractAll.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	workers         int
	continueOnError bool
}

// ExtractWithWorkers sets the number of workers for parallel extraction.
// Values < 1 use one worker per CPU.
func ExtractWithWorkers(n int) ExtractOption {
	return func(c *extractConfig) {
		c.workers = n
	}
}

// ExtractWithContinueOnError keeps extracting past per-member failures,
// collecting them in the Result instead of aborting on the first one.
// By default the first failure aborts the run.
func ExtractWithContinueOnError(enabled bool) ExtractOption {
	return func(c *extractConfig) {
		c.continueOnError = enabled
	}
}

// MemberError records one member's extraction failure.
type MemberError struct {
	Name string
	Err  error
}

func (e MemberError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e MemberError) Unwrap() error {
	return e.Err
}

// Result summarizes an ExtractAll run.
type Result struct {
	// Extracted counts members written successfully.
	Extracted int

	// Failed lists members that could not be written. Populated only when
	// ExtractWithContinueOnError is set; the default policy aborts on the
	// first failure.
	Failed []MemberError
}

// ExtractAll writes every member to destDir, creating intermediate
// directories as needed. Existing files at target paths are replaced.
//
// All member names are validated against the destination root before any
// write happens: a name with ".." elements or other escape syntax fails
// the whole run with ErrPathEscape and leaves the destination untouched.
//
// Members are processed in parallel; each worker owns one member's
// read-then-write sequence, and no two members share an output path.
// Writes go through temp files and renames, so an aborted run never
// leaves a partially written member behind.
func (a *Archive) ExtractAll(ctx context.Context, destDir string, opts ...ExtractOption) (Result, error) {
	cfg := extractConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	// Resolve and validate every output path up front.
	paths := make(map[string]string, len(a.names))
	for _, name := range a.names {
		hostPath, err := pathutil.Resolve(destDir, name)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %s", ErrPathEscape, name)
		}
		paths[name] = hostPath
	}

	workers := cfg.workers
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	a.log().Debug("extracting archive", "members", len(a.names), "dest", destDir, "workers", workers)

	sink := extract.NewFileSink(destDir)

	var (
		mu     sync.Mutex
		result Result
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, name := range a.names {
		name := name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := a.extractMember(name, paths[name], sink); err != nil {
				if cfg.continueOnError {
					mu.Lock()
					result.Failed = append(result.Failed, MemberError{Name: name, Err: err})
					mu.Unlock()
					return nil
				}
				return MemberError{Name: name, Err: err}
			}
			mu.Lock()
			result.Extracted++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("rpa: extract: %w", err)
	}
	if len(result.Failed) > 0 {
		return result, fmt.Errorf("rpa: extract: %d of %d members failed", len(result.Failed), len(a.names))
	}
	return result, nil
}

// extractMember reads one member and writes it to its host path.
func (a *Archive) extractMember(name, hostPath string, sink *extract.FileSink) error {
	seg := a.table[name]
	data, err := a.readSegment(name, seg)
	if err != nil {
		return err
	}

	w, err := sink.Writer(hostPath)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Discard() //nolint:errcheck // best-effort cleanup
		return err
	}
	if err := w.Commit(); err != nil {
		return err
	}

	a.log().Debug("extracted member", "name", name, "bytes", len(data))
	return nil
}
