package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediasvc/internal/logging"
	"mediasvc/internal/media"
	"mediasvc/internal/observability"
	"mediasvc/internal/storage"
)

// DefaultRetention matches the age used by the sweep command when none is given.
const DefaultRetention = 30 * 24 * time.Hour

// SweepResult summarises one retention pass.
type SweepResult struct {
	Scanned    int
	Deleted    int
	FreedBytes int64
}

// Janitor deletes objects older than MaxAge.
type Janitor struct {
	Service *MediaService
	MaxAge  time.Duration
	// Interval between passes when driven by Run.
	Interval time.Duration
	Logger   logging.Logger
	Now      func() time.Time
}

// Sweep executes a single retention pass. Individual delete failures are
// collected and the pass continues.
func (j *Janitor) Sweep(ctx context.Context) (SweepResult, error) {
	if j == nil || j.Service == nil {
		return SweepResult{}, errors.New("retention janitor requires a media service")
	}
	maxAge := j.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}
	now := time.Now().UTC()
	if j.Now != nil {
		now = j.Now()
	}
	logger := logging.OrNop(j.Logger)

	ctx, span := j.Service.startSpan(ctx, observability.SpanSweep)
	candidates, err := j.Service.store.List(ctx, storage.Filter{CreatedBefore: now.Add(-maxAge)})
	if err != nil {
		observability.EndSpan(span, err)
		return SweepResult{}, fmt.Errorf("list expired media: %w", err)
	}

	result := SweepResult{Scanned: len(candidates)}
	var errs []error
	for _, obj := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := j.Service.Delete(ctx, obj.ID); err != nil {
			if errors.Is(err, media.ErrNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("delete %s: %w", obj.ID, err))
			continue
		}
		result.Deleted++
		result.FreedBytes += obj.SizeBytes
	}
	sweepErr := errors.Join(errs...)
	observability.EndSpan(span, sweepErr)
	logger.Info("Retention sweep removed %d of %d objects older than %s", result.Deleted, result.Scanned, maxAge)
	return result, sweepErr
}

// Run sweeps on every Interval tick until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	logger := logging.OrNop(j.Logger)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil {
				logger.Warn("Retention sweep incomplete: %v", err)
			}
		}
	}
}
