package pipeline

import (
	"context"

	"github.com/sentra-ai/sentra/internal/detection"
	"github.com/sentra-ai/sentra/internal/merge"
	"github.com/sentra-ai/sentra/internal/redact"
)

// runParallel executes both layers concurrently under independent
// deadlines. A layer that misses its deadline contributes nothing to the
// scan and is flagged in metadata; the fail-fast skip does not apply
// because L2 has already been paid for by the time L1 finishes.
func (o *Orchestrator) runParallel(ctx context.Context, text string, meta *detection.ScanMetadata) (detection.L1Result, *merge.L2Outcome) {
	type l2Reply struct {
		out  *merge.L2Outcome
		meta detection.ScanMetadata
	}
	l1ch := make(chan detection.L1Result, 1)
	l2ch := make(chan l2Reply, 1)

	l1ctx, l1cancel := context.WithTimeout(ctx, o.cfg.L1Timeout)
	l2ctx, l2cancel := context.WithTimeout(ctx, o.cfg.L2Timeout)
	defer l1cancel()
	defer l2cancel()

	go func() {
		l1ch <- o.matcher.Match(l1ctx, text, o.snapshot())
	}()
	go func() {
		var m detection.ScanMetadata
		out := o.runL2(l2ctx, text, nil, &m)
		l2ch <- l2Reply{out: out, meta: m}
	}()

	var l1 detection.L1Result
	select {
	case l1 = <-l1ch:
	case <-l1ctx.Done():
		meta.L1TimedOut = true
		redact.Warnf("pipeline: l1 missed %s deadline, scan continues without it", o.cfg.L1Timeout)
	}

	var l2 *merge.L2Outcome
	select {
	case reply := <-l2ch:
		l2 = reply.out
		if reply.meta.L2Skipped {
			meta.L2Skipped = true
			meta.L2SkipReason = reply.meta.L2SkipReason
		}
	case <-l2ctx.Done():
		meta.L2TimedOut = true
		meta.L2Skipped = true
		meta.L2SkipReason = "timeout"
		redact.Warnf("pipeline: l2 missed %s deadline, scan continues without it", o.cfg.L2Timeout)
	}

	return l1, l2
}
