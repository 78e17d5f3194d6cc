package pipeline

import (
	"context"

	"github.com/sentra-ai/sentra/internal/audit"
	"github.com/sentra-ai/sentra/internal/detection"
	"github.com/sentra-ai/sentra/internal/redact"
	"github.com/sentra-ai/sentra/internal/telemetry"
)

// Hook observes scan lifecycle events. Implementations must not assume
// they run on the scan goroutine's critical path: a slow or panicking hook
// is isolated and never changes the scan result.
type Hook interface {
	Name() string
	OnScanStart(ctx context.Context, scanID string)
	OnScanComplete(ctx context.Context, res *detection.ScanPipelineResult)
	OnThreatDetected(ctx context.Context, res *detection.ScanPipelineResult)
}

// Context carries the pipeline's observability collaborators with an owned
// lifecycle. It is constructed once, injected into the orchestrator, and
// closed by whoever built it; nothing in the pipeline reaches for globals.
type Context struct {
	Telemetry *telemetry.Provider
	Audit     *audit.Emitter
	Hooks     []Hook
}

// NewContext assembles a pipeline context. Any field may be nil; the
// pipeline treats missing collaborators as disabled.
func NewContext(tel *telemetry.Provider, emitter *audit.Emitter, hooks []Hook) *Context {
	return &Context{Telemetry: tel, Audit: emitter, Hooks: hooks}
}

// Close flushes telemetry and drains the audit queue.
func (c *Context) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.Audit != nil {
		c.Audit.Close(ctx)
	}
	if c.Telemetry != nil {
		c.Telemetry.Shutdown(ctx)
	}
}

// fireStart invokes OnScanStart on every hook, each individually recovered.
func (c *Context) fireStart(ctx context.Context, scanID string) {
	if c == nil {
		return
	}
	for _, h := range c.Hooks {
		invokeHook(h.Name(), func() { h.OnScanStart(ctx, scanID) })
	}
}

func (c *Context) fireComplete(ctx context.Context, res *detection.ScanPipelineResult) {
	if c == nil {
		return
	}
	for _, h := range c.Hooks {
		invokeHook(h.Name(), func() { h.OnScanComplete(ctx, res) })
	}
	if res.Decision.ShouldBlock || res.Decision.Action == detection.ActionFlag {
		for _, h := range c.Hooks {
			invokeHook(h.Name(), func() { h.OnThreatDetected(ctx, res) })
		}
	}
}

func invokeHook(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			redact.Errorf("pipeline: hook %s panicked: %v", name, r)
		}
	}()
	fn()
}
