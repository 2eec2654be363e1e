package gframe

import (
	"context"
	"fmt"
)

// FrameBuilder provides a fluent API for assembling frames:
//
//	res, err := gframe.New(gframe.ModeSequential, gframe.FailFast).
//	    Routine("validate", validate).
//	    Routine("apply", apply, gframe.WithTimeout(5*time.Second)).
//	    Run(ctx, nil)
type FrameBuilder struct {
	mode      Mode
	policy    FailurePolicy
	frameOpts []FrameOption
	routines  []routineSpec
}

type routineSpec struct {
	name string
	fn   RoutineFunc
	opts []RoutineOption
}

// New creates a new frame builder with the given mode and failure policy.
func New(mode Mode, policy FailurePolicy, opts ...FrameOption) *FrameBuilder {
	return &FrameBuilder{
		mode:      mode,
		policy:    policy,
		frameOpts: opts,
	}
}

// Routine appends a routine to the frame under construction.
func (b *FrameBuilder) Routine(name string, fn RoutineFunc, opts ...RoutineOption) *FrameBuilder {
	if fn == nil {
		panic(fmt.Sprintf("gframe: routine %q has nil function", name))
	}
	b.routines = append(b.routines, routineSpec{name: name, fn: fn, opts: opts})
	return b
}

// Create builds the frame on reg (the default registry when reg is nil)
// and registers every routine, leaving the frame in CONFIGURING so the
// caller can still subscribe bus handlers before Start.
func (b *FrameBuilder) Create(reg Registry) (Frame, error) {
	if reg == nil {
		reg = Default()
	}
	f, err := reg.CreateFrame(b.mode, b.policy, b.frameOpts...)
	if err != nil {
		return nil, err
	}
	for _, spec := range b.routines {
		if _, err := f.Configure(spec.name, spec.fn, spec.opts...); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Run creates the frame, starts it and awaits the aggregated result. The
// returned error covers misuse and ctx expiry only; routine outcomes are
// in the Result.
func (b *FrameBuilder) Run(ctx context.Context, reg Registry) (*Result, error) {
	f, err := b.Create(reg)
	if err != nil {
		return nil, err
	}
	if err := f.Start(ctx); err != nil {
		return nil, err
	}
	return f.AwaitResult(ctx)
}
