package frame

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petrijr/gframe/pkg/api"
)

func TestConcurrentRoundRobinInterleaving(t *testing.T) {
	ctx := context.Background()
	f := newTestFrame(api.ModeConcurrent, api.CollectAll)

	var tokens []string
	step := func(prefix string) api.RoutineFunc {
		return func(ctx context.Context, rc api.RoutineContext) (any, error) {
			tokens = append(tokens, prefix+"1")
			if err := rc.Yield(ctx); err != nil {
				return nil, err
			}
			tokens = append(tokens, prefix+"2")
			return nil, nil
		}
	}
	mustConfigure(t, f, "a", step("a"))
	mustConfigure(t, f, "b", step("b"))

	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	res, err := f.AwaitResult(ctx)
	if err != nil {
		t.Fatalf("AwaitResult failed: %v", err)
	}
	if res.State != api.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", res.State)
	}

	want := "a1,b1,a2,b2"
	if got := strings.Join(tokens, ","); got != want {
		t.Fatalf("expected deterministic interleaving %s, got %s", want, got)
	}
}

func TestOrderingKeysControlAdmission(t *testing.T) {
	ctx := context.Background()
	f := newTestFrame(api.ModeSequential, api.CollectAll)

	var order []string
	record := func(name string) api.RoutineFunc {
		return func(ctx context.Context, rc api.RoutineContext) (any, error) {
			order = append(order, name)
			return nil, nil
		}
	}
	mustConfigure(t, f, "third", record("third"), api.WithOrderingKey(3))
	mustConfigure(t, f, "first", record("first"), api.WithOrderingKey(1))
	mustConfigure(t, f, "second", record("second"), api.WithOrderingKey(2))

	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := f.AwaitResult(ctx); err != nil {
		t.Fatalf("AwaitResult failed: %v", err)
	}

	want := "first,second,third"
	if got := strings.Join(order, ","); got != want {
		t.Fatalf("expected admission order %s, got %s", want, got)
	}
}

func TestOrderingKeyTiesKeepRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	f := newTestFrame(api.ModeSequential, api.CollectAll)

	var order []string
	record := func(name string) api.RoutineFunc {
		return func(ctx context.Context, rc api.RoutineContext) (any, error) {
			order = append(order, name)
			return nil, nil
		}
	}
	mustConfigure(t, f, "a", record("a"), api.WithOrderingKey(5))
	mustConfigure(t, f, "b", record("b"), api.WithOrderingKey(5))
	mustConfigure(t, f, "c", record("c"), api.WithOrderingKey(5))

	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := f.AwaitResult(ctx); err != nil {
		t.Fatalf("AwaitResult failed: %v", err)
	}

	if got := strings.Join(order, ","); got != "a,b,c" {
		t.Fatalf("ties must keep registration order, got %s", got)
	}
}

func TestParallelAllRoutinesSucceed(t *testing.T) {
	ctx := context.Background()
	f := newTestFrame(api.ModeParallel, api.CollectAll)

	for _, name := range []string{"n1", "n2", "n3", "n4", "n5"} {
		mustConfigure(t, f, name, value(name))
	}

	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	res, err := f.AwaitResult(ctx)
	if err != nil {
		t.Fatalf("AwaitResult failed: %v", err)
	}

	if res.State != api.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", res.State)
	}
	values := res.Values()
	if len(values) != 5 {
		t.Fatalf("expected 5 values, got %v", values)
	}
	if values[2] != "n3" {
		t.Fatalf("values must follow registration order, got %v", values)
	}
	if v, ok := res.Value("n5"); !ok || v != "n5" {
		t.Fatalf("unexpected value for n5: %v (%v)", v, ok)
	}
}

func TestParallelRespectsPoolBound(t *testing.T) {
	ctx := context.Background()
	f := New("frame-test", api.ModeParallel, api.CollectAll, api.FrameConfig{MaxParallel: 2}, nil)

	var mu sync.Mutex
	var current, peak int
	body := func(ctx context.Context, rc api.RoutineContext) (any, error) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		current--
		mu.Unlock()
		return nil, nil
	}
	for i := 0; i < 6; i++ {
		mustConfigure(t, f, "", body)
	}

	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	res, err := f.AwaitResult(ctx)
	if err != nil {
		t.Fatalf("AwaitResult failed: %v", err)
	}
	if res.State != api.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", res.State)
	}
	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Fatalf("pool bound violated: %d routines ran at once", peak)
	}
}

func TestParallelFailFastStopsAdmission(t *testing.T) {
	ctx := context.Background()
	f := New("frame-test", api.ModeParallel, api.FailFast, api.FrameConfig{MaxParallel: 1}, nil)

	var ranAfterFailure atomic.Bool
	mustConfigure(t, f, "bad", failing(errors.New("boom")), api.WithOrderingKey(1))
	late := func(ctx context.Context, rc api.RoutineContext) (any, error) {
		ranAfterFailure.Store(true)
		return nil, nil
	}
	mustConfigure(t, f, "p1", late, api.WithOrderingKey(2))
	mustConfigure(t, f, "p2", late, api.WithOrderingKey(3))

	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	res, err := f.AwaitResult(ctx)
	if err != nil {
		t.Fatalf("AwaitResult failed: %v", err)
	}

	if res.State != api.StateFailed {
		t.Fatalf("expected FAILED, got %s", res.State)
	}
	if ranAfterFailure.Load() {
		t.Fatal("pending routine was admitted after fail-fast cancellation began")
	}
	for _, r := range res.Routines[1:] {
		if r.State != api.RoutineCancelled {
			t.Fatalf("routine %s: expected CANCELLED, got %s", r.Name, r.State)
		}
	}
}

func TestExternalCancelDeliveredAtYield(t *testing.T) {
	ctx := context.Background()
	f := newTestFrame(api.ModeConcurrent, api.CollectAll)

	mustConfigure(t, f, "spin-a", yieldUntilCancelled)
	mustConfigure(t, f, "spin-b", yieldUntilCancelled)

	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	f.Cancel("operator request")

	res, err := f.AwaitResult(ctx)
	if err != nil {
		t.Fatalf("AwaitResult failed: %v", err)
	}
	if res.State != api.StateCancelled {
		t.Fatalf("expected CANCELLED, got %s", res.State)
	}
	if res.Reason != "operator request" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
	for _, r := range res.Routines {
		if r.State != api.RoutineCancelled {
			t.Fatalf("routine %s: expected CANCELLED, got %s", r.Name, r.State)
		}
		var ce *api.CancellationError
		if !errors.As(r.Err, &ce) {
			t.Fatalf("routine %s: expected CancellationError, got %v", r.Name, r.Err)
		}
	}
}

func TestRunContextCancellationCancelsFrame(t *testing.T) {
	runCtx, cancel := context.WithCancel(context.Background())
	f := newTestFrame(api.ModeSequential, api.CollectAll)
	mustConfigure(t, f, "spin", yieldUntilCancelled)

	if err := f.Start(runCtx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()

	res, err := f.AwaitResult(context.Background())
	if err != nil {
		t.Fatalf("AwaitResult failed: %v", err)
	}
	if res.State != api.StateCancelled {
		t.Fatalf("expected CANCELLED after run context expiry, got %s", res.State)
	}
}

func TestTimeoutFailsRoutine(t *testing.T) {
	ctx := context.Background()
	f := newTestFrame(api.ModeSequential, api.CollectAll)

	block := func(ctx context.Context, rc api.RoutineContext) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	mustConfigure(t, f, "slow", block, api.WithTimeout(20*time.Millisecond))
	mustConfigure(t, f, "ok", value(1))

	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	res, err := f.AwaitResult(ctx)
	if err != nil {
		t.Fatalf("AwaitResult failed: %v", err)
	}

	if res.State != api.StateFailed {
		t.Fatalf("expected FAILED, got %s", res.State)
	}
	slow := res.Routines[0]
	if slow.State != api.RoutineFailed {
		t.Fatalf("expected FAILED routine, got %s", slow.State)
	}
	if !api.IsTimeout(slow.Err) {
		t.Fatalf("expected TimeoutError cause, got %v", slow.Err)
	}
	// CollectAll keeps running the rest of the set.
	if res.Routines[1].State != api.RoutineDone {
		t.Fatalf("expected the other routine to complete, got %s", res.Routines[1].State)
	}
}

func TestRetryPolicyReRunsUntilSuccess(t *testing.T) {
	ctx := context.Background()
	f := newTestFrame(api.ModeSequential, api.CollectAll)

	attempts := 0
	flaky := func(ctx context.Context, rc api.RoutineContext) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient")
		}
		return "recovered", nil
	}
	mustConfigure(t, f, "flaky", flaky, api.WithRetry(api.RetryPolicy{MaxAttempts: 3}))

	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	res, err := f.AwaitResult(ctx)
	if err != nil {
		t.Fatalf("AwaitResult failed: %v", err)
	}

	if res.State != api.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", res.State)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if res.Routines[0].Value != "recovered" {
		t.Fatalf("unexpected value %v", res.Routines[0].Value)
	}
}

func TestRetryExhaustionReportsLastError(t *testing.T) {
	ctx := context.Background()
	f := newTestFrame(api.ModeSequential, api.CollectAll)

	attempts := 0
	last := errors.New("still broken")
	mustConfigure(t, f, "broken", func(ctx context.Context, rc api.RoutineContext) (any, error) {
		attempts++
		return nil, last
	}, api.WithRetry(api.RetryPolicy{MaxAttempts: 2}))

	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	res, err := f.AwaitResult(ctx)
	if err != nil {
		t.Fatalf("AwaitResult failed: %v", err)
	}

	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if res.Routines[0].State != api.RoutineFailed {
		t.Fatalf("expected FAILED routine, got %s", res.Routines[0].State)
	}
	if !errors.Is(res.Routines[0].Err, last) {
		t.Fatalf("expected last attempt's error, got %v", res.Routines[0].Err)
	}
}

func TestPanicIsCapturedAsFailure(t *testing.T) {
	ctx := context.Background()
	f := newTestFrame(api.ModeSequential, api.CollectAll)

	mustConfigure(t, f, "explosive", func(ctx context.Context, rc api.RoutineContext) (any, error) {
		panic("kaboom")
	})
	mustConfigure(t, f, "ok", value(1))

	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	res, err := f.AwaitResult(ctx)
	if err != nil {
		t.Fatalf("AwaitResult failed: %v", err)
	}

	if res.State != api.StateFailed {
		t.Fatalf("expected FAILED, got %s", res.State)
	}
	if res.Routines[0].State != api.RoutineFailed {
		t.Fatalf("expected FAILED routine, got %s", res.Routines[0].State)
	}
	if !strings.Contains(res.Routines[0].Err.Error(), "kaboom") {
		t.Fatalf("panic value lost: %v", res.Routines[0].Err)
	}
	if res.Routines[1].State != api.RoutineDone {
		t.Fatalf("panic must not take down sibling routines, got %s", res.Routines[1].State)
	}
}

func TestRoutinePublishesUserMessages(t *testing.T) {
	ctx := context.Background()
	f := newTestFrame(api.ModeSequential, api.CollectAll)

	var got []any
	f.Bus().Subscribe("progress.*", func(ctx context.Context, msg api.Message) error {
		got = append(got, msg.Body)
		return nil
	})

	mustConfigure(t, f, "worker", func(ctx context.Context, rc api.RoutineContext) (any, error) {
		if err := rc.Publish("progress.step", 1); err != nil {
			return nil, err
		}
		if err := rc.Publish("frame.started", nil); err == nil {
			return nil, errors.New("reserved topic accepted")
		}
		return nil, rc.Publish("progress.step", 2)
	})

	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	res, err := f.AwaitResult(ctx)
	if err != nil {
		t.Fatalf("AwaitResult failed: %v", err)
	}

	if res.State != api.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s: %v", res.State, res.Err())
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected user messages: %v", got)
	}
}
