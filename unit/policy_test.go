package unit

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/chainkit/chainkit/callback"
	"github.com/chainkit/chainkit/errors"
	"github.com/chainkit/chainkit/resilience"
	"github.com/chainkit/chainkit/stream"
)

func fastRetry(maxAttempts int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  1.0,
	}
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	flaky := Func("flaky", func(ctx context.Context, in string) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.Transient("flaky", nil)
		}
		return in + "!", nil
	})

	wrapped := WithRetry(Policy[string, string]{Retry: fastRetry(5)})(flaky)
	out, err := wrapped.Invoke(context.Background(), "ok")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out != "ok!" {
		t.Errorf("Invoke() = %q, want %q", out, "ok!")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryNonRetryableSingleAttempt(t *testing.T) {
	attempts := 0
	broken := Func("broken", func(ctx context.Context, in string) (string, error) {
		attempts++
		return "", errors.InvalidInput("broken", "bad input")
	})

	wrapped := WithRetry(Policy[string, string]{Retry: fastRetry(5)})(broken)
	_, err := wrapped.Invoke(context.Background(), "x")
	if err == nil {
		t.Fatal("Invoke() want error, got nil")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestWithRetryFallback(t *testing.T) {
	primary := Func("primary", func(ctx context.Context, in string) (string, error) {
		return "", errors.Transient("primary", nil)
	})
	fallback := Func("backup", func(ctx context.Context, in string) (string, error) {
		return "from backup", nil
	})

	wrapped := WithRetry(Policy[string, string]{
		Retry:     fastRetry(2),
		Fallbacks: []Unit[string, string]{fallback},
	})(primary)

	out, err := wrapped.Invoke(context.Background(), "x")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out != "from backup" {
		t.Errorf("Invoke() = %q, want %q", out, "from backup")
	}
}

func TestWithRetryPolicyExhausted(t *testing.T) {
	primary := Func("primary", func(ctx context.Context, in string) (string, error) {
		return "", errors.Transient("primary", nil)
	})
	fallback := Func("backup", func(ctx context.Context, in string) (string, error) {
		return "", errors.Failed("backup", errBoom)
	})

	wrapped := WithRetry(Policy[string, string]{
		Retry:     fastRetry(3),
		Fallbacks: []Unit[string, string]{fallback},
	})(primary)

	_, err := wrapped.Invoke(context.Background(), "x")
	if err == nil {
		t.Fatal("Invoke() want error, got nil")
	}
	var pe *errors.PolicyExhaustedError
	if !stderrors.As(err, &pe) {
		t.Fatalf("error = %v, want PolicyExhaustedError", err)
	}
	// 3 primary attempts plus 1 fallback attempt.
	if len(pe.Attempts) != 4 {
		t.Errorf("len(Attempts) = %d, want 4", len(pe.Attempts))
	}
	if pe.Unit != "primary" {
		t.Errorf("Unit = %q, want %q", pe.Unit, "primary")
	}
}

func TestWithRetryFallbackRecordsBothUnitsEvents(t *testing.T) {
	collect := callback.NewCollectHandler()
	bus := callback.NewBus([]callback.Handler{collect})

	primary := Func("primary", func(ctx context.Context, in string) (string, error) {
		return "", errors.Failed("primary", errBoom)
	})
	fallback := Func("backup", func(ctx context.Context, in string) (string, error) {
		return "from backup", nil
	})

	wrapped := WithRetry(Policy[string, string]{
		Retry:     fastRetry(1),
		Fallbacks: []Unit[string, string]{WithCallbacks[string, string](bus)(fallback)},
	})(WithCallbacks[string, string](bus)(primary))

	ctx := callback.WithRun(context.Background(), callback.NewRun())
	out, err := wrapped.Invoke(ctx, "x")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out != "from backup" {
		t.Errorf("Invoke() = %q, want %q", out, "from backup")
	}

	var got []string
	for _, ev := range collect.All() {
		got = append(got, ev.Unit+":"+string(ev.Type))
	}
	want := []string{
		"primary:" + string(callback.UnitStart),
		"primary:" + string(callback.UnitError),
		"backup:" + string(callback.UnitStart),
		"backup:" + string(callback.UnitEnd),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("event sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestWithRetryCancellationSkipsFallbacks(t *testing.T) {
	fallbackCalled := false
	ctx, cancel := context.WithCancel(context.Background())

	primary := Func("primary", func(ctx context.Context, in string) (string, error) {
		cancel()
		return "", errors.Transient("primary", nil)
	})
	fallback := Func("backup", func(ctx context.Context, in string) (string, error) {
		fallbackCalled = true
		return "never", nil
	})

	wrapped := WithRetry(Policy[string, string]{
		Retry:     fastRetry(3),
		Fallbacks: []Unit[string, string]{fallback},
	})(primary)

	_, err := wrapped.Invoke(ctx, "x")
	if err == nil {
		t.Fatal("Invoke() want error, got nil")
	}
	if !errors.IsCanceled(err) {
		t.Errorf("error = %v, want cancellation", err)
	}
	if fallbackCalled {
		t.Error("fallback ran after cancellation")
	}
}

func TestWithRetryStreamFallsBackToInvoke(t *testing.T) {
	attempts := 0
	flaky := Func("flaky", func(ctx context.Context, in string) (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.Transient("flaky", nil)
		}
		return "done", nil
	})

	wrapped := WithRetry(Policy[string, string]{Retry: fastRetry(3)})(flaky)
	it, err := Stream(context.Background(), wrapped, "x")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	got, err := stream.Collect(context.Background(), it)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if diff := cmp.Diff([]string{"done"}, got); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}
}

func TestWithCallbacksInvokeEvents(t *testing.T) {
	collect := callback.NewCollectHandler()
	bus := callback.NewBus([]callback.Handler{collect})

	wrapped := WithCallbacks[string, string](bus)(upper())
	if _, err := wrapped.Invoke(context.Background(), "hi"); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	events := collect.All()
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Type != callback.UnitStart || events[1].Type != callback.UnitEnd {
		t.Errorf("event types = %v, %v; want start, end", events[0].Type, events[1].Type)
	}
	if events[0].RunID == "" || events[0].RunID != events[1].RunID {
		t.Error("events do not share a run id")
	}
	if events[1].Output != "HI" {
		t.Errorf("end event output = %v, want HI", events[1].Output)
	}
}

func TestWithCallbacksErrorEvent(t *testing.T) {
	collect := callback.NewCollectHandler()
	bus := callback.NewBus([]callback.Handler{collect})

	broken := Func("broken", func(ctx context.Context, in string) (string, error) {
		return "", errBoom
	})
	wrapped := WithCallbacks[string, string](bus)(broken)
	if _, err := wrapped.Invoke(context.Background(), "x"); err == nil {
		t.Fatal("Invoke() want error, got nil")
	}

	events := collect.All()
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[1].Type != callback.UnitError {
		t.Errorf("events[1].Type = %v, want unit_error", events[1].Type)
	}
	if events[1].Err == nil {
		t.Error("error event lost the error")
	}
}

func TestWithCallbacksStreamChunkEvents(t *testing.T) {
	collect := callback.NewCollectHandler()
	bus := callback.NewBus([]callback.Handler{collect})

	wrapped := WithCallbacks[string, string](bus)(chunker("Hel", "lo"))
	it, err := Stream(context.Background(), wrapped, "")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if _, err := stream.Collect(context.Background(), it); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	var types []callback.EventType
	for _, ev := range collect.All() {
		types = append(types, ev.Type)
	}
	want := []callback.EventType{
		callback.UnitStart, callback.Chunk, callback.Chunk, callback.UnitEnd,
	}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Errorf("event sequence mismatch (-want +got):\n%s", diff)
	}

	chunks := collect.All()[1:3]
	if chunks[0].Chunk != "Hel" || chunks[0].ChunkIndex != 0 {
		t.Errorf("chunk[0] = %v/%d, want Hel/0", chunks[0].Chunk, chunks[0].ChunkIndex)
	}
	if chunks[1].Chunk != "lo" || chunks[1].ChunkIndex != 1 {
		t.Errorf("chunk[1] = %v/%d, want lo/1", chunks[1].Chunk, chunks[1].ChunkIndex)
	}
}

func TestRetryOutsideCallbacksEmitsPerAttempt(t *testing.T) {
	collect := callback.NewCollectHandler()
	bus := callback.NewBus([]callback.Handler{collect})

	attempts := 0
	flaky := Func("flaky", func(ctx context.Context, in string) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.Transient("flaky", nil)
		}
		return "done", nil
	})

	wrapped := Chain(
		WithRetry(Policy[string, string]{Retry: fastRetry(5)}),
		WithCallbacks[string, string](bus),
	)(flaky)

	ctx := callback.WithRun(context.Background(), callback.NewRun())
	if _, err := wrapped.Invoke(ctx, "x"); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	starts, errs, ends := 0, 0, 0
	var startAttempts []int
	for _, ev := range collect.All() {
		switch ev.Type {
		case callback.UnitStart:
			starts++
			startAttempts = append(startAttempts, ev.Attempt)
		case callback.UnitError:
			errs++
		case callback.UnitEnd:
			ends++
		}
	}
	if starts != 3 || errs != 2 || ends != 1 {
		t.Errorf("starts/errors/ends = %d/%d/%d, want 3/2/1", starts, errs, ends)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, startAttempts); diff != "" {
		t.Errorf("start attempts mismatch (-want +got):\n%s", diff)
	}
}

func TestWithTimeout(t *testing.T) {
	slow := Func("slow", func(ctx context.Context, in string) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
			return in, nil
		}
	})

	wrapped := WithTimeout[string, string](5 * time.Millisecond)(slow)
	_, err := wrapped.Invoke(context.Background(), "x")
	if err == nil {
		t.Fatal("Invoke() want error, got nil")
	}
	ue, ok := errors.AsUnitError(err)
	if !ok || ue.Code != errors.ErrCodeCanceled {
		t.Errorf("error = %v, want CANCELED unit error", err)
	}
}

func TestWithTimeoutBoundsStreamConsumption(t *testing.T) {
	slow := Func("slow", func(ctx context.Context, in string) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
			return in, nil
		}
	})

	wrapped := WithTimeout[string, string](5 * time.Millisecond)(slow)
	it, err := Stream(context.Background(), wrapped, "x")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer it.Close()

	start := time.Now()
	_, ok, err := it.Next(context.Background())
	if ok || err == nil {
		t.Fatalf("Next() = ok=%v err=%v, want deadline error", ok, err)
	}
	ue, valid := errors.AsUnitError(err)
	if !valid || ue.Code != errors.ErrCodeCanceled {
		t.Errorf("error = %v, want CANCELED unit error", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Next() blocked %v past the deadline", elapsed)
	}
}

func TestWithTimeoutFastPath(t *testing.T) {
	wrapped := WithTimeout[string, string](time.Second)(upper())
	out, err := wrapped.Invoke(context.Background(), "ok")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out != "OK" {
		t.Errorf("Invoke() = %q, want OK", out)
	}
}

func TestWithCircuitBreakerFailsFastWhenOpen(t *testing.T) {
	cfg := resilience.DefaultCircuitBreakerConfig("broken")
	cfg.MaxFailures = 2
	cb := resilience.NewCircuitBreaker(cfg)

	calls := 0
	broken := Func("broken", func(ctx context.Context, in string) (string, error) {
		calls++
		return "", errBoom
	})
	wrapped := WithCircuitBreaker[string, string](cb)(broken)

	for range 2 {
		if _, err := wrapped.Invoke(context.Background(), "x"); err == nil {
			t.Fatal("Invoke() want error, got nil")
		}
	}
	if cb.State() != resilience.StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	_, err := wrapped.Invoke(context.Background(), "x")
	if err == nil {
		t.Fatal("Invoke() with open breaker: want error, got nil")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (open breaker must not invoke)", calls)
	}
	ue, ok := errors.AsUnitError(err)
	if !ok || !ue.Retryable {
		t.Errorf("open breaker error = %v, want retryable unit error", err)
	}
}
