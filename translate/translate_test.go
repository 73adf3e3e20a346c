package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modloc/modloc/glossary"
	"github.com/modloc/modloc/guard"
)

// fakeBackend records every text it receives and answers through fn.
type fakeBackend struct {
	mu    sync.Mutex
	mode  GlossaryMode
	calls []string
	fn    func(text string) (string, error)
}

func (f *fakeBackend) GlossaryMode() GlossaryMode { return f.mode }

func (f *fakeBackend) Translate(_ context.Context, text, _ string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	return f.fn(text)
}

func noSleep(waits *[]time.Duration) RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		BaseDelay: time.Second,
		Jitter:    func() float64 { return 0.5 },
		Sleep: func(_ context.Context, d time.Duration) error {
			if waits != nil {
				*waits = append(*waits, d)
			}
			return nil
		},
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, Jitter: func() float64 { return 0.25 }}
	want := []time.Duration{1250 * time.Millisecond, 2500 * time.Millisecond, 5 * time.Second}
	for i, w := range want {
		if got := p.Backoff(i); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i, got, w)
		}
	}
}

func TestRetryPolicy_SucceedsAfterFailures(t *testing.T) {
	var waits []time.Duration
	p := noSleep(&waits)
	calls := 0
	out, err := p.Do(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil || out != "ok" {
		t.Fatalf("Do() = %q, %v", out, err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(waits) != 2 || waits[0] != 1500*time.Millisecond || waits[1] != 3*time.Second {
		t.Fatalf("waits = %v", waits)
	}
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	p := noSleep(nil)
	boom := errors.New("boom")
	calls := 0
	_, err := p.Do(context.Background(), func(context.Context) (string, error) {
		calls++
		return "", boom
	})
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, ErrRetriesExhausted) || !errors.Is(err, boom) {
		t.Fatalf("error = %v, want ErrRetriesExhausted wrapping boom", err)
	}
}

func TestRetryPolicy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{Attempts: 3, BaseDelay: time.Hour}
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := p.Do(ctx, func(context.Context) (string, error) {
			calls++
			return "", errors.New("fail")
		})
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestPreserver_MarkupSurvivesTranslation(t *testing.T) {
	b := &fakeBackend{fn: func(text string) (string, error) {
		return strings.ReplaceAll(text, "has", "보유"), nil
	}}
	p := WithRetryAndPreservation(b, nil, nil, noSleep(nil))

	got, err := p.TranslateWithPreservation(context.Background(), "$COUNTRY$ has §Y[Root.GetName]§!", "ko")
	if err != nil {
		t.Fatalf("TranslateWithPreservation() error: %v", err)
	}
	if got != "$COUNTRY$ 보유 §Y[Root.GetName]§!" {
		t.Fatalf("got %q", got)
	}
	if len(b.calls) != 1 || strings.ContainsAny(b.calls[0], "$[]§") {
		t.Fatalf("backend saw raw markup: %q", b.calls)
	}
}

func TestPreserver_GlossaryPlaceholderMode(t *testing.T) {
	b := &fakeBackend{mode: GlossaryPlaceholder, fn: func(text string) (string, error) {
		return strings.ReplaceAll(text, "Gain", "획득"), nil
	}}
	gl := glossary.New(map[string]string{"Manpower": "인력"})
	p := WithRetryAndPreservation(b, guard.New(), gl, noSleep(nil))

	got, err := p.TranslateWithPreservation(context.Background(), "Gain 10 Manpower", "ko")
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if !strings.Contains(got, "인력") || strings.Contains(got, "Manpower") {
		t.Fatalf("got %q, want glossary target verbatim", got)
	}
	if strings.Contains(b.calls[0], "Manpower") {
		t.Fatalf("backend saw glossary source term: %q", b.calls[0])
	}
}

func TestPreserver_GlossaryNativeModeLeavesTerms(t *testing.T) {
	b := &fakeBackend{mode: GlossaryNative, fn: func(text string) (string, error) { return text, nil }}
	gl := glossary.New(map[string]string{"Manpower": "인력"})
	p := WithRetryAndPreservation(b, nil, gl, noSleep(nil))

	if _, err := p.TranslateWithPreservation(context.Background(), "Gain 10 Manpower", "ko"); err != nil {
		t.Fatalf("error: %v", err)
	}
	if b.calls[0] != "Gain 10 Manpower" {
		t.Fatalf("native mode backend got %q", b.calls[0])
	}
}

func TestPreserver_WhitespacePassthrough(t *testing.T) {
	b := &fakeBackend{fn: func(string) (string, error) { return "x", nil }}
	p := WithRetryAndPreservation(b, nil, nil, noSleep(nil))
	for _, in := range []string{"", "   ", "\t"} {
		got, err := p.TranslateWithPreservation(context.Background(), in, "ko")
		if err != nil || got != in {
			t.Errorf("TranslateWithPreservation(%q) = %q, %v", in, got, err)
		}
	}
	if len(b.calls) != 0 {
		t.Fatalf("backend called %d times for blank input", len(b.calls))
	}
}

func TestPreserver_ExhaustedReturnsOriginal(t *testing.T) {
	b := &fakeBackend{fn: func(string) (string, error) { return "", fmt.Errorf("503") }}
	p := WithRetryAndPreservation(b, nil, nil, noSleep(nil))

	got, err := p.TranslateWithPreservation(context.Background(), "Hello [Root.GetName]", "ko")
	if got != "Hello [Root.GetName]" {
		t.Fatalf("got %q, want original text", got)
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("error = %v", err)
	}
	if len(b.calls) != 3 {
		t.Fatalf("attempts = %d, want 3", len(b.calls))
	}
}

func TestProfile_NormalizeMerge(t *testing.T) {
	p := Profile{}.Normalize()
	if p.BatchSize != 1 || p.MaxConcurrentBatches != 1 {
		t.Fatalf("Normalize() = %+v", p)
	}
	m := ProfileCloud.Merge(Profile{BatchSize: 4})
	if m.BatchSize != 4 || m.MaxConcurrentBatches != 5 {
		t.Fatalf("Merge() = %+v", m)
	}
}
