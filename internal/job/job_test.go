package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/antoniostano/minerva/internal/routing"
)

func TestNewJobIsPending(t *testing.T) {
	j := New("s1", "what is 2+2")
	if j.ID == "" {
		t.Fatalf("job ID should not be empty")
	}
	snap := j.Snapshot()
	if snap.Status != StatusPending {
		t.Fatalf("Status = %q, want %q", snap.Status, StatusPending)
	}
	if snap.TTSReady {
		t.Fatalf("TTSReady = true on a pending job")
	}
	if j.Await(0) {
		t.Fatalf("Await(0) = true on a pending job")
	}
}

func TestLifecycleComplete(t *testing.T) {
	j := New("s1", "question")
	j.MarkProcessing(routing.SubjectMath)

	snap := j.Snapshot()
	if snap.Status != StatusProcessing || snap.Subject != routing.SubjectMath {
		t.Fatalf("after MarkProcessing: %+v", snap)
	}
	if j.Await(0) {
		t.Fatalf("Await(0) = true while processing")
	}

	j.MarkComplete("The answer is 20.", "The answer is 20.")
	snap = j.Snapshot()
	if snap.Status != StatusComplete {
		t.Fatalf("Status = %q, want complete", snap.Status)
	}
	if !snap.TTSReady {
		t.Fatalf("TTSReady = false on a complete job")
	}
	if snap.SafeText != "The answer is 20." {
		t.Fatalf("SafeText = %q", snap.SafeText)
	}
	if snap.CompletedAt.IsZero() {
		t.Fatalf("CompletedAt not set")
	}
}

func TestLifecycleError(t *testing.T) {
	j := New("s1", "question")
	j.MarkError("specialist stream failed")

	snap := j.Snapshot()
	if snap.Status != StatusError {
		t.Fatalf("Status = %q, want error", snap.Status)
	}
	if snap.TTSReady {
		t.Fatalf("TTSReady = true on an errored job")
	}
	if snap.ErrorMessage != "specialist stream failed" {
		t.Fatalf("ErrorMessage = %q", snap.ErrorMessage)
	}
}

func TestTerminalMarksAreIdempotent(t *testing.T) {
	j := New("s1", "q")
	j.MarkComplete("safe", "raw")

	// None of these may mutate state or re-fire the signal.
	j.MarkComplete("other", "other")
	j.MarkError("late error")
	j.MarkProcessing(routing.SubjectHistory)

	snap := j.Snapshot()
	if snap.Status != StatusComplete || snap.SafeText != "safe" {
		t.Fatalf("terminal state mutated: %+v", snap)
	}
	if snap.Subject != "" {
		t.Fatalf("Subject = %q, want unset (MarkProcessing after terminal must no-op)", snap.Subject)
	}
}

func TestAwaitTimeout(t *testing.T) {
	j := New("s1", "q")
	start := time.Now()
	if j.Await(30 * time.Millisecond) {
		t.Fatalf("Await() = true, want timeout on non-terminal job")
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("Await returned before the timeout elapsed")
	}
	if j.Status() != StatusPending {
		t.Fatalf("Await must not observe a state change")
	}
}

func TestConcurrentWaitersObserveSameSnapshot(t *testing.T) {
	j := New("s1", "q")
	j.MarkProcessing(routing.SubjectMath)

	var wg sync.WaitGroup
	results := make([]Snapshot, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if !j.Await(5 * time.Second) {
				t.Errorf("waiter %d timed out", i)
				return
			}
			results[i] = j.Snapshot()
		}(i)
	}

	time.Sleep(10 * time.Millisecond)
	j.MarkComplete("done.", "done.")
	wg.Wait()

	if results[0] != results[1] {
		t.Fatalf("waiters observed different snapshots: %+v vs %+v", results[0], results[1])
	}
	if results[0].Status != StatusComplete {
		t.Fatalf("waiter snapshot status = %q, want complete", results[0].Status)
	}
}

func TestStorePutGetRemove(t *testing.T) {
	s := NewStore(time.Hour)
	j := New("s1", "q")
	s.Put(j)

	got, err := s.Get(j.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != j.ID {
		t.Fatalf("Get() returned wrong job")
	}

	s.Remove(j.ID)
	if _, err := s.Get(j.ID); err != ErrNotFound {
		t.Fatalf("Get() after Remove error = %v, want ErrNotFound", err)
	}
}

func TestReapRemovesOnlyExpiredTerminalJobs(t *testing.T) {
	s := NewStore(time.Hour)
	now := time.Now().UTC()

	expired := New("s1", "old complete")
	expired.MarkComplete("text.", "text.")
	expired.mu.Lock()
	expired.completedAt = now.Add(-2 * time.Hour)
	expired.mu.Unlock()

	fresh := New("s1", "recent complete")
	fresh.MarkComplete("text.", "text.")

	stale := New("s1", "ancient but pending")
	stale.DispatchedAt = now.Add(-48 * time.Hour)

	for _, j := range []*Job{expired, fresh, stale} {
		s.Put(j)
	}

	if n := s.reapExpired(now); n != 1 {
		t.Fatalf("reapExpired() = %d, want 1", n)
	}
	if _, err := s.Get(expired.ID); err != ErrNotFound {
		t.Fatalf("expired terminal job not reclaimed")
	}
	if _, err := s.Get(fresh.ID); err != nil {
		t.Fatalf("fresh terminal job reclaimed early: %v", err)
	}
	if _, err := s.Get(stale.ID); err != nil {
		t.Fatalf("non-terminal job reclaimed by TTL: %v", err)
	}
}

func TestReclaimerStopsOnCancel(t *testing.T) {
	s := NewStore(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	s.StartReclaimer(ctx, 10*time.Millisecond)
	cancel()
	// Nothing to assert beyond not leaking; the sweep goroutine exits on
	// ctx.Done and the ticker is stopped by its deferred Stop.
	time.Sleep(20 * time.Millisecond)
}
