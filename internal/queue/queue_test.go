// Queue tests are integration tests against a running Valkey instance and
// are skipped when it is unreachable. The rebuilder side is faked so no
// PostgreSQL is needed here.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"taxo/internal/store"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testValkeyClient returns a Redis client on DB 15, skipping when Valkey is
// unavailable. All rebuild keys are removed when the test finishes.
func testValkeyClient(t *testing.T) *redis.Client {
	t.Helper()

	host := envOr("VALKEY_HOST", "localhost")
	port := envOr("VALKEY_PORT", "6379")
	password := os.Getenv("VALKEY_PASSWORD")

	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Password: password,
		DB:       15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("skipping integration test: Valkey not reachable: %v", err)
	}

	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, "rebuild:*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	})

	return client
}

// fakeRebuilder records rebuild calls and can fail a configured number of
// times before succeeding. Safe for use from the worker goroutine.
type fakeRebuilder struct {
	mu        sync.Mutex
	calls     []int64
	failTimes int
	err       error
}

func (f *fakeRebuilder) Rebuild(categoryID int64, newParentID *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, categoryID)
	if f.failTimes > 0 {
		f.failTimes--
		return f.err
	}
	return nil
}

func (f *fakeRebuilder) recorded() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

func TestEnqueueRebuildSequences(t *testing.T) {
	client := testValkeyClient(t)
	q := New(client)
	ctx := context.Background()

	parent := int64(9)
	if err := q.EnqueueRebuild(ctx, 42, &parent); err != nil {
		t.Fatalf("EnqueueRebuild: %v", err)
	}
	if err := q.EnqueueRebuild(ctx, 42, nil); err != nil {
		t.Fatalf("EnqueueRebuild: %v", err)
	}

	n, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if n != 2 {
		t.Errorf("pending tasks: got %d, want 2", n)
	}

	// Tasks pop oldest-first and carry increasing sequences.
	raw, err := client.RPop(ctx, tasksKey).Result()
	if err != nil {
		t.Fatalf("RPop: %v", err)
	}
	var first Task
	if err := json.Unmarshal([]byte(raw), &first); err != nil {
		t.Fatalf("unmarshal first task: %v", err)
	}
	if first.Seq != 1 {
		t.Errorf("first seq: got %d, want 1", first.Seq)
	}
	if first.NewParentID == nil || *first.NewParentID != parent {
		t.Errorf("first new parent: got %v, want %d", first.NewParentID, parent)
	}
	if first.ID == "" {
		t.Error("task id should be set")
	}

	raw, err = client.RPop(ctx, tasksKey).Result()
	if err != nil {
		t.Fatalf("RPop: %v", err)
	}
	var second Task
	if err := json.Unmarshal([]byte(raw), &second); err != nil {
		t.Fatalf("unmarshal second task: %v", err)
	}
	if second.Seq != 2 {
		t.Errorf("second seq: got %d, want 2", second.Seq)
	}
	if second.NewParentID != nil {
		t.Errorf("second new parent: got %v, want nil", second.NewParentID)
	}
}

func TestWorkerAppliesTask(t *testing.T) {
	client := testValkeyClient(t)
	q := New(client)
	ctx := context.Background()

	rb := &fakeRebuilder{}
	w := NewWorker(q, rb, nil)

	task := Task{ID: "t1", CategoryID: 7, Seq: 1}
	raw, _ := json.Marshal(task)
	w.process(ctx, raw)

	if calls := rb.recorded(); len(calls) != 1 || calls[0] != 7 {
		t.Fatalf("rebuild calls: got %v, want [7]", calls)
	}

	applied, err := q.appliedSeq(ctx, 7)
	if err != nil {
		t.Fatalf("appliedSeq: %v", err)
	}
	if applied != 1 {
		t.Errorf("applied seq: got %d, want 1", applied)
	}
}

func TestWorkerDropsStaleTask(t *testing.T) {
	client := testValkeyClient(t)
	q := New(client)
	ctx := context.Background()

	if err := q.markApplied(ctx, 7, 5); err != nil {
		t.Fatalf("markApplied: %v", err)
	}

	rb := &fakeRebuilder{}
	w := NewWorker(q, rb, nil)

	// Seq 3 was superseded by the already-applied seq 5.
	task := Task{ID: "t-stale", CategoryID: 7, Seq: 3}
	raw, _ := json.Marshal(task)
	w.process(ctx, raw)

	if calls := rb.recorded(); len(calls) != 0 {
		t.Errorf("stale task must not trigger a rebuild, got calls %v", calls)
	}

	applied, _ := q.appliedSeq(ctx, 7)
	if applied != 5 {
		t.Errorf("applied seq must stay 5, got %d", applied)
	}
}

func TestWorkerRetriesTransientFailure(t *testing.T) {
	client := testValkeyClient(t)
	q := New(client)
	ctx := context.Background()

	rb := &fakeRebuilder{failTimes: 2, err: errors.New("connection reset")}
	w := NewWorker(q, rb, nil)

	task := Task{ID: "t-retry", CategoryID: 8, Seq: 1}
	raw, _ := json.Marshal(task)
	w.process(ctx, raw)

	if calls := rb.recorded(); len(calls) != 3 {
		t.Errorf("expected 2 failures and 1 success (3 calls), got %d", len(calls))
	}

	applied, _ := q.appliedSeq(ctx, 8)
	if applied != 1 {
		t.Errorf("applied seq after retries: got %d, want 1", applied)
	}
}

func TestWorkerDropsMissingTarget(t *testing.T) {
	client := testValkeyClient(t)
	q := New(client)
	ctx := context.Background()

	rb := &fakeRebuilder{failTimes: 10, err: store.ErrRebuildTargetMissing}
	w := NewWorker(q, rb, nil)

	task := Task{ID: "t-gone", CategoryID: 9, Seq: 1}
	raw, _ := json.Marshal(task)
	w.process(ctx, raw)

	// Permanent failure: one attempt, no retries, nothing applied.
	if calls := rb.recorded(); len(calls) != 1 {
		t.Errorf("missing target must not be retried, got %d calls", len(calls))
	}
	applied, _ := q.appliedSeq(ctx, 9)
	if applied != 0 {
		t.Errorf("applied seq: got %d, want 0", applied)
	}
}

func TestWorkerRunConsumesQueue(t *testing.T) {
	client := testValkeyClient(t)
	q := New(client)

	rb := &fakeRebuilder{}
	w := NewWorker(q, rb, nil)
	w.popTimeout = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	if err := q.EnqueueRebuild(ctx, 11, nil); err != nil {
		t.Fatalf("EnqueueRebuild: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for len(rb.recorded()) == 0 {
		select {
		case <-deadline:
			t.Fatal("worker did not consume the task in time")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}

	if calls := rb.recorded(); calls[0] != 11 {
		t.Errorf("rebuild call: got %d, want 11", calls[0])
	}
}
