package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"runboat/internal/scheduler"
)

func TestWorkQueue_AddAndGet(t *testing.T) {
	q := newWorkQueue()

	q.Add(task{ID: "acme-shop-main"})

	if q.Len() != 1 {
		t.Errorf("expected queue length 1, got %d", q.Len())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, ok := q.Get(ctx)
	if !ok {
		t.Fatal("expected to get item from queue")
	}
	if got.ID != "acme-shop-main" {
		t.Errorf("got unexpected task: %+v", got)
	}

	q.Done(got)
}

func TestWorkQueue_Deduplication(t *testing.T) {
	q := newWorkQueue()

	q.Add(task{ID: "b1"})
	q.Add(task{ID: "b1", Decision: scheduler.Decision{Action: scheduler.ActionStop}})

	if q.Len() != 1 {
		t.Errorf("expected queue length 1 after deduplication, got %d", q.Len())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, ok := q.Get(ctx)
	if !ok {
		t.Fatal("expected to get item from queue")
	}
	if got.Decision.Action != scheduler.ActionStop {
		t.Errorf("expected the replacing task, got %+v", got)
	}
	q.Done(got)
}

func TestWorkQueue_DirtyRequeue(t *testing.T) {
	q := newWorkQueue()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q.Add(task{ID: "b1"})
	got, ok := q.Get(ctx)
	if !ok {
		t.Fatal("expected to get item from queue")
	}

	// Added while processing: must not be handed out concurrently.
	q.Add(task{ID: "b1"})
	if q.Len() != 0 {
		t.Errorf("expected id held by a worker to stay out of the queue, got %d", q.Len())
	}

	q.Done(got)
	if q.Len() != 1 {
		t.Errorf("expected dirty id to be requeued after Done, got %d", q.Len())
	}
}

func TestWorkQueue_ShutdownDrains(t *testing.T) {
	q := newWorkQueue()
	q.Add(task{ID: "a"})
	q.Add(task{ID: "b"})
	q.Shutdown()

	// Adds after shutdown are ignored.
	q.Add(task{ID: "c"})

	ctx := context.Background()
	var ids []string
	for {
		got, ok := q.Get(ctx)
		if !ok {
			break
		}
		ids = append(ids, got.ID)
		q.Done(got)
	}

	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("expected [a b], got %v", ids)
	}
}

func TestWorkQueue_GetCancelled(t *testing.T) {
	q := newWorkQueue()
	ctx, cancel := context.WithCancel(context.Background())

	result := make(chan bool)
	go func() {
		_, ok := q.Get(ctx)
		result <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-result:
		if ok {
			t.Error("expected Get to fail after cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("Get did not return after cancellation")
	}
}

func TestWorkQueue_ConcurrentWorkers(t *testing.T) {
	q := newWorkQueue()
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		q.Add(task{ID: id})
	}
	q.Shutdown()

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				got, ok := q.Get(context.Background())
				if !ok {
					return
				}
				mu.Lock()
				seen[got.ID]++
				mu.Unlock()
				q.Done(got)
			}
		}()
	}
	wg.Wait()

	if len(seen) != 6 {
		t.Fatalf("expected 6 distinct ids, got %d", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("id %s processed %d times", id, n)
		}
	}
}
