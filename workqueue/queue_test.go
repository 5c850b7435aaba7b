package workqueue

import (
	"sync/atomic"
	"testing"
)

func TestNewRejectsZeroWorkers(t *testing.T) {
	_, err := New(0, func(_ *WorkerState[int, struct{}], item int) int { return item }, func(a, b int) int { return a + b }, nil)
	if err == nil {
		t.Fatalf("expected an error for numWorkers < 1")
	}
}

func TestSubmitExactlyOnce(t *testing.T) {
	var calls int64
	mapper := func(_ *WorkerState[int, struct{}], item int) int {
		atomic.AddInt64(&calls, 1)
		return item
	}
	q, err := New(4, mapper, func(a, b int) int { return a + b }, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for i := 0; i < 100; i++ {
		q.AddItem(i)
	}
	sum := q.RunAll(0)

	if calls != 100 {
		t.Errorf("expected exactly 100 mapper invocations, got %d", calls)
	}
	want := 100 * 99 / 2
	if sum != want {
		t.Errorf("RunAll() = %d, want %d", sum, want)
	}
}

// TestAssociativeReducerOrderIndependence is spec scenario: a purely
// associative/commutative reducer (sum) must produce the same result
// regardless of worker count or scheduling order.
func TestAssociativeReducerOrderIndependence(t *testing.T) {
	const n = 500
	for _, workers := range []int{1, 2, 8, 16} {
		mapper := func(_ *WorkerState[int, struct{}], item int) int { return item * item }
		q, err := New(workers, mapper, func(a, b int) int { return a + b }, nil)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		for i := 1; i <= n; i++ {
			q.AddItem(i)
		}
		got := q.RunAll(0)

		want := 0
		for i := 1; i <= n; i++ {
			want += i * i
		}
		if got != want {
			t.Errorf("workers=%d: RunAll() = %d, want %d", workers, got, want)
		}
	}
}

func TestPushTaskFromWithinMapperIsLive(t *testing.T) {
	mapper := func(ws *WorkerState[int, struct{}], item int) int {
		if item > 0 {
			ws.PushTask(item - 1)
		}
		return 1
	}
	q, err := New(2, mapper, func(a, b int) int { return a + b }, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	q.AddItem(5)
	total := q.RunAll(0)

	if total != 6 {
		t.Errorf("expected 6 tasks processed (5,4,3,2,1,0), got %d", total)
	}
}

// TestStealingDrainsAllWorkFromOneQueue loads every task directly onto
// worker 0's queue, simulating a maximally skewed initial distribution, and
// checks that the other 7 workers steal enough of it that every task still
// runs exactly once.
func TestStealingDrainsAllWorkFromOneQueue(t *testing.T) {
	const numWorkers = 8
	const numTasks = 100
	var calls int64
	mapper := func(_ *WorkerState[int, struct{}], item int) int {
		atomic.AddInt64(&calls, 1)
		return item
	}
	q, err := New(numWorkers, mapper, func(a, b int) int { return a + b }, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Load every task directly onto worker 0's queue, bypassing the
	// round-robin AddItem, to simulate a maximally skewed initial
	// distribution that only work stealing can balance.
	for i := 0; i < numTasks; i++ {
		q.workers[0].queue = append(q.workers[0].queue, i)
	}

	sum := q.RunAll(0)
	if calls != numTasks {
		t.Errorf("expected every task to be processed exactly once via stealing, got %d calls", calls)
	}
	want := numTasks * (numTasks - 1) / 2
	if sum != want {
		t.Errorf("RunAll() = %d, want %d", sum, want)
	}
}

func TestDataInitRunsOncePerWorker(t *testing.T) {
	const numWorkers = 4
	var inits int64
	dataInit := func(i int) int {
		atomic.AddInt64(&inits, 1)
		return i
	}
	mapper := func(ws *WorkerState[int, int], item int) int { return ws.Data() }
	q, err := New(numWorkers, mapper, func(a, b int) int { return a + b }, dataInit)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if inits != numWorkers {
		t.Errorf("expected dataInit to run once per worker at construction, got %d calls", inits)
	}
	for i := 0; i < 20; i++ {
		q.AddItem(i)
	}
	q.RunAll(0)
}

func TestAddItemPanicsWhileRunning(t *testing.T) {
	q, err := New(1, func(_ *WorkerState[int, struct{}], item int) int { return item }, func(a, b int) int { return a + b }, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	q.running.Store(true)
	defer q.running.Store(false)

	defer func() {
		if recover() == nil {
			t.Errorf("expected AddItem to panic while RunAll is in progress")
		}
	}()
	q.AddItem(1)
}
