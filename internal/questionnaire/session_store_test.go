package questionnaire

import (
	"runtime"
	"sync"
	"testing"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := newKeyedMutex()
	var n int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := k.acquire("s1")
			n++
			release()
		}()
	}
	wg.Wait()
	if n != 50 {
		t.Errorf("lost updates under the keyed lock: %d of 50", n)
	}
}

func TestKeyedMutex_EvictsIdleEntries(t *testing.T) {
	k := newKeyedMutex()

	releaseA := k.acquire("a")
	releaseB := k.acquire("b")
	if got := entryCount(k); got != 2 {
		t.Fatalf("expected 2 held entries, got %d", got)
	}

	releaseA()
	if got := entryCount(k); got != 1 {
		t.Errorf("released entry not evicted, %d entries remain", got)
	}
	releaseB()
	if got := entryCount(k); got != 0 {
		t.Errorf("expected empty lock map, %d entries remain", got)
	}

	// Reacquiring after eviction works.
	release := k.acquire("a")
	release()
	if got := entryCount(k); got != 0 {
		t.Errorf("expected empty lock map after reacquire, got %d", got)
	}
}

func TestKeyedMutex_WaiterKeepsEntryAlive(t *testing.T) {
	k := newKeyedMutex()

	release := k.acquire("s1")
	acquired := make(chan func())
	go func() {
		acquired <- k.acquire("s1")
	}()

	// Wait for the second acquire to register as a waiter.
	for entryRefs(k, "s1") < 2 {
		runtime.Gosched()
	}
	release()

	releaseWaiter := <-acquired
	if got := entryCount(k); got != 1 {
		t.Errorf("waiter's entry evicted while held, got %d entries", got)
	}
	releaseWaiter()
	if got := entryCount(k); got != 0 {
		t.Errorf("expected empty lock map, %d entries remain", got)
	}
}

func entryCount(k *keyedMutex) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func entryRefs(k *keyedMutex, key string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		return 0
	}
	return l.refs
}
