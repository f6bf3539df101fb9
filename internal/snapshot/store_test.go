package snapshot

import (
	"errors"
	"sync"
	"testing"
	"time"

	"cryptowatch/internal/fetcher"
)

func TestStore_CurrentBeforePublish(t *testing.T) {
	store := NewStore(Initial[int]("inst", []fetcher.Item{itemA}))

	cur := store.Current()
	if cur == nil {
		t.Fatal("Current() returned nil")
	}
	if cur.Cycle != 0 || len(cur.Records) != 1 {
		t.Errorf("Current() = %+v, want cycle 0 with one record", cur)
	}

	if NewStore[int](nil).Current() == nil {
		t.Error("NewStore(nil).Current() returned nil")
	}
}

func TestStore_PublishRejectsOlder(t *testing.T) {
	s0 := Initial[int]("", []fetcher.Item{itemA})
	store := NewStore(s0)

	s1 := Merge(s0, []fetcher.Result[int]{ok(itemA, 1)}, cycle(time.Millisecond))
	if err := store.Publish(s1); err != nil {
		t.Fatalf("Publish(s1) error = %v", err)
	}

	if err := store.Publish(s1); !errors.Is(err, ErrStaleSnapshot) {
		t.Errorf("Publish(same) error = %v, want ErrStaleSnapshot", err)
	}
	if err := store.Publish(s0); !errors.Is(err, ErrStaleSnapshot) {
		t.Errorf("Publish(older) error = %v, want ErrStaleSnapshot", err)
	}
	if err := store.Publish(nil); err == nil {
		t.Error("Publish(nil) expected error")
	}
	if store.Current() != s1 {
		t.Error("rejected publish replaced the current snapshot")
	}
}

// Every record of snapshot n carries value n, so a torn read would show
// mixed values. Readers must also never go backwards.
func TestStore_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	items := []fetcher.Item{itemA, itemB, itemC}
	store := NewStore(Initial[int]("", items))

	const cycles = 2000
	var wg sync.WaitGroup
	done := make(chan struct{})
	errs := make(chan string, 8)

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for {
				select {
				case <-done:
					return
				default:
				}
				s := store.Current()
				if s.Cycle < last {
					errs <- "reader observed an older snapshot after a newer one"
					return
				}
				last = s.Cycle
				for _, rec := range s.Records {
					if rec.HasValue && uint64(rec.Value) != s.Cycle {
						errs <- "reader observed a torn snapshot"
						return
					}
				}
			}
		}()
	}

	prev := store.Current()
	for i := 1; i <= cycles; i++ {
		results := make([]fetcher.Result[int], len(items))
		for j, item := range items {
			results[j] = ok(item, i)
		}
		next := Merge(prev, results, cycle(time.Microsecond))
		if err := store.Publish(next); err != nil {
			t.Fatalf("Publish(%d) error = %v", i, err)
		}
		prev = next
	}
	close(done)
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
	if store.Current().Cycle != cycles {
		t.Errorf("final cycle = %d, want %d", store.Current().Cycle, cycles)
	}
}
