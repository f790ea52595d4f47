package tpool_test

import (
	"sync"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/phoreproject/xchain/clock"
	"github.com/phoreproject/xchain/tpool"
)

func TestPoolMembership(t *testing.T) {
	p := tpool.New[string, int](clock.NewManual(time.Unix(0, 0)))

	if p.Exist("a") {
		t.Fatal("expected empty pool not to contain a")
	}

	p.Add("a", 1)
	if !p.Exist("a") {
		t.Fatal("expected pool to contain a after adding it")
	}

	p.Add("a", 2)
	if p.Len() != 1 {
		t.Fatalf("expected re-adding an id to replace it, got %d entries", p.Len())
	}

	tx, found := p.Get("a")
	if !found || tx != 2 {
		t.Fatalf("expected last write to win, got %d", tx)
	}
}

func TestPoolExpiry(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	p := tpool.New[int, string](c)

	// entries added at t=0s, 1s, 2s, 3s, 4s
	for i := 0; i < 5; i++ {
		p.Add(i, "tx")
		c.Advance(time.Second)
	}

	// now t=5s, ages are 5s, 4s, 3s, 2s, 1s; 3s is not strictly older than 3s
	removed := p.GC(3 * time.Second)
	if removed != 2 {
		t.Fatalf("expected 2 transactions to be removed, got %d", removed)
	}

	for i := 0; i < 2; i++ {
		if p.Exist(i) {
			t.Fatalf("expected transaction %d to be expired", i)
		}
	}
	for i := 2; i < 5; i++ {
		if !p.Exist(i) {
			t.Fatalf("expected transaction %d to remain", i)
		}
	}

	if removed := p.GC(time.Hour); removed != 0 {
		t.Fatalf("expected nothing to expire, got %d", removed)
	}
}

func TestPoolReAddResetsArrival(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	p := tpool.New[int, string](c)

	p.Add(1, "old")
	c.Advance(10 * time.Second)
	p.Add(1, "new")
	c.Advance(time.Second)

	if removed := p.GC(5 * time.Second); removed != 0 {
		t.Fatal("expected re-added transaction to get a fresh arrival time")
	}
}

func TestPoolSnapshotAndRemove(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	p := tpool.New[string, int](c)

	p.Add("c", 3)
	c.Advance(time.Second)
	p.Add("a", 1)
	p.Add("b", 2)

	expected := []tpool.Entry[string, int]{
		{ID: "c", Received: time.Unix(0, 0), Transaction: 3},
		{ID: "a", Received: time.Unix(1, 0), Transaction: 1},
		{ID: "b", Received: time.Unix(1, 0), Transaction: 2},
	}
	if diff := deep.Equal(p.Snapshot(), expected); diff != nil {
		t.Fatal(diff)
	}

	if removed := p.Remove("a", "missing"); removed != 1 {
		t.Fatalf("expected 1 transaction to be removed, got %d", removed)
	}
	if p.Exist("a") || p.Len() != 2 {
		t.Fatal("expected a to be removed")
	}
}

func TestPoolConcurrentAccess(t *testing.T) {
	p := tpool.New[int, int](clock.System)

	wg := new(sync.WaitGroup)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				p.Add(w*100+i, i)
				p.Exist(i)
				p.Len()
			}
		}(w)
	}
	wg.Wait()

	if p.Len() != 400 {
		t.Fatalf("expected 400 transactions, got %d", p.Len())
	}
}
