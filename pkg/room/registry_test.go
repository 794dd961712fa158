package room

import (
	"fmt"
	"sync"
	"testing"

	"github.com/codesync-dev/codesync/pkg/crdt"
)

func TestResolveCreatesOnce(t *testing.T) {
	created := 0
	factory := func(string) crdt.Engine {
		created++
		return crdt.NewDoc()
	}
	reg := NewRegistry(factory, nil, nil)

	a := reg.Resolve("doc")
	b := reg.Resolve("doc")
	if a != b {
		t.Error("Resolve returned different rooms for the same id")
	}
	if created != 1 {
		t.Errorf("engine factory ran %d times, want 1", created)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestResolveDistinctIDs(t *testing.T) {
	reg := NewRegistry(nil, nil, nil)
	a := reg.Resolve("a")
	b := reg.Resolve("b")
	if a == b {
		t.Error("distinct ids resolved to the same room")
	}
	if a.ID() != "a" || b.ID() != "b" {
		t.Errorf("room ids = %q, %q", a.ID(), b.ID())
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}
}

func TestGetDoesNotCreate(t *testing.T) {
	reg := NewRegistry(nil, nil, nil)
	if _, ok := reg.Get("missing"); ok {
		t.Error("Get reported a room that was never resolved")
	}
	if reg.Len() != 0 {
		t.Errorf("Get created a room: Len() = %d", reg.Len())
	}

	want := reg.Resolve("doc")
	got, ok := reg.Get("doc")
	if !ok || got != want {
		t.Error("Get did not return the resolved room")
	}
}

func TestResolveConcurrent(t *testing.T) {
	reg := NewRegistry(nil, nil, nil)

	const goroutines = 32
	rooms := make([]*Room, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			rooms[i] = reg.Resolve("contended")
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if rooms[i] != rooms[0] {
			t.Fatal("concurrent Resolve produced distinct rooms")
		}
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestResolveConcurrentManyIDs(t *testing.T) {
	reg := NewRegistry(nil, nil, nil)

	const ids = 8
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < ids; j++ {
				reg.Resolve(fmt.Sprintf("room-%d", j))
			}
		}()
	}
	wg.Wait()

	if reg.Len() != ids {
		t.Errorf("Len() = %d, want %d", reg.Len(), ids)
	}
}
