package store

import (
	"sync"
	"testing"
	"time"
)

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if len(store.GetAll()) != 0 {
		t.Errorf("GetAll() = %v items, want 0", len(store.GetAll()))
	}
}

func TestMemoryStore_UpdateOverwrites(t *testing.T) {
	store := NewMemoryStore()

	store.Update(EntitySnapshot{EntityID: "main", Status: "online", Players: 3})
	store.Update(EntitySnapshot{EntityID: "main", Status: "offline"})

	all := store.GetAll()
	if len(all) != 1 {
		t.Fatalf("GetAll() = %v items, want 1", len(all))
	}
	if all[0].Status != "offline" || all[0].Players != 0 {
		t.Errorf("GetAll()[0] = %+v, want latest snapshot", all[0])
	}
}

func TestMemoryStore_GetAllSorted(t *testing.T) {
	store := NewMemoryStore()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		store.Update(EntitySnapshot{EntityID: id})
	}

	all := store.GetAll()
	want := []string{"alpha", "mid", "zeta"}
	for i, id := range want {
		if all[i].EntityID != id {
			t.Fatalf("GetAll() order = %v, want %v", all, want)
		}
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	store := NewMemoryStore()
	ch := store.Subscribe()

	go store.Update(EntitySnapshot{EntityID: "main", Status: "online"})

	select {
	case snap := <-ch:
		if snap.EntityID != "main" {
			t.Errorf("received EntityID = %v, want main", snap.EntityID)
		}
	case <-time.After(time.Second):
		t.Error("Subscribe() channel did not receive update")
	}
}

func TestMemoryStore_Remove(t *testing.T) {
	store := NewMemoryStore()
	store.Update(EntitySnapshot{EntityID: "main", Status: "online"})
	ch := store.Subscribe()

	store.Remove("main")
	store.Remove("never-tracked")

	select {
	case snap := <-ch:
		if !snap.Removed || snap.EntityID != "main" {
			t.Errorf("received %+v, want removed snapshot for main", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("Remove() did not publish")
	}
	select {
	case snap := <-ch:
		t.Errorf("unexpected publish for unknown id: %+v", snap)
	default:
	}
	if len(store.GetAll()) != 0 {
		t.Error("GetAll() should be empty after Remove")
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	store := NewMemoryStore()

	ch := store.Subscribe()
	store.Unsubscribe(ch)
	store.Unsubscribe(ch)

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Unsubscribe() channel should be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Unsubscribe() channel should be closed immediately")
	}
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 2*subscriberBuffer; i++ {
			store.Update(EntitySnapshot{EntityID: "main"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Update() blocked on slow subscriber")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Update(EntitySnapshot{EntityID: "main", Players: j})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = store.GetAll()
			}
		}()
		go func() {
			defer wg.Done()
			ch := store.Subscribe()
			time.Sleep(10 * time.Millisecond)
			store.Unsubscribe(ch)
		}()
	}
	wg.Wait()
}
