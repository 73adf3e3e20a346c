package task

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCreateAndGet(t *testing.T) {
	s := NewStore()
	id := s.Create()
	if id == "" {
		t.Fatal("Create() returned empty id")
	}
	got, ok := s.Get(id)
	if !ok {
		t.Fatal("Get() did not find created task")
	}
	if got.Status != StatusPending || got.EntriesTranslated != 0 || got.Percent != 0 {
		t.Fatalf("new task = %+v", got)
	}
	if id2 := s.Create(); id2 == id {
		t.Fatal("Create() reused an id")
	}
}

func TestGetUnknown(t *testing.T) {
	if _, ok := NewStore().Get("missing"); ok {
		t.Fatal("Get() found unknown id")
	}
}

func TestUpdateUnknownIsNoop(t *testing.T) {
	s := NewStore()
	ran := false
	if s.Update("missing", func(*Task) { ran = true }) || ran {
		t.Fatal("Update() ran for unknown id")
	}
}

func TestUpdateReturnsCopies(t *testing.T) {
	s := NewStore()
	id := s.Create()
	got, _ := s.Get(id)
	got.Status = StatusError

	again, _ := s.Get(id)
	if again.Status != StatusPending {
		t.Fatalf("mutating a copy changed the store: %+v", again)
	}
}

func TestTerminalTasksFrozen(t *testing.T) {
	s := NewStore()
	id := s.Create()
	s.Update(id, func(t *Task) {
		t.Status = StatusCompleted
		t.Percent = 100
	})
	if s.Update(id, func(t *Task) { t.Percent = 5 }) {
		t.Fatal("Update() accepted a change to a completed task")
	}
	got, _ := s.Get(id)
	if got.Percent != 100 {
		t.Fatalf("Percent = %v, want 100", got.Percent)
	}
}

func TestConcurrentEntryProcessed(t *testing.T) {
	s := NewStore()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	id := s.Create()
	s.Update(id, func(t *Task) {
		t.Status = StatusRunning
		t.StartTime = start
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(id, func(t *Task) { t.EntryProcessed(start.Add(10 * time.Second)) })
		}()
	}
	wg.Wait()

	got, _ := s.Get(id)
	if got.EntriesTranslated != 100 || got.CurrentEntry != 100 {
		t.Fatalf("counters = %d/%d, want 100", got.EntriesTranslated, got.CurrentEntry)
	}
	if got.AvgSpeed != 10 {
		t.Fatalf("AvgSpeed = %v, want 10", got.AvgSpeed)
	}
}

func TestListOrder(t *testing.T) {
	s := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	first := s.Create()
	second := s.Create()

	list := s.List()
	if len(list) != 2 || list[0].ID != first || list[1].ID != second {
		t.Fatalf("List() = %+v", list)
	}
}

func TestTaskJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(Task{ID: "x", Status: StatusRunning, EntriesTranslated: 3, AvgSpeed: 1.5})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, field := range []string{`"entries_translated":3`, `"avg_speed":1.5`, `"status":"running"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("JSON %s missing %s", data, field)
		}
	}
}
