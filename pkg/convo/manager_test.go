package convo

import (
	"sync"
	"testing"
	"time"

	"github.com/hanifadr/callward/pkg/errorsx"
)

func TestCreateRejectsDuplicateCallID(t *testing.T) {
	m := NewManager(nil)
	seed := Seed{CallID: "call-1", UserID: "user-1", CallerPhone: "+8613800000000"}
	if _, err := m.Create(seed); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := m.Create(seed)
	if !errorsx.HasReason(err, errorsx.ReasonContextExists) {
		t.Fatalf("expected context_exists, got %v", err)
	}
}

func TestGetUnknownCall(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Get("missing")
	if !errorsx.HasReason(err, errorsx.ReasonContextNotFound) {
		t.Fatalf("expected context_not_found, got %v", err)
	}
}

func TestConcurrentUpdatesSerialized(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.Create(Seed{CallID: "call-1", UserID: "u"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 16
	const perWorker = 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := m.Update("call-1", func(c *Context) error {
					c.State.TurnCount++
					c.History = append(c.History, Turn{Speaker: SpeakerCaller, Text: "hi", Timestamp: time.Now()})
					return nil
				})
				if err != nil {
					t.Errorf("update: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, err := m.Get("call-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State.TurnCount != workers*perWorker {
		t.Fatalf("turn count = %d, want %d", got.State.TurnCount, workers*perWorker)
	}
	if len(got.History) != got.State.TurnCount {
		t.Fatalf("history len %d != turn count %d", len(got.History), got.State.TurnCount)
	}
}

func TestUpdateRefreshesLastActivity(t *testing.T) {
	m := NewManager(nil)
	created, _ := m.Create(Seed{CallID: "call-1"})
	m.now = func() time.Time { return created.LastActivity.Add(2 * time.Second) }
	updated, err := m.Update("call-1", func(c *Context) error { return nil })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.LastActivity.After(created.LastActivity) {
		t.Fatalf("last activity not refreshed")
	}
}

func TestHistoryPaging(t *testing.T) {
	m := NewManager(nil)
	_, _ = m.Create(Seed{CallID: "call-1"})
	_, _ = m.Update("call-1", func(c *Context) error {
		for i := 0; i < 5; i++ {
			c.History = append(c.History, Turn{Speaker: SpeakerCaller, Text: "t", Timestamp: time.Now()})
		}
		return nil
	})

	page, total, err := m.History("call-1", 2, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("total=%d len=%d, want 5 and 2", total, len(page))
	}
	page, _, _ = m.History("call-1", 3, 2)
	if len(page) != 1 {
		t.Fatalf("last page len = %d, want 1", len(page))
	}
	page, _, _ = m.History("call-1", 9, 2)
	if len(page) != 0 {
		t.Fatalf("out-of-range page should be empty")
	}
}

func TestArchiveRequiresTerminalStage(t *testing.T) {
	m := NewManager(nil)
	_, _ = m.Create(Seed{CallID: "call-1"})
	if _, err := m.Archive("call-1"); err == nil {
		t.Fatalf("archived a live call")
	}
	_, _ = m.Update("call-1", func(c *Context) error {
		c.State.Stage = StageCallEnd
		return nil
	})
	if _, err := m.Archive("call-1"); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if m.Active() != 0 {
		t.Fatalf("archived call still live")
	}
}

type captureStageListener struct {
	mu     sync.Mutex
	events []StageChange
}

func (c *captureStageListener) OnStageChange(ev StageChange) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func TestStageListenerNotified(t *testing.T) {
	m := NewManager(nil)
	cap := &captureStageListener{}
	m.AddStageListener(cap)
	_, _ = m.Create(Seed{CallID: "call-1"})
	_, _ = m.Update("call-1", func(c *Context) error {
		return ApplyStage(&c.State, StageIdentification)
	})
	cap.mu.Lock()
	defer cap.mu.Unlock()
	if len(cap.events) != 1 {
		t.Fatalf("expected 1 stage event, got %d", len(cap.events))
	}
	if cap.events[0].ToStage != StageIdentification {
		t.Fatalf("unexpected stage event: %+v", cap.events[0])
	}
}
