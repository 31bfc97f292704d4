package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/BolKhata/BolKhata/internal/models"
)

func TestSessionStorePutActiveClear(t *testing.T) {
	s := NewSessionStore(0)
	if s.Active("u1") != nil {
		t.Fatal("expected no active draft initially")
	}

	draft := models.NewDraft("u1", models.KindAttendance, "maid didn't come")
	s.Put(draft)
	if got := s.Active("u1"); got == nil || got.Kind != models.KindAttendance {
		t.Fatalf("expected active attendance draft, got %+v", got)
	}
	if s.Get("u1", models.KindAttendance) == nil {
		t.Error("expected draft retrievable by kind")
	}
	if s.Get("u1", models.KindTransaction) != nil {
		t.Error("expected no transaction draft")
	}

	s.Clear("u1", models.KindAttendance)
	if s.Active("u1") != nil {
		t.Error("expected no active draft after clear")
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d", s.Len())
	}
}

func TestSessionStoreActiveTracksLatestKind(t *testing.T) {
	s := NewSessionStore(0)
	s.Put(models.NewDraft("u1", models.KindAttendance, "maid didn't come"))
	s.Put(models.NewDraft("u1", models.KindReminder, "remind me"))

	if got := s.Active("u1"); got == nil || got.Kind != models.KindReminder {
		t.Fatalf("expected reminder to be active, got %+v", got)
	}
	// Clearing the active kind leaves the parked draft reachable by Get only.
	s.Clear("u1", models.KindReminder)
	if s.Active("u1") != nil {
		t.Error("expected no active draft")
	}
	if s.Get("u1", models.KindAttendance) == nil {
		t.Error("expected parked attendance draft to survive")
	}
}

func TestSessionStorePurgeIdle(t *testing.T) {
	s := NewSessionStore(time.Minute)
	s.Put(models.NewDraft("u1", models.KindTransaction, "paid 200"))
	s.Put(models.NewDraft("u2", models.KindReminder, "remind me"))

	if purged := s.PurgeIdle(time.Now()); purged != 0 {
		t.Errorf("expected nothing purged immediately, got %d", purged)
	}
	if purged := s.PurgeIdle(time.Now().Add(2 * time.Minute)); purged != 2 {
		t.Errorf("expected both drafts purged, got %d", purged)
	}
	if s.Active("u1") != nil || s.Active("u2") != nil {
		t.Error("expected no active drafts after purge")
	}
}

func TestSessionStoreUserLockIsStable(t *testing.T) {
	s := NewSessionStore(0)
	var wg sync.WaitGroup
	locks := make([]*sync.Mutex, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			locks[i] = s.UserLock("same-user")
		}(i)
	}
	wg.Wait()
	for i := 1; i < 10; i++ {
		if locks[i] != locks[0] {
			t.Fatal("expected the same mutex for the same user")
		}
	}
	if s.UserLock("other-user") == locks[0] {
		t.Error("expected a different mutex for a different user")
	}
}
