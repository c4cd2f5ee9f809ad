package state

import (
	"sync"
	"testing"
	"time"

	"github.com/starnet/starwatch/internal/model"
)

func routerRecord(cpu string) model.Record {
	return model.Record{Endpoint: model.RouterHealth, Router: &model.RouterHealthRecord{CPUDisplay: cpu}}
}

func TestStore_ZeroValueStartsLoading(t *testing.T) {
	var s Store

	snap := s.Snapshot()
	if snap.Version != 0 {
		t.Fatalf("Version = %d, want 0", snap.Version)
	}
	for _, ep := range model.Endpoints() {
		if !snap.Status(ep).Loading {
			t.Fatalf("%s not loading in fresh store", ep)
		}
	}
	if !snap.Loading() {
		t.Fatal("Loading() = false, want true")
	}
}

func TestStore_SeedDoesNotAdvanceVersion(t *testing.T) {
	s := NewStore()
	calls := 0
	s.Subscribe(func(Snapshot) { calls++ })

	stamp := time.Date(2025, time.August, 8, 9, 0, 0, 0, time.UTC)
	s.Seed(map[model.Endpoint]model.Record{model.RouterHealth: routerRecord("5%")}, &stamp)

	snap := s.Snapshot()
	if snap.Version != 0 || calls != 0 {
		t.Fatalf("seed advanced version=%d calls=%d", snap.Version, calls)
	}
	if snap.Router == nil || snap.Router.CPUDisplay != "5%" {
		t.Fatalf("router = %#v, want seeded record", snap.Router)
	}
	if snap.Status(model.RouterHealth).Loading {
		t.Fatal("seeded endpoint still loading")
	}
	if !snap.Status(model.Payments).Loading {
		t.Fatal("unseeded endpoint should keep loading")
	}
	if snap.LastUpdatedAt == nil || !snap.LastUpdatedAt.Equal(stamp) {
		t.Fatalf("LastUpdatedAt = %v, want %v", snap.LastUpdatedAt, stamp)
	}
}

func TestStore_ApplyResetsFailuresAndNotifies(t *testing.T) {
	s := NewStore()

	var got []uint64
	unsubscribe := s.Subscribe(func(snap Snapshot) { got = append(got, snap.Version) })

	if n := s.RecordFailure(model.RouterHealth, "HTTP 500"); n != 1 {
		t.Fatalf("RecordFailure = %d, want 1", n)
	}
	if n := s.RecordFailure(model.RouterHealth, "HTTP 502"); n != 2 {
		t.Fatalf("RecordFailure = %d, want 2", n)
	}
	snap := s.Snapshot()
	if !snap.Status(model.RouterHealth).IsOffline() {
		t.Fatal("IsOffline() = false after two failures")
	}
	failed := snap.Failed()
	if len(failed) != 1 || failed[0].Endpoint != model.RouterHealth || failed[0].Message != "HTTP 502" {
		t.Fatalf("Failed() = %#v", failed)
	}
	if len(got) != 0 {
		t.Fatalf("failures notified listeners: %v", got)
	}

	at := time.Now()
	if v := s.Apply(routerRecord("9%"), at); v != 1 {
		t.Fatalf("Apply version = %d, want 1", v)
	}
	snap = s.Snapshot()
	st := snap.Status(model.RouterHealth)
	if st.Failed() || st.ConsecutiveFailures != 0 {
		t.Fatalf("status after success = %#v", st)
	}
	if len(snap.Failed()) != 0 {
		t.Fatalf("Failed() = %#v, want empty", snap.Failed())
	}

	s.Apply(model.Record{Endpoint: model.Payments, Payments: &model.PaymentAggregate{TotalAllTime: 3}}, at)
	unsubscribe()
	unsubscribe()
	s.Apply(routerRecord("1%"), at)

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("notified versions = %v, want [1 2]", got)
	}
	if s.Snapshot().Version != 3 {
		t.Fatalf("Version = %d, want 3", s.Snapshot().Version)
	}
}

func TestStore_ApplyIgnoresEmptyRecord(t *testing.T) {
	s := NewStore()
	if v := s.Apply(model.Record{Endpoint: model.Payments}, time.Now()); v != 0 {
		t.Fatalf("Apply version = %d, want 0", v)
	}
}

func TestStore_SnapshotClonesStatuses(t *testing.T) {
	s := NewStore()
	snap := s.Snapshot()
	snap.Endpoints[model.Payments] = EndpointStatus{LastError: "mutated"}

	if s.Snapshot().Status(model.Payments).Failed() {
		t.Fatal("Snapshot should clone the endpoint map")
	}
}

func TestStore_ResetReturnsToLoading(t *testing.T) {
	s := NewStore()
	s.Apply(routerRecord("9%"), time.Now())
	s.RecordFailure(model.Payments, "boom")

	var last Snapshot
	s.Subscribe(func(snap Snapshot) { last = snap })
	v := s.Reset()

	if v != 2 || last.Version != 2 {
		t.Fatalf("Reset version = %d, notified %d, want 2", v, last.Version)
	}
	snap := s.Snapshot()
	if snap.Router != nil || snap.LastUpdatedAt != nil {
		t.Fatalf("Reset kept data: %#v", snap)
	}
	for _, ep := range model.Endpoints() {
		st := snap.Status(ep)
		if !st.Loading || st.Failed() || st.ConsecutiveFailures != 0 {
			t.Fatalf("%s status after reset = %#v", ep, st)
		}
	}
}

func TestStore_ConcurrentApplyNotifiesInOrder(t *testing.T) {
	s := NewStore()

	var mu sync.Mutex
	var versions []uint64
	s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		versions = append(versions, snap.Version)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Apply(routerRecord("1%"), time.Now())
			_ = s.Snapshot()
		}()
	}
	wg.Wait()

	if len(versions) != 50 {
		t.Fatalf("notified %d times, want 50", len(versions))
	}
	for i, v := range versions {
		if v != uint64(i+1) {
			t.Fatalf("versions out of order at %d: %v", i, versions)
		}
	}
}
