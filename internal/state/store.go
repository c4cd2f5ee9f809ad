package state

import (
	"sort"
	"sync"
	"time"

	"github.com/starnet/starwatch/internal/model"
)

// EndpointStatus is the visible part of one endpoint's sync state.
type EndpointStatus struct {
	Loading             bool   `json:"loading"`
	LastError           string `json:"lastError,omitempty"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
}

// Failed reports whether the endpoint's latest attempt failed.
func (s EndpointStatus) Failed() bool {
	return s.LastError != ""
}

// IsOffline returns true when the endpoint has failed for multiple polls.
func (s EndpointStatus) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// FailedEndpoint pairs a failing endpoint with its message.
type FailedEndpoint struct {
	Endpoint model.Endpoint `json:"endpoint"`
	Message  string         `json:"message"`
}

// Snapshot represents the latest data available to consumers. Records are
// shared between snapshots and must be treated as read-only.
type Snapshot struct {
	Payments      *model.PaymentAggregate           `json:"payments"`
	Usage         *model.UsageSummary               `json:"usage"`
	Interface     *model.InterfaceSnapshot          `json:"interface"`
	Router        *model.RouterHealthRecord         `json:"router"`
	LastUpdatedAt *time.Time                        `json:"lastUpdatedAt,omitempty"`
	Version       uint64                            `json:"version"`
	Endpoints     map[model.Endpoint]EndpointStatus `json:"endpoints"`
}

// Status returns the status of ep.
func (s Snapshot) Status(ep model.Endpoint) EndpointStatus {
	return s.Endpoints[ep]
}

// Failed lists endpoints whose last attempt failed, in initial-load order.
func (s Snapshot) Failed() []FailedEndpoint {
	var out []FailedEndpoint
	for _, ep := range model.Endpoints() {
		if st := s.Endpoints[ep]; st.Failed() {
			out = append(out, FailedEndpoint{Endpoint: ep, Message: st.LastError})
		}
	}
	return out
}

// Loading reports whether any endpoint is still waiting for its first data.
func (s Snapshot) Loading() bool {
	for _, st := range s.Endpoints {
		if st.Loading {
			return true
		}
	}
	return false
}

// Has reports whether a record for ep is present.
func (s Snapshot) Has(ep model.Endpoint) bool {
	switch ep {
	case model.Payments:
		return s.Payments != nil
	case model.UserUsage:
		return s.Usage != nil
	case model.InterfaceStats:
		return s.Interface != nil
	case model.RouterHealth:
		return s.Router != nil
	}
	return false
}

// Listener receives the snapshot after every version change. Listeners run
// synchronously and in version order; they must not block or call back into
// the store.
type Listener func(Snapshot)

// Store holds the Application Snapshot and fans out changes. The zero value
// is ready to use; every endpoint starts out loading.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
	nextID   int
	subs     map[int]Listener

	// notifyMu orders listener calls by version.
	notifyMu sync.Mutex
}

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{}
	s.mu.Lock()
	s.initLocked()
	s.mu.Unlock()
	return s
}

func (s *Store) initLocked() {
	if s.snapshot.Endpoints != nil {
		return
	}
	s.snapshot.Endpoints = make(map[model.Endpoint]EndpointStatus, len(model.Endpoints()))
	for _, ep := range model.Endpoints() {
		s.snapshot.Endpoints[ep] = EndpointStatus{Loading: true}
	}
}

// Seed installs cached records before any network activity. Endpoints with a
// record stop loading. Seeding does not advance the version or notify.
func (s *Store) Seed(records map[model.Endpoint]model.Record, lastUpdated *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initLocked()

	for ep, rec := range records {
		if rec.Value() == nil {
			continue
		}
		s.setRecordLocked(rec)
		st := s.snapshot.Endpoints[ep]
		st.Loading = false
		s.snapshot.Endpoints[ep] = st
	}
	if lastUpdated != nil {
		t := *lastUpdated
		s.snapshot.LastUpdatedAt = &t
	}
}

// Apply stores a freshly normalized record, clears the endpoint's failure
// streak, stamps at as the last update and advances the version. It returns
// the new version.
func (s *Store) Apply(rec model.Record, at time.Time) uint64 {
	s.mu.Lock()
	s.initLocked()
	if rec.Value() == nil {
		v := s.snapshot.Version
		s.mu.Unlock()
		return v
	}
	s.setRecordLocked(rec)
	st := s.snapshot.Endpoints[rec.Endpoint]
	st.LastError = ""
	st.ConsecutiveFailures = 0
	s.snapshot.Endpoints[rec.Endpoint] = st
	stamp := at
	s.snapshot.LastUpdatedAt = &stamp
	s.snapshot.Version++
	version := s.snapshot.Version

	s.publishLocked()
	return version
}

// RecordFailure increments the endpoint's failure streak and records msg.
// It returns the new streak length.
func (s *Store) RecordFailure(ep model.Endpoint, msg string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initLocked()

	st := s.snapshot.Endpoints[ep]
	st.ConsecutiveFailures++
	st.LastError = msg
	s.snapshot.Endpoints[ep] = st
	return st.ConsecutiveFailures
}

// SetLoading toggles the endpoint's foreground loading flag.
func (s *Store) SetLoading(ep model.Endpoint, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initLocked()

	st := s.snapshot.Endpoints[ep]
	st.Loading = loading
	s.snapshot.Endpoints[ep] = st
}

// Status returns the endpoint's current status.
func (s *Store) Status(ep model.Endpoint) EndpointStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot.Endpoints == nil {
		return EndpointStatus{Loading: true}
	}
	return s.snapshot.Endpoints[ep]
}

// Reset drops every record and returns each endpoint to loading with no
// failures. The version still advances so consumers redraw.
func (s *Store) Reset() uint64 {
	s.mu.Lock()
	version := s.snapshot.Version + 1
	s.snapshot = Snapshot{Version: version}
	s.initLocked()

	s.publishLocked()
	return version
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cloneLocked()
}

// Subscribe registers fn for version changes and returns its cancel func.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]Listener)
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// publishLocked hands the current snapshot to listeners. It must be called
// with mu held for writing and releases it.
func (s *Store) publishLocked() {
	snap := s.cloneLocked()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.subs[id])
	}

	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

func (s *Store) setRecordLocked(rec model.Record) {
	switch rec.Endpoint {
	case model.Payments:
		s.snapshot.Payments = rec.Payments
	case model.UserUsage:
		s.snapshot.Usage = rec.Usage
	case model.InterfaceStats:
		s.snapshot.Interface = rec.Interface
	case model.RouterHealth:
		s.snapshot.Router = rec.Router
	}
}

func (s *Store) cloneLocked() Snapshot {
	snap := s.snapshot
	if s.snapshot.LastUpdatedAt != nil {
		t := *s.snapshot.LastUpdatedAt
		snap.LastUpdatedAt = &t
	}
	snap.Endpoints = make(map[model.Endpoint]EndpointStatus, len(s.snapshot.Endpoints))
	for ep, st := range s.snapshot.Endpoints {
		snap.Endpoints[ep] = st
	}
	if len(snap.Endpoints) == 0 {
		for _, ep := range model.Endpoints() {
			snap.Endpoints[ep] = EndpointStatus{Loading: true}
		}
	}
	return snap
}
