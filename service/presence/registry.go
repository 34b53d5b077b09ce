package presence

import (
	"sync"
	"time"

	"github.com/KAsare1/telecare-server/service/metrics"
)

type Status string

const (
	StatusOffline Status = "offline"
	StatusOnline  Status = "online"
	StatusInCall  Status = "in-call"
)

// Handle is the transport a party is reachable on. The registry closes
// it when the party is removed or re-registers on another handle.
type Handle interface {
	// Deliver queues msg without blocking and reports whether it was queued.
	Deliver(msg []byte) bool
	Close()
}

// Snapshot is a point-in-time view of a party's presence.
type Snapshot struct {
	PartyID   string    `json:"partyId"`
	Role      string    `json:"role,omitempty"`
	Status    Status    `json:"status"`
	RoomID    string    `json:"roomId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Mirror receives every transition, in order, while the registry lock is
// held. Publish must not block.
type Mirror interface {
	Publish(s Snapshot)
}

type entry struct {
	role      string
	status    Status
	roomID    string
	handle    Handle
	updatedAt time.Time
}

// Registry maps party ids to their presence and transport handle.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	mirror  Mirror
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Registry)

func WithMirror(m Mirror) Option {
	return func(r *Registry) { r.mirror = m }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register marks partyID online on h. Registering again refreshes the
// handle and leaves the room untouched; a replaced handle is closed.
// The room is dropped once the replaced connection's disconnect evicts
// it, unless the new connection has joined that room itself.
// cameOnline is true when the party was offline before.
func (r *Registry) Register(partyID, role string, h Handle) (cameOnline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[partyID]
	if !ok {
		e = &entry{status: StatusOnline}
		r.entries[partyID] = e
	}
	if e.handle != nil && e.handle != h {
		e.handle.Close()
	}
	e.handle = h
	if role != "" {
		e.role = role
	}
	r.touch(partyID, e)
	return !ok
}

// JoinRoom moves a registered party to in-call for roomID.
func (r *Registry) JoinRoom(partyID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[partyID]
	if !ok {
		return false
	}
	e.status, e.roomID = StatusInCall, roomID
	r.touch(partyID, e)
	return true
}

// LeaveRoom returns the party to online and reports the room it left.
func (r *Registry) LeaveRoom(partyID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[partyID]
	if !ok || e.roomID == "" {
		return "", false
	}
	roomID := e.roomID
	e.status, e.roomID = StatusOnline, ""
	r.touch(partyID, e)
	return roomID, true
}

// LeaveRoomIf returns the party to online only while it is still in
// roomID. Used when a replaced connection is evicted from a room the
// current connection never joined.
func (r *Registry) LeaveRoomIf(partyID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[partyID]
	if !ok || roomID == "" || e.roomID != roomID {
		return false
	}
	e.status, e.roomID = StatusOnline, ""
	r.touch(partyID, e)
	return true
}

// Remove drives partyID offline if it is still registered on h and
// closes h. The returned snapshot holds the state before removal so the
// caller can evict the party from its room.
func (r *Registry) Remove(partyID string, h Handle) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[partyID]
	if !ok || e.handle != h {
		return Snapshot{}, false
	}
	last := e.snapshot(partyID)
	delete(r.entries, partyID)
	if h != nil {
		h.Close()
	}
	e.status, e.roomID, e.updatedAt = StatusOffline, "", r.now()
	r.publish(e.snapshot(partyID))
	return last, true
}

// Heartbeat republishes the party's current state so mirrored entries
// do not expire while the connection is alive.
func (r *Registry) Heartbeat(partyID string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[partyID]
	if !ok || e.handle != h {
		return
	}
	r.touch(partyID, e)
}

// Get returns the party's presence; unknown parties are offline.
func (r *Registry) Get(partyID string) Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[partyID]
	if !ok {
		return Snapshot{PartyID: partyID, Status: StatusOffline}
	}
	return e.snapshot(partyID)
}

// Handle returns the transport partyID is currently reachable on.
func (r *Registry) Handle(partyID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[partyID]
	if !ok || e.handle == nil {
		return nil, false
	}
	return e.handle, true
}

func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// touch must be called with r.mu held.
func (r *Registry) touch(partyID string, e *entry) {
	e.updatedAt = r.now()
	r.publish(e.snapshot(partyID))
}

func (r *Registry) publish(s Snapshot) {
	r.metrics.SetOnline(len(r.entries))
	if r.mirror != nil {
		r.mirror.Publish(s)
	}
}

func (e *entry) snapshot(partyID string) Snapshot {
	return Snapshot{
		PartyID:   partyID,
		Role:      e.role,
		Status:    e.status,
		RoomID:    e.roomID,
		UpdatedAt: e.updatedAt,
	}
}
