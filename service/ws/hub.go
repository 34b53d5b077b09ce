package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/KAsare1/telecare-server/service/metrics"
	"github.com/KAsare1/telecare-server/service/notification"
	"github.com/KAsare1/telecare-server/service/presence"
	"github.com/KAsare1/telecare-server/service/schedule"
)

// RoomResolver maps a room id to the two participants of its appointment.
// An unknown room returns an error matching schedule.ErrNotFound.
type RoomResolver interface {
	ResolveRoom(ctx context.Context, roomID string) (docID, patientID string, err error)
}

// Hub relays call-setup messages between the two occupants of a room.
// The room table lock only guards lookups; each room has its own lock,
// so traffic in different rooms does not contend.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room

	presence *presence.Registry
	resolver RoomResolver
	bridge   notification.Bridge
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	resolveTimeout time.Duration
}

type Option func(*Hub)

func WithBridge(b notification.Bridge) Option {
	return func(h *Hub) { h.bridge = b }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

func WithResolveTimeout(d time.Duration) Option {
	return func(h *Hub) { h.resolveTimeout = d }
}

func NewHub(registry *presence.Registry, resolver RoomResolver, logger zerolog.Logger, opts ...Option) *Hub {
	h := &Hub{
		rooms:          make(map[string]*room),
		presence:       registry,
		resolver:       resolver,
		bridge:         notification.NopBridge{},
		logger:         logger.With().Str("component", "signaling").Logger(),
		resolveTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Dispatch handles one inbound message from c. It must only be called
// from c's read goroutine.
func (h *Hub) Dispatch(c *Client, msg Message) {
	switch msg.Type {
	case TypeRegister:
		h.metrics.ObserveSignal(msg.Type)
		h.register(c, msg)
	case TypeJoin, TypePatientJoined:
		h.metrics.ObserveSignal(TypeJoin)
		h.join(c, msg.RoomID)
	case TypeReady:
		h.metrics.ObserveSignal(msg.Type)
		h.ready(c, msg.RoomID)
	case TypeOffer, TypeAnswer, TypeICECandidate:
		h.metrics.ObserveSignal(msg.Type)
		h.relay(c, msg)
	case TypeLeave:
		h.metrics.ObserveSignal(msg.Type)
		h.leave(c, true)
	default:
		h.sendError(c, msg.RoomID, ErrCodeUnknownType, "unknown message type "+msg.Type)
	}
}

func (h *Hub) register(c *Client, msg Message) {
	partyID := strings.TrimSpace(msg.UserID)
	switch {
	case partyID == "":
		h.sendError(c, "", ErrCodeMissingUserID, "userId is required")
		return
	case msg.Role != "" && msg.Role != RoleDoctor && msg.Role != RolePatient:
		h.sendError(c, "", ErrCodeInvalidRole, "role must be doctor or patient")
		return
	case c.authParty != "" && partyID != c.authParty:
		h.sendError(c, "", ErrCodeForbidden, "userId does not match token")
		return
	case c.partyID != "" && c.partyID != partyID:
		h.sendError(c, "", ErrCodeAlreadyRegistered, "connection is registered to another party")
		return
	}

	c.partyID = partyID
	if msg.Role != "" {
		c.role = msg.Role
	}
	cameOnline := h.presence.Register(partyID, c.role, c)
	h.logger.Debug().Str("party_id", partyID).Str("role", c.role).Str("client_id", c.ID).Msg("party registered")

	if cameOnline && c.role == RoleDoctor {
		h.bridge.PartyOnline(context.Background(), partyID, c.role)
	}
}

func (h *Hub) join(c *Client, roomID string) {
	if c.partyID == "" {
		h.sendError(c, roomID, ErrCodeNotRegistered, "register before joining a room")
		return
	}
	if roomID == "" {
		h.sendError(c, "", ErrCodeUnknownRoom, "roomId is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.resolveTimeout)
	docID, patientID, err := h.resolver.ResolveRoom(ctx, roomID)
	cancel()
	if err != nil {
		if errors.Is(err, schedule.ErrNotFound) {
			h.sendError(c, roomID, ErrCodeUnknownRoom, "no appointment for this room")
			return
		}
		h.logger.Error().Err(err).Str("room_id", roomID).Msg("room lookup failed")
		h.sendError(c, roomID, ErrCodeLookupFailed, "room lookup failed")
		return
	}

	role := participantRole(c.partyID, docID, patientID)
	if role == "" {
		h.logger.Info().Str("room_id", roomID).Str("party_id", c.partyID).Msg("refused non-participant")
		h.sendError(c, roomID, ErrCodeNotParticipant, "not a participant of this appointment")
		return
	}

	if c.roomID != "" && c.roomID != roomID {
		h.leave(c, true)
	}

	r := h.acquire(roomID, docID, patientID)
	if prev := r.members[role]; prev != nil && prev != c {
		delete(r.ready, role)
	}
	r.members[role] = c
	c.roomID, c.roomRole = roomID, role
	state := r.state()
	r.mu.Unlock()

	h.presence.JoinRoom(c.partyID, roomID)
	h.logger.Debug().Str("room_id", roomID).Str("party_id", c.partyID).Str("role", role).Stringer("state", state).Msg("joined room")

	if role == RoleDoctor {
		h.deliverTo(patientID, Event{
			Type:    EventDoctorJoined,
			RoomID:  roomID,
			From:    c.partyID,
			Payload: mustPayload(map[string]string{"appointmentId": roomID}),
		})
	}
}

func (h *Hub) ready(c *Client, roomID string) {
	r := h.memberRoom(c, roomID)
	if r == nil {
		h.sendError(c, roomID, ErrCodeNotInRoom, "join the room before signaling")
		return
	}
	before := r.state()
	r.ready[c.roomRole] = true
	after := r.state()
	if peer := r.peerOf(c.roomRole); peer != nil {
		h.send(peer, Event{Type: EventPeerReady, RoomID: roomID, From: c.partyID})
	}
	r.mu.Unlock()

	if before != after {
		h.logger.Debug().Str("room_id", roomID).Stringer("from", before).Stringer("to", after).Msg("room state changed")
	}
}

// relay forwards an offer, answer or candidate to the other occupant.
// Without a peer the message is dropped silently.
func (h *Hub) relay(c *Client, msg Message) {
	r := h.memberRoom(c, msg.RoomID)
	if r == nil {
		h.sendError(c, msg.RoomID, ErrCodeNotInRoom, "join the room before signaling")
		return
	}
	defer r.mu.Unlock()

	peer := r.peerOf(c.roomRole)
	if peer == nil {
		h.metrics.ObserveDrop(metrics.DropNoPeer)
		h.logger.Debug().Str("room_id", msg.RoomID).Str("type", msg.Type).Msg("no peer, dropping")
		return
	}
	h.send(peer, Event{
		Type:    relayed[msg.Type],
		RoomID:  msg.RoomID,
		From:    c.partyID,
		Payload: msg.Payload,
	})
}

// leave takes c out of its room and tells the remaining occupant. The
// room returns to Empty; the occupant must signal ready again. It
// reports whether c was still the room's member.
func (h *Hub) leave(c *Client, updatePresence bool) bool {
	roomID, role := c.roomID, c.roomRole
	if roomID == "" {
		return false
	}
	c.roomID, c.roomRole = "", ""

	r := h.lookup(roomID)
	if r == nil {
		return false
	}
	if r.members[role] != c {
		r.mu.Unlock()
		return false
	}
	delete(r.members, role)
	for k := range r.ready {
		delete(r.ready, k)
	}
	if peer := r.peerOf(role); peer != nil {
		h.send(peer, Event{
			Type:    EventPeerLeft,
			RoomID:  roomID,
			From:    c.partyID,
			Payload: mustPayload(map[string]string{"partyId": c.partyID}),
		})
	}
	h.releaseIfEmpty(r)
	r.mu.Unlock()

	if updatePresence {
		h.presence.LeaveRoom(c.partyID)
	}
	h.logger.Debug().Str("room_id", roomID).Str("party_id", c.partyID).Msg("left room")
	return true
}

// Disconnect evicts c from its room and drives its party offline. A
// party that already re-registered on another connection stays online.
func (h *Hub) Disconnect(c *Client) {
	roomID := c.roomID
	evicted := h.leave(c, false)
	if c.partyID != "" {
		if _, ok := h.presence.Remove(c.partyID, c); ok {
			h.logger.Debug().Str("party_id", c.partyID).Str("client_id", c.ID).Msg("party offline")
		} else if evicted {
			// the party lives on in a connection that never joined roomID
			h.presence.LeaveRoomIf(c.partyID, roomID)
		}
	}
	c.Close()
}

// ConnectionAccepted tells the patient that docID accepted their request.
func (h *Hub) ConnectionAccepted(patientID, docID string) bool {
	return h.deliverTo(patientID, Event{
		Type:    EventConnectionResponse,
		From:    docID,
		Payload: mustPayload(map[string]string{"status": "accepted", "docId": docID}),
	})
}

// RoomState reports the state of roomID; unknown rooms are empty.
func (h *Hub) RoomState(roomID string) RoomState {
	r := h.lookup(roomID)
	if r == nil {
		return RoomEmpty
	}
	defer r.mu.Unlock()
	return r.state()
}

func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// acquire returns roomID's room locked, creating it if needed.
func (h *Hub) acquire(roomID, docID, patientID string) *room {
	for {
		h.mu.Lock()
		r, ok := h.rooms[roomID]
		if !ok {
			r = newRoom(roomID, docID, patientID)
			h.rooms[roomID] = r
			h.metrics.SetRoomsActive(len(h.rooms))
		}
		h.mu.Unlock()

		r.mu.Lock()
		if !r.closed {
			return r
		}
		r.mu.Unlock()
	}
}

// lookup returns roomID's room locked, or nil.
func (h *Hub) lookup(roomID string) *room {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	return r
}

// memberRoom returns the room locked if c is its current occupant.
func (h *Hub) memberRoom(c *Client, roomID string) *room {
	if roomID == "" || c.roomID != roomID {
		return nil
	}
	r := h.lookup(roomID)
	if r == nil {
		return nil
	}
	if r.members[c.roomRole] != c {
		r.mu.Unlock()
		return nil
	}
	return r
}

// releaseIfEmpty must be called with r.mu held.
func (h *Hub) releaseIfEmpty(r *room) {
	if len(r.members) > 0 {
		return
	}
	r.closed = true
	h.mu.Lock()
	if h.rooms[r.id] == r {
		delete(h.rooms, r.id)
	}
	h.metrics.SetRoomsActive(len(h.rooms))
	h.mu.Unlock()
}

func (h *Hub) deliverTo(partyID string, ev Event) bool {
	handle, ok := h.presence.Handle(partyID)
	if !ok {
		h.logger.Debug().Str("party_id", partyID).Str("type", ev.Type).Msg("party offline, not delivered")
		return false
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("type", ev.Type).Msg("failed to encode event")
		return false
	}
	return handle.Deliver(data)
}

func (h *Hub) send(c *Client, ev Event) bool {
	return c.sendEvent(ev)
}

func (h *Hub) sendError(c *Client, roomID, code, message string) {
	h.send(c, Event{
		Type:    EventError,
		RoomID:  roomID,
		Payload: mustPayload(errorPayload{Code: code, Message: message}),
	})
}

func (h *Hub) heartbeat(c *Client) {
	if c.partyID != "" {
		h.presence.Heartbeat(c.partyID, c)
	}
}

// slowConsumer is called from Client.Deliver with the client's lock held.
func (h *Hub) slowConsumer(c *Client) {
	h.metrics.ObserveDrop(metrics.DropSlowConsumer)
	h.logger.Warn().Str("client_id", c.ID).Msg("send queue full, closing slow consumer")
}
