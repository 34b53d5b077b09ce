package ws

import "sync"

type RoomState int

const (
	RoomEmpty RoomState = iota
	RoomWaitingForPeer
	RoomConnected
)

func (s RoomState) String() string {
	switch s {
	case RoomWaitingForPeer:
		return "waiting-for-peer"
	case RoomConnected:
		return "connected"
	default:
		return "empty"
	}
}

// room is the signaling session of one appointment. It holds at most one
// client per role. All fields are guarded by mu.
type room struct {
	id        string
	docID     string
	patientID string

	mu      sync.Mutex
	members map[string]*Client
	ready   map[string]bool
	// closed is set when the room is removed from the hub table; a holder
	// of a stale pointer must look the room up again.
	closed bool
}

func newRoom(id, docID, patientID string) *room {
	return &room{
		id:        id,
		docID:     docID,
		patientID: patientID,
		members:   make(map[string]*Client, 2),
		ready:     make(map[string]bool, 2),
	}
}

func (r *room) state() RoomState {
	n := 0
	for role, ok := range r.ready {
		if ok && r.members[role] != nil {
			n++
		}
	}
	switch n {
	case 0:
		return RoomEmpty
	case 1:
		return RoomWaitingForPeer
	default:
		return RoomConnected
	}
}

func (r *room) peerOf(role string) *Client {
	if role == RoleDoctor {
		return r.members[RolePatient]
	}
	return r.members[RoleDoctor]
}

func participantRole(partyID, docID, patientID string) string {
	switch partyID {
	case docID:
		return RoleDoctor
	case patientID:
		return RolePatient
	}
	return ""
}
