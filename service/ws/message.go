package ws

import "encoding/json"

// Inbound message types.
const (
	TypeRegister      = "register"
	TypeJoin          = "join"
	TypePatientJoined = "patient-joined"
	TypeReady         = "ready"
	TypeOffer         = "offer"
	TypeAnswer        = "answer"
	TypeICECandidate  = "ice-candidate"
	TypeLeave         = "leave"
)

// Outbound event types.
const (
	EventReceiveOffer        = "receive-offer"
	EventReceiveAnswer       = "receive-answer"
	EventReceiveICECandidate = "receive-ice-candidate"
	EventDoctorJoined        = "doctor-joined"
	EventPeerReady           = "peer-ready"
	EventPeerLeft            = "peer-left"
	EventConnectionResponse  = "connection-response"
	EventError               = "error"
)

// Error codes carried by EventError.
const (
	ErrCodeBadMessage        = "bad-message"
	ErrCodeUnknownType       = "unknown-type"
	ErrCodeMissingUserID     = "missing-user-id"
	ErrCodeInvalidRole       = "invalid-role"
	ErrCodeForbidden         = "forbidden"
	ErrCodeAlreadyRegistered = "already-registered"
	ErrCodeNotRegistered     = "not-registered"
	ErrCodeUnknownRoom       = "unknown-room"
	ErrCodeNotParticipant    = "not-a-participant"
	ErrCodeNotInRoom         = "not-in-room"
	ErrCodeLookupFailed      = "lookup-failed"
)

const (
	RoleDoctor  = "doctor"
	RolePatient = "patient"
)

// relayed maps call-setup messages to the event the peer receives.
var relayed = map[string]string{
	TypeOffer:        EventReceiveOffer,
	TypeAnswer:       EventReceiveAnswer,
	TypeICECandidate: EventReceiveICECandidate,
}

// Message is what a client sends. Payload is opaque to the server.
type Message struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	UserID  string          `json:"userId,omitempty"`
	Role    string          `json:"role,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is what the server sends. Relayed payloads are forwarded as-is.
type Event struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mustPayload(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
