package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KAsare1/telecare-server/cmd/models"
	"github.com/KAsare1/telecare-server/service/metrics"
	"github.com/KAsare1/telecare-server/service/presence"
	"github.com/KAsare1/telecare-server/service/schedule"
)

type fakeResolver map[string][2]string

func (f fakeResolver) ResolveRoom(_ context.Context, roomID string) (string, string, error) {
	p, ok := f[roomID]
	if !ok {
		return "", "", schedule.ErrNotFound
	}
	return p[0], p[1], nil
}

type brokenResolver struct{}

func (brokenResolver) ResolveRoom(context.Context, string) (string, string, error) {
	return "", "", errors.New("database is down")
}

type recordingBridge struct {
	mu     sync.Mutex
	online []string
}

func (b *recordingBridge) PartyOnline(_ context.Context, partyID, _ string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.online = append(b.online, partyID)
}

func (b *recordingBridge) ConnectionAccepted(context.Context, string, string) {}

func (b *recordingBridge) AppointmentBooked(context.Context, models.Appointment) {}

func newTestHub(t *testing.T, opts ...Option) (*Hub, *presence.Registry) {
	t.Helper()
	registry := presence.NewRegistry()
	resolver := fakeResolver{
		"R":  {"Doc1", "Pat1"},
		"R2": {"Doc1", "Pat2"},
	}
	return NewHub(registry, resolver, zerolog.Nop(), opts...), registry
}

func newTestClient(hub *Hub) *Client {
	return NewClient(hub, nil, "", 64)
}

func expectEvent(t *testing.T, c *Client, eventType string) Event {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed while waiting for %s", eventType)
		var ev Event
		require.NoError(t, json.Unmarshal(data, &ev))
		require.Equal(t, eventType, ev.Type, "payload: %s", ev.Payload)
		return ev
	case <-time.After(time.Second):
		t.Fatalf("client did not receive %s", eventType)
	}
	return Event{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected event: %s", data)
	default:
	}
}

func expectErrorCode(t *testing.T, c *Client, code string) {
	t.Helper()
	ev := expectEvent(t, c, EventError)
	var p errorPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &p))
	assert.Equal(t, code, p.Code)
}

func registerAndJoin(hub *Hub, c *Client, partyID, role, roomID string) {
	hub.Dispatch(c, Message{Type: TypeRegister, UserID: partyID, Role: role})
	hub.Dispatch(c, Message{Type: TypeJoin, RoomID: roomID})
}

func TestDoctorJoinedReachesWaitingPatient(t *testing.T) {
	hub, registry := newTestHub(t)
	pat := newTestClient(hub)
	doc := newTestClient(hub)

	hub.Dispatch(pat, Message{Type: TypeRegister, UserID: "Pat1", Role: RolePatient})
	hub.Dispatch(pat, Message{Type: TypePatientJoined, RoomID: "R"})
	assert.Equal(t, presence.StatusInCall, registry.Get("Pat1").Status)

	registerAndJoin(hub, doc, "Doc1", RoleDoctor, "R")

	ev := expectEvent(t, pat, EventDoctorJoined)
	assert.Equal(t, "R", ev.RoomID)
	var p map[string]string
	require.NoError(t, json.Unmarshal(ev.Payload, &p))
	assert.Equal(t, "R", p["appointmentId"])
	expectNothing(t, doc)
}

func TestDoctorJoinedReachesPatientOutsideRoom(t *testing.T) {
	hub, _ := newTestHub(t)
	pat := newTestClient(hub)
	doc := newTestClient(hub)

	hub.Dispatch(pat, Message{Type: TypeRegister, UserID: "Pat1"})
	registerAndJoin(hub, doc, "Doc1", RoleDoctor, "R")

	expectEvent(t, pat, EventDoctorJoined)
}

func TestOfferWithoutPeerIsDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	hub, _ := newTestHub(t, WithMetrics(m))
	pat := newTestClient(hub)
	bystander := newTestClient(hub)
	registerAndJoin(hub, bystander, "Pat2", RolePatient, "R2")

	registerAndJoin(hub, pat, "Pat1", RolePatient, "R")
	hub.Dispatch(pat, Message{Type: TypeOffer, RoomID: "R", Payload: json.RawMessage(`{"sdp":"v=0"}`)})

	expectNothing(t, pat)
	expectNothing(t, bystander)
}

func TestRelayForwardsPayloadVerbatimInOrder(t *testing.T) {
	hub, _ := newTestHub(t)
	pat := newTestClient(hub)
	doc := NewClient(hub, nil, "", 256)
	registerAndJoin(hub, pat, "Pat1", RolePatient, "R")
	registerAndJoin(hub, doc, "Doc1", RoleDoctor, "R")
	expectEvent(t, pat, EventDoctorJoined)

	hub.Dispatch(pat, Message{Type: TypeOffer, RoomID: "R", Payload: json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)})
	ev := expectEvent(t, doc, EventReceiveOffer)
	assert.Equal(t, "R", ev.RoomID)
	assert.Equal(t, "Pat1", ev.From)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0\r\n"}`, string(ev.Payload))

	hub.Dispatch(doc, Message{Type: TypeAnswer, RoomID: "R", Payload: json.RawMessage(`{"type":"answer"}`)})
	ev = expectEvent(t, pat, EventReceiveAnswer)
	assert.JSONEq(t, `{"type":"answer"}`, string(ev.Payload))

	for i := 0; i < 20; i++ {
		hub.Dispatch(pat, Message{Type: TypeICECandidate, RoomID: "R", Payload: json.RawMessage(fmt.Sprintf(`{"candidate":"c%d"}`, i))})
	}
	for i := 0; i < 20; i++ {
		ev := expectEvent(t, doc, EventReceiveICECandidate)
		assert.JSONEq(t, fmt.Sprintf(`{"candidate":"c%d"}`, i), string(ev.Payload))
	}
	expectNothing(t, pat)
}

func TestRoomStateMachine(t *testing.T) {
	hub, _ := newTestHub(t)
	pat := newTestClient(hub)
	doc := newTestClient(hub)

	assert.Equal(t, RoomEmpty, hub.RoomState("R"))
	registerAndJoin(hub, pat, "Pat1", RolePatient, "R")
	registerAndJoin(hub, doc, "Doc1", RoleDoctor, "R")
	expectEvent(t, pat, EventDoctorJoined)
	assert.Equal(t, RoomEmpty, hub.RoomState("R"))

	hub.Dispatch(pat, Message{Type: TypeReady, RoomID: "R"})
	assert.Equal(t, RoomWaitingForPeer, hub.RoomState("R"))
	expectEvent(t, doc, EventPeerReady)

	hub.Dispatch(doc, Message{Type: TypeReady, RoomID: "R"})
	assert.Equal(t, RoomConnected, hub.RoomState("R"))
	expectEvent(t, pat, EventPeerReady)

	hub.Dispatch(doc, Message{Type: TypeLeave})
	assert.Equal(t, RoomEmpty, hub.RoomState("R"))
	expectEvent(t, pat, EventPeerLeft)
	assert.Equal(t, 1, hub.RoomCount())

	hub.Dispatch(pat, Message{Type: TypeLeave})
	assert.Equal(t, 0, hub.RoomCount())
}

func TestDisconnectMidCall(t *testing.T) {
	hub, registry := newTestHub(t)
	pat := newTestClient(hub)
	doc := newTestClient(hub)
	registerAndJoin(hub, pat, "Pat1", RolePatient, "R")
	registerAndJoin(hub, doc, "Doc1", RoleDoctor, "R")
	expectEvent(t, pat, EventDoctorJoined)
	hub.Dispatch(pat, Message{Type: TypeReady, RoomID: "R"})
	hub.Dispatch(doc, Message{Type: TypeReady, RoomID: "R"})
	expectEvent(t, doc, EventPeerReady)
	expectEvent(t, pat, EventPeerReady)

	hub.Disconnect(doc)

	ev := expectEvent(t, pat, EventPeerLeft)
	assert.Equal(t, "Doc1", ev.From)
	assert.Equal(t, presence.StatusOffline, registry.Get("Doc1").Status)
	assert.Equal(t, presence.StatusInCall, registry.Get("Pat1").Status)
	assert.Equal(t, RoomEmpty, hub.RoomState("R"))

	_, ok := <-doc.Send
	assert.False(t, ok, "disconnected client must be closed")

	// the patient keeps relaying into an empty room without errors
	hub.Dispatch(pat, Message{Type: TypeOffer, RoomID: "R", Payload: json.RawMessage(`{}`)})
	expectNothing(t, pat)

	hub.Disconnect(pat)
	assert.Equal(t, 0, hub.RoomCount())
	assert.Equal(t, 0, registry.Online())
}

func TestStaleConnectionDisconnectKeepsParty(t *testing.T) {
	hub, registry := newTestHub(t)
	pat := newTestClient(hub)
	oldDoc := newTestClient(hub)
	newDoc := newTestClient(hub)

	registerAndJoin(hub, pat, "Pat1", RolePatient, "R")
	registerAndJoin(hub, oldDoc, "Doc1", RoleDoctor, "R")
	expectEvent(t, pat, EventDoctorJoined)

	// the doctor reconnects on a new socket before the old one times out
	registerAndJoin(hub, newDoc, "Doc1", RoleDoctor, "R")
	expectEvent(t, pat, EventDoctorJoined)

	hub.Disconnect(oldDoc)
	expectNothing(t, pat)
	assert.Equal(t, presence.StatusInCall, registry.Get("Doc1").Status)

	hub.Dispatch(pat, Message{Type: TypeOffer, RoomID: "R", Payload: json.RawMessage(`{"n":1}`)})
	expectEvent(t, newDoc, EventReceiveOffer)
}

func TestStaleDisconnectReturnsPartyOnline(t *testing.T) {
	hub, registry := newTestHub(t)
	pat := newTestClient(hub)
	oldDoc := newTestClient(hub)
	newDoc := newTestClient(hub)

	registerAndJoin(hub, pat, "Pat1", RolePatient, "R")
	registerAndJoin(hub, oldDoc, "Doc1", RoleDoctor, "R")
	expectEvent(t, pat, EventDoctorJoined)

	// the new socket registers but never rejoins the room
	hub.Dispatch(newDoc, Message{Type: TypeRegister, UserID: "Doc1", Role: RoleDoctor})
	hub.Disconnect(oldDoc)

	ev := expectEvent(t, pat, EventPeerLeft)
	assert.Equal(t, "Doc1", ev.From)
	snap := registry.Get("Doc1")
	assert.Equal(t, presence.StatusOnline, snap.Status)
	assert.Empty(t, snap.RoomID)
	assert.Equal(t, RoomEmpty, hub.RoomState("R"))

	h, ok := registry.Handle("Doc1")
	require.True(t, ok)
	assert.Same(t, newDoc, h)
}

func TestRefusedJoinKeepsCurrentCall(t *testing.T) {
	hub, registry := newTestHub(t)
	pat := newTestClient(hub)
	doc := newTestClient(hub)

	registerAndJoin(hub, pat, "Pat1", RolePatient, "R")
	registerAndJoin(hub, doc, "Doc1", RoleDoctor, "R")
	expectEvent(t, pat, EventDoctorJoined)

	// R2 belongs to Doc1 and Pat2
	hub.Dispatch(pat, Message{Type: TypeJoin, RoomID: "R2"})
	expectErrorCode(t, pat, ErrCodeNotParticipant)
	expectNothing(t, doc)

	snap := registry.Get("Pat1")
	assert.Equal(t, presence.StatusInCall, snap.Status)
	assert.Equal(t, "R", snap.RoomID)
	assert.Equal(t, 1, hub.RoomCount())

	hub.Dispatch(pat, Message{Type: TypeOffer, RoomID: "R", Payload: json.RawMessage(`{"sdp":"x"}`)})
	ev := expectEvent(t, doc, EventReceiveOffer)
	assert.JSONEq(t, `{"sdp":"x"}`, string(ev.Payload))
}

func TestJoinRefusals(t *testing.T) {
	hub, _ := newTestHub(t)

	unregistered := newTestClient(hub)
	hub.Dispatch(unregistered, Message{Type: TypeJoin, RoomID: "R"})
	expectErrorCode(t, unregistered, ErrCodeNotRegistered)

	stranger := newTestClient(hub)
	registerAndJoin(hub, stranger, "Pat9", RolePatient, "R")
	expectErrorCode(t, stranger, ErrCodeNotParticipant)
	assert.Equal(t, 0, hub.RoomCount())

	lost := newTestClient(hub)
	registerAndJoin(hub, lost, "Pat1", RolePatient, "nope")
	expectErrorCode(t, lost, ErrCodeUnknownRoom)

	hub.Dispatch(lost, Message{Type: TypeOffer, RoomID: "R"})
	expectErrorCode(t, lost, ErrCodeNotInRoom)

	hub.Dispatch(lost, Message{Type: "dance"})
	expectErrorCode(t, lost, ErrCodeUnknownType)
}

func TestJoinLookupFailure(t *testing.T) {
	hub := NewHub(presence.NewRegistry(), brokenResolver{}, zerolog.Nop())
	c := newTestClient(hub)
	registerAndJoin(hub, c, "Pat1", RolePatient, "R")
	expectErrorCode(t, c, ErrCodeLookupFailed)
}

func TestRegisterValidation(t *testing.T) {
	hub, registry := newTestHub(t)

	c := newTestClient(hub)
	hub.Dispatch(c, Message{Type: TypeRegister})
	expectErrorCode(t, c, ErrCodeMissingUserID)
	hub.Dispatch(c, Message{Type: TypeRegister, UserID: "Doc1", Role: "nurse"})
	expectErrorCode(t, c, ErrCodeInvalidRole)

	authed := NewClient(hub, nil, "Doc1", 8)
	hub.Dispatch(authed, Message{Type: TypeRegister, UserID: "Pat1"})
	expectErrorCode(t, authed, ErrCodeForbidden)
	assert.Equal(t, presence.StatusOffline, registry.Get("Pat1").Status)

	hub.Dispatch(authed, Message{Type: TypeRegister, UserID: "Doc1"})
	assert.Equal(t, presence.StatusOnline, registry.Get("Doc1").Status)
	hub.Dispatch(authed, Message{Type: TypeRegister, UserID: "Doc1"})
	expectNothing(t, authed)

	hub.Dispatch(c, Message{Type: TypeRegister, UserID: "Pat1"})
	hub.Dispatch(c, Message{Type: TypeRegister, UserID: "Pat2"})
	expectErrorCode(t, c, ErrCodeAlreadyRegistered)
}

func TestDoctorOnlineNotifiesBridge(t *testing.T) {
	bridge := &recordingBridge{}
	hub, _ := newTestHub(t, WithBridge(bridge))

	doc := newTestClient(hub)
	hub.Dispatch(doc, Message{Type: TypeRegister, UserID: "Doc1", Role: RoleDoctor})
	hub.Dispatch(doc, Message{Type: TypeRegister, UserID: "Doc1", Role: RoleDoctor})
	pat := newTestClient(hub)
	hub.Dispatch(pat, Message{Type: TypeRegister, UserID: "Pat1", Role: RolePatient})

	assert.Equal(t, []string{"Doc1"}, bridge.online)
}

func TestConnectionAccepted(t *testing.T) {
	hub, _ := newTestHub(t)
	pat := newTestClient(hub)
	hub.Dispatch(pat, Message{Type: TypeRegister, UserID: "Pat1"})

	assert.True(t, hub.ConnectionAccepted("Pat1", "Doc1"))
	ev := expectEvent(t, pat, EventConnectionResponse)
	var p map[string]string
	require.NoError(t, json.Unmarshal(ev.Payload, &p))
	assert.Equal(t, "accepted", p["status"])
	assert.Equal(t, "Doc1", p["docId"])

	assert.False(t, hub.ConnectionAccepted("Pat2", "Doc1"))
}

func TestSlowConsumerIsDroppedAndClosed(t *testing.T) {
	hub, _ := newTestHub(t, WithMetrics(metrics.New(prometheus.NewRegistry())))
	pat := NewClient(hub, nil, "", 1)
	doc := newTestClient(hub)
	registerAndJoin(hub, pat, "Pat1", RolePatient, "R")
	registerAndJoin(hub, doc, "Doc1", RoleDoctor, "R")

	// doctor-joined fills the patient's queue; the offer overflows it
	hub.Dispatch(doc, Message{Type: TypeOffer, RoomID: "R", Payload: json.RawMessage(`{}`)})
	expectNothing(t, doc)

	expectEvent(t, pat, EventDoctorJoined)
	_, ok := <-pat.Send
	assert.False(t, ok)
	assert.False(t, pat.Deliver([]byte(`{}`)))
}

func TestRoomsDoNotInterfere(t *testing.T) {
	registry := presence.NewRegistry()
	resolver := fakeResolver{}
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("room-%d", i)
		resolver[id] = [2]string{"doc-" + id, "pat-" + id}
	}
	hub := NewHub(registry, resolver, zerolog.Nop())

	var wg sync.WaitGroup
	for roomID, parties := range resolver {
		wg.Add(1)
		go func(roomID string, docID, patID string) {
			defer wg.Done()
			pat := NewClient(hub, nil, "", 256)
			doc := NewClient(hub, nil, "", 256)
			registerAndJoin(hub, pat, patID, RolePatient, roomID)
			registerAndJoin(hub, doc, docID, RoleDoctor, roomID)
			for i := 0; i < 50; i++ {
				hub.Dispatch(doc, Message{Type: TypeICECandidate, RoomID: roomID, Payload: json.RawMessage(fmt.Sprintf(`{"i":%d}`, i))})
			}
			hub.Disconnect(doc)
			hub.Disconnect(pat)
		}(roomID, parties[0], parties[1])
	}
	wg.Wait()

	assert.Equal(t, 0, hub.RoomCount())
	assert.Equal(t, 0, registry.Online())
}
