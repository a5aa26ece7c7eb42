package handler

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/rushlobby/internal/catalog"
	"github.com/cory-johannsen/rushlobby/internal/hub"
	"github.com/cory-johannsen/rushlobby/internal/lobby"
	"github.com/cory-johannsen/rushlobby/internal/lobby/protocol"
)

type launchSink struct {
	mu      sync.Mutex
	records []lobby.LaunchRecord
}

func (l *launchSink) SessionLaunched(rec lobby.LaunchRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
}

type harness struct {
	t        *testing.T
	hub      *hub.Hub
	registry *lobby.Registry
	launches *launchSink
	disp     *Dispatcher
	seq      int
}

type client struct {
	h  *harness
	cc *ConnContext
	ep *hub.Endpoint
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	settings, err := catalog.New(
		[]*catalog.Vehicle{{Name: "truck", Seats: 4}},
		[]*catalog.Item{{Type: catalog.ItemTypeOre, Name: "iron", Attributes: map[string]float64{"weight": 2}}},
	)
	require.NoError(t, err)

	h := &harness{t: t, hub: hub.New(64, logger), launches: &launchSink{}}
	n := 0
	h.registry = lobby.NewRegistry(lobby.IDFunc(func() string {
		n++
		return fmt.Sprintf("S%d", n)
	}))
	hd := NewHandler(h.registry, settings, nil, h.hub, h.launches, logger)
	h.disp = NewDispatcher(hd, logger)
	return h
}

func (h *harness) connect() *client {
	h.seq++
	id := fmt.Sprintf("conn-%d", h.seq)
	ep, err := h.hub.Connect(id)
	require.NoError(h.t, err)
	return &client{h: h, cc: NewConnContext(id), ep: ep}
}

func (c *client) send(event, requestID string, data any) {
	raw, err := protocol.Encode(event, requestID, data)
	require.NoError(c.h.t, err)
	c.h.disp.Dispatch(c.cc, raw)
}

func (c *client) frames() []protocol.Frame {
	var out []protocol.Frame
	for {
		select {
		case raw := <-c.ep.Frames():
			var f protocol.Frame
			require.NoError(c.h.t, json.Unmarshal(raw, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func (c *client) events() []string {
	var out []string
	for _, f := range c.frames() {
		out = append(out, f.Event)
	}
	return out
}

func (c *client) exception() protocol.ExceptionData {
	fs := c.frames()
	require.Len(c.h.t, fs, 1)
	require.Equal(c.h.t, protocol.EventException, fs[0].Event)
	var ex protocol.ExceptionData
	require.NoError(c.h.t, json.Unmarshal(fs[0].Data, &ex))
	return ex
}

func (c *client) disconnect() {
	c.h.disp.Disconnect(c.cc)
	c.h.hub.Disconnect(c.cc.ID)
}

func TestScenario_AliceAndBob(t *testing.T) {
	h := newHarness(t)
	alice := h.connect()
	bob := h.connect()

	alice.send(protocol.EventSessionCreate, "r1", CreateRequest{LeaderName: "Alice"})
	fs := alice.frames()
	require.Len(t, fs, 1)
	assert.Equal(t, protocol.EventSessionCreated, fs[0].Event)
	assert.Equal(t, "r1", fs[0].RequestID)
	var created struct {
		Player  struct{ Name string } `json:"player"`
		Session struct{ ID string }   `json:"session"`
	}
	require.NoError(t, json.Unmarshal(fs[0].Data, &created))
	assert.Equal(t, "Alice", created.Player.Name)
	assert.Equal(t, "S1", created.Session.ID)

	bob.send(protocol.EventSessionJoin, "r2", JoinRequest{SessionID: "S1", PlayerName: "Bob"})
	assert.Equal(t, []string{protocol.EventSessionJoined}, bob.events())
	fs = alice.frames()
	require.Len(t, fs, 1)
	assert.Equal(t, protocol.EventSessionPlayerJoined, fs[0].Event)
	assert.JSONEq(t, `{"player":{"name":"Bob","boxes":[]}}`, string(fs[0].Data))

	alice.send(protocol.EventGroupCreate, "", CreateGroupRequest{GroupName: "Red"})
	assert.Equal(t, []string{protocol.EventGroupCreated}, alice.events())
	assert.Equal(t, []string{protocol.EventGroupCreated}, bob.events())

	alice.send(protocol.EventGroupAddPlayer, "", GroupPlayerRequest{PlayerName: "Bob", GroupIndex: 1})
	assert.Equal(t, []string{protocol.EventGroupPlayerAdded}, alice.events())
	assert.Equal(t, []string{protocol.EventGroupPlayerAdded}, bob.events())

	s, err := h.registry.Lookup("S1")
	require.NoError(t, err)
	s.Lock()
	assert.Equal(t, []string{"Alice", "Bob"}, s.PlayerNames())
	assert.Len(t, s.Players, 1)
	s.Unlock()

	alice.send(protocol.EventGroupRemove, "", GroupRequest{GroupIndex: 1})
	assert.Equal(t, []string{protocol.EventGroupRemoved}, bob.events())
	_ = alice.frames()
	s.Lock()
	assert.Len(t, s.Players, 2)
	assert.Empty(t, s.Groups)
	s.Unlock()

	alice.send(protocol.EventSessionLeave, "r3", nil)
	assert.Equal(t, []string{protocol.EventSessionLeaved}, alice.events())
	fs = bob.frames()
	require.Len(t, fs, 1)
	assert.Equal(t, protocol.EventSessionPlayerLeaved, fs[0].Event)
	assert.JSONEq(t, `{"playerName":"Alice"}`, string(fs[0].Data))

	bob.send(protocol.EventSessionLeave, "", nil)
	assert.Equal(t, []string{protocol.EventSessionLeaved}, bob.events())
	_, err = h.registry.Lookup("S1")
	assert.True(t, lobby.IsCode(err, lobby.CodeSessionNotFound))

	carol := h.connect()
	carol.send(protocol.EventSessionJoin, "r4", JoinRequest{SessionID: "S1", PlayerName: "Carol"})
	ex := carol.exception()
	assert.Equal(t, lobby.CodeSessionNotFound, ex.Code)
}

func TestJoin_DuplicateNameIsUnicastOnly(t *testing.T) {
	h := newHarness(t)
	alice := h.connect()
	mallory := h.connect()
	alice.send(protocol.EventSessionCreate, "", CreateRequest{LeaderName: "Alice"})
	_ = alice.frames()

	mallory.send(protocol.EventSessionJoin, "r1", JoinRequest{SessionID: "S1", PlayerName: "Alice"})
	ex := mallory.exception()
	assert.Equal(t, lobby.CodePlayerAlreadyExists, ex.Code)
	assert.Equal(t, "Alice", ex.Data["playerName"])
	assert.Empty(t, alice.frames(), "errors are never broadcast")

	sess, p := mallory.cc.Bound()
	assert.Nil(t, sess)
	assert.Nil(t, p)
}

func TestLaunch(t *testing.T) {
	h := newHarness(t)
	alice := h.connect()
	bob := h.connect()
	alice.send(protocol.EventSessionCreate, "", CreateRequest{LeaderName: "Alice"})
	bob.send(protocol.EventSessionJoin, "", JoinRequest{SessionID: "S1", PlayerName: "Bob"})
	_, _ = alice.frames(), bob.frames()

	bob.send(protocol.EventSessionLaunch, "r1", nil)
	fa, fb := alice.frames(), bob.frames()
	require.Len(t, fa, 1)
	require.Len(t, fb, 1)
	assert.Equal(t, protocol.EventSessionLaunched, fa[0].Event)
	assert.JSONEq(t, `{"sessionId":"S1"}`, string(fb[0].Data))

	require.Len(t, h.launches.records, 1)
	rec := h.launches.records[0]
	assert.Equal(t, "S1", rec.SessionID)
	assert.Equal(t, "Alice", rec.LeaderName)
	assert.Equal(t, 2, rec.PlayerCount)

	alice.send(protocol.EventSessionLaunch, "r2", nil)
	assert.Equal(t, lobby.CodeAlreadyLaunched, alice.exception().Code)
	assert.Empty(t, bob.frames())

	carol := h.connect()
	carol.send(protocol.EventSessionJoin, "", JoinRequest{SessionID: "S1", PlayerName: "Carol"})
	assert.Equal(t, lobby.CodeAlreadyLaunched, carol.exception().Code)
}

func TestUnboundOperations(t *testing.T) {
	h := newHarness(t)
	c := h.connect()

	c.send(protocol.EventSessionLeave, "", nil)
	assert.Empty(t, c.frames(), "leave while unbound is a no-op")

	c.send(protocol.EventSessionLaunch, "r1", nil)
	assert.Equal(t, lobby.CodeSessionNotFound, c.exception().Code)

	c.send(protocol.EventGroupCreate, "r2", CreateGroupRequest{GroupName: "Red"})
	assert.Equal(t, lobby.CodeSessionNotFound, c.exception().Code)
}

func TestDispatch_InvalidFrames(t *testing.T) {
	h := newHarness(t)
	c := h.connect()

	h.disp.Dispatch(c.cc, []byte(`{{{`))
	assert.Equal(t, lobby.CodeInvalidPayload, c.exception().Code)

	c.send("session:dance", "r1", nil)
	ex := c.exception()
	assert.Equal(t, lobby.CodeUnknownEvent, ex.Code)
	assert.Equal(t, "session:dance", ex.Data["event"])

	h.disp.Dispatch(c.cc, []byte(`{"event":"session:create","data":{"leaderName":42}}`))
	assert.Equal(t, lobby.CodeInvalidPayload, c.exception().Code)

	c.send(protocol.EventSessionCreate, "", CreateRequest{})
	ex = c.exception()
	assert.Equal(t, lobby.CodeInvalidPayload, ex.Code)
	assert.Equal(t, "leaderName", ex.Data["field"])
}

func TestCreate_WhileBoundLeavesFirst(t *testing.T) {
	h := newHarness(t)
	alice := h.connect()
	bob := h.connect()
	alice.send(protocol.EventSessionCreate, "", CreateRequest{LeaderName: "Alice"})
	bob.send(protocol.EventSessionJoin, "", JoinRequest{SessionID: "S1", PlayerName: "Bob"})
	_, _ = alice.frames(), bob.frames()

	bob.send(protocol.EventSessionCreate, "", CreateRequest{LeaderName: "Bob"})
	assert.Equal(t, []string{protocol.EventSessionCreated}, bob.events())
	assert.Equal(t, []string{protocol.EventSessionPlayerLeaved}, alice.events())

	s1, _ := h.registry.Lookup("S1")
	s1.Lock()
	assert.Equal(t, []string{"Alice"}, s1.PlayerNames())
	s1.Unlock()

	s, _ := bob.cc.Bound()
	assert.Equal(t, "S2", s.ID)

	alice.send(protocol.EventGroupCreate, "", CreateGroupRequest{})
	assert.Empty(t, bob.events(), "bob no longer receives S1 broadcasts")
}

func (h *harness) names(id string) []string {
	h.t.Helper()
	s, err := h.registry.Lookup(id)
	require.NoError(h.t, err)
	s.Lock()
	defer s.Unlock()
	return s.PlayerNames()
}

func TestJoin_WhileBoundRejectedLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	alice := h.connect()
	bob := h.connect()
	carol := h.connect()
	alice.send(protocol.EventSessionCreate, "", CreateRequest{LeaderName: "Alice"})
	bob.send(protocol.EventSessionJoin, "", JoinRequest{SessionID: "S1", PlayerName: "Bob"})
	carol.send(protocol.EventSessionCreate, "", CreateRequest{LeaderName: "Carol"})
	_, _, _ = alice.frames(), bob.frames(), carol.frames()

	tests := []struct {
		name string
		c    *client
		req  JoinRequest
		code lobby.Code
	}{
		{"unknown session", bob, JoinRequest{SessionID: "NOPE", PlayerName: "Bob"}, lobby.CodeSessionNotFound},
		{"name taken in target", bob, JoinRequest{SessionID: "S2", PlayerName: "Carol"}, lobby.CodePlayerAlreadyExists},
		{"own session same name", bob, JoinRequest{SessionID: "S1", PlayerName: "Bob"}, lobby.CodePlayerAlreadyExists},
		{"own session taken name", bob, JoinRequest{SessionID: "S1", PlayerName: "Alice"}, lobby.CodePlayerAlreadyExists},
		{"sole member unknown session", carol, JoinRequest{SessionID: "NOPE", PlayerName: "Carol"}, lobby.CodeSessionNotFound},
	}
	for _, tt := range tests {
		before, _ := tt.c.cc.Bound()
		tt.c.send(protocol.EventSessionJoin, "r1", tt.req)
		assert.Equal(t, tt.code, tt.c.exception().Code, tt.name)

		after, _ := tt.c.cc.Bound()
		assert.Same(t, before, after, "%s: binding is unchanged", tt.name)
		assert.Empty(t, alice.events(), tt.name)
		assert.Empty(t, carol.frames(), tt.name)
		assert.Equal(t, []string{"Alice", "Bob"}, h.names("S1"), tt.name)
		assert.Equal(t, []string{"Carol"}, h.names("S2"), tt.name)
	}

	s2, _ := h.registry.Lookup("S2")
	s2.Lock()
	require.NoError(t, s2.Launch())
	s2.Unlock()
	bob.send(protocol.EventSessionJoin, "", JoinRequest{SessionID: "S2", PlayerName: "Bob"})
	assert.Equal(t, lobby.CodeAlreadyLaunched, bob.exception().Code)
	assert.Equal(t, []string{"Alice", "Bob"}, h.names("S1"))
}

func TestJoin_WhileBoundMovesSessions(t *testing.T) {
	h := newHarness(t)
	alice := h.connect()
	bob := h.connect()
	carol := h.connect()
	alice.send(protocol.EventSessionCreate, "", CreateRequest{LeaderName: "Alice"})
	bob.send(protocol.EventSessionJoin, "", JoinRequest{SessionID: "S1", PlayerName: "Bob"})
	carol.send(protocol.EventSessionCreate, "", CreateRequest{LeaderName: "Carol"})
	_, _, _ = alice.frames(), bob.frames(), carol.frames()

	bob.send(protocol.EventSessionJoin, "r1", JoinRequest{SessionID: "S2", PlayerName: "Bob"})
	assert.Equal(t, []string{protocol.EventSessionJoined}, bob.events())
	assert.Equal(t, []string{protocol.EventSessionPlayerLeaved}, alice.events())
	assert.Equal(t, []string{protocol.EventSessionPlayerJoined}, carol.events())
	assert.Equal(t, []string{"Alice"}, h.names("S1"))
	assert.Equal(t, []string{"Carol", "Bob"}, h.names("S2"))

	alice.send(protocol.EventGroupCreate, "", CreateGroupRequest{})
	assert.Empty(t, bob.events(), "bob no longer receives S1 broadcasts")
}

func TestJoin_OwnSessionUnderNewName(t *testing.T) {
	h := newHarness(t)
	alice := h.connect()
	bob := h.connect()
	alice.send(protocol.EventSessionCreate, "", CreateRequest{LeaderName: "Alice"})
	bob.send(protocol.EventSessionJoin, "", JoinRequest{SessionID: "S1", PlayerName: "Bob"})
	_, _ = alice.frames(), bob.frames()

	bob.send(protocol.EventSessionJoin, "r1", JoinRequest{SessionID: "S1", PlayerName: "Robert"})
	fs := bob.frames()
	require.Len(t, fs, 1)
	assert.Equal(t, protocol.EventSessionJoined, fs[0].Event)
	assert.Equal(t, "r1", fs[0].RequestID)
	assert.Equal(t, []string{protocol.EventSessionPlayerLeaved, protocol.EventSessionPlayerJoined}, alice.events())
	assert.Equal(t, []string{"Alice", "Robert"}, h.names("S1"))

	// A sole member renaming itself keeps the session alive.
	alice.disconnect()
	assert.Equal(t, []string{protocol.EventSessionPlayerLeaved}, bob.events())
	bob.send(protocol.EventSessionJoin, "", JoinRequest{SessionID: "S1", PlayerName: "Bobby"})
	assert.Equal(t, []string{protocol.EventSessionJoined}, bob.events())
	assert.Equal(t, []string{"Bobby"}, h.names("S1"))
}

func TestDisconnect_Idempotent(t *testing.T) {
	h := newHarness(t)
	alice := h.connect()
	bob := h.connect()
	alice.send(protocol.EventSessionCreate, "", CreateRequest{LeaderName: "Alice"})
	bob.send(protocol.EventSessionJoin, "", JoinRequest{SessionID: "S1", PlayerName: "Bob"})
	_, _ = alice.frames(), bob.frames()

	h.disp.Disconnect(bob.cc)
	h.disp.Disconnect(bob.cc)
	assert.Equal(t, []string{protocol.EventSessionPlayerLeaved}, alice.events())

	alice.disconnect()
	assert.Equal(t, 0, h.registry.Len())
}

func TestGroupAndPlayerEvents(t *testing.T) {
	h := newHarness(t)
	alice := h.connect()
	alice.send(protocol.EventSessionCreate, "", CreateRequest{LeaderName: "Alice"})
	alice.send(protocol.EventGroupCreate, "", CreateGroupRequest{GroupName: "Red"})
	alice.send(protocol.EventGroupCreate, "", CreateGroupRequest{GroupName: "Blue"})
	_ = alice.frames()

	alice.send(protocol.EventGroupCreate, "r1", CreateGroupRequest{GroupName: "Red"})
	assert.Equal(t, lobby.CodeGroupAlreadyExists, alice.exception().Code)

	alice.send(protocol.EventGroupAddPlayer, "", GroupPlayerRequest{PlayerName: "Alice", GroupIndex: 1})
	alice.send(protocol.EventGroupSwitchPlayer, "", SwitchPlayerRequest{PlayerName: "Alice", OldGroupIndex: 1, NewGroupIndex: 2})
	alice.send(protocol.EventGroupRemovePlayer, "", GroupPlayerRequest{PlayerName: "Alice", GroupIndex: 2})
	vehicle := "truck"
	alice.send(protocol.EventGroupUpdateProps, "", UpdateGroupRequest{GroupIndex: 1, UpdatedProps: lobby.GroupProps{VehicleName: &vehicle}})
	alice.send(protocol.EventPlayerUpdateProps, "", UpdatePlayerRequest{PlayerName: "Alice", UpdatedProps: lobby.PlayerProps{VehicleName: &vehicle}})
	assert.Equal(t, []string{
		protocol.EventGroupPlayerAdded,
		protocol.EventGroupPlayerSwitched,
		protocol.EventGroupPlayerRemoved,
		protocol.EventGroupPropsUpdated,
		protocol.EventPlayerPropsUpdated,
	}, alice.events())

	boat := "boat"
	alice.send(protocol.EventPlayerUpdateProps, "r2", UpdatePlayerRequest{PlayerName: "Alice", UpdatedProps: lobby.PlayerProps{VehicleName: &boat}})
	assert.Equal(t, lobby.CodeVehicleNotFound, alice.exception().Code)

	alice.send(protocol.EventGroupSwitchPlayer, "r3", SwitchPlayerRequest{PlayerName: "Alice", OldGroupIndex: 1, NewGroupIndex: 2})
	assert.Equal(t, lobby.CodePlayerNotFoundInGroup, alice.exception().Code)
}

func TestRucksackEvents(t *testing.T) {
	h := newHarness(t)
	alice := h.connect()
	alice.send(protocol.EventSessionCreate, "", CreateRequest{LeaderName: "Alice"})
	_ = alice.frames()

	alice.send(protocol.EventRucksackAddBoxItem, "", AddBoxItemRequest{PlayerName: "Alice", ItemType: catalog.ItemTypeOre, ItemName: "iron"})
	fs := alice.frames()
	require.Len(t, fs, 1)
	assert.Equal(t, protocol.EventRucksackBoxItemAdded, fs[0].Event)
	assert.JSONEq(t,
		`{"playerName":"Alice","boxItem":{"type":"ore","name":"iron","quantity":1,"totals":{"weight":2}}}`,
		string(fs[0].Data))

	zero := 0
	alice.send(protocol.EventRucksackUpdateBoxItemProps, "r0", UpdateBoxItemRequest{PlayerName: "Alice", ItemName: "iron", UpdatedProps: lobby.BoxItemProps{Quantity: &zero}})
	ex := alice.exception()
	assert.Equal(t, lobby.CodeInvalidPayload, ex.Code, "rejected quantities are never broadcast")
	assert.Equal(t, "quantity", ex.Data["field"])

	qty := 4
	alice.send(protocol.EventRucksackUpdateBoxItemProps, "", UpdateBoxItemRequest{PlayerName: "Alice", ItemName: "iron", UpdatedProps: lobby.BoxItemProps{Quantity: &qty}})
	alice.send(protocol.EventRucksackMoveToBox, "", PlayerRequest{PlayerName: "Alice"})
	assert.Equal(t, []string{protocol.EventRucksackBoxItemPropsUpdated, protocol.EventRucksackMovedToBox}, alice.events())

	alice.send(protocol.EventRucksackMoveToBox, "r1", PlayerRequest{PlayerName: "Alice"})
	assert.Equal(t, lobby.CodeBoxNotFound, alice.exception().Code)

	alice.send(protocol.EventRucksackAddBoxItem, "r2", AddBoxItemRequest{PlayerName: "Alice", ItemType: catalog.ItemTypeHarvest, ItemName: "iron"})
	assert.Equal(t, lobby.CodeItemNotFound, alice.exception().Code)
}

func TestConcurrentJoinsAndLeaves(t *testing.T) {
	h := newHarness(t)
	leader := h.connect()
	leader.send(protocol.EventSessionCreate, "", CreateRequest{LeaderName: "Leader"})

	const n = 20
	clients := make([]*client, n)
	for i := range clients {
		clients[i] = h.connect()
	}
	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func(i int, c *client) {
			defer wg.Done()
			raw, _ := protocol.Encode(protocol.EventSessionJoin, "", JoinRequest{SessionID: "S1", PlayerName: fmt.Sprintf("p%d", i)})
			h.disp.Dispatch(c.cc, raw)
			if i%2 == 0 {
				h.disp.Disconnect(c.cc)
			}
		}(i, c)
	}
	wg.Wait()

	s, err := h.registry.Lookup("S1")
	require.NoError(t, err)
	s.Lock()
	defer s.Unlock()
	assert.Len(t, s.PlayerNames(), 1+n/2)
}
