package protocol

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/rushlobby/internal/lobby"
)

type sent struct {
	kind   string
	room   string
	conn   string
	except string
	frame  Frame
}

type recordingTransport struct {
	mu      sync.Mutex
	calls   []sent
	sendErr error
}

func (r *recordingTransport) decode(frame []byte) Frame {
	var f Frame
	_ = json.Unmarshal(frame, &f)
	return f
}

func (r *recordingTransport) Send(connID string, frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sent{kind: "send", conn: connID, frame: r.decode(frame)})
	return r.sendErr
}

func (r *recordingTransport) Broadcast(room, exceptConnID string, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sent{kind: "broadcast", room: room, except: exceptConnID, frame: r.decode(frame)})
}

func (r *recordingTransport) Subscribe(room, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sent{kind: "subscribe", room: room, conn: connID})
}

func (r *recordingTransport) Unsubscribe(room, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sent{kind: "unsubscribe", room: room, conn: connID})
}

func TestDecode(t *testing.T) {
	f, err := Decode([]byte(`{"event":"group:create","requestId":"r1","data":{"name":"Red"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventGroupCreate, f.Event)
	assert.Equal(t, "r1", f.RequestID)
	assert.JSONEq(t, `{"name":"Red"}`, string(f.Data))
}

func TestDecode_Invalid(t *testing.T) {
	for _, raw := range []string{`not json`, `{"data":{}}`, `[]`} {
		_, err := Decode([]byte(raw))
		assert.True(t, lobby.IsCode(err, lobby.CodeInvalidPayload), "input %q", raw)
	}
}

func TestEncode_OmitsEmptyFields(t *testing.T) {
	raw, err := Encode(EventSessionLaunched, "", map[string]string{"sessionId": "S1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"session:launched","data":{"sessionId":"S1"}}`, string(raw))

	raw, err = Encode(EventSessionLaunched, "r9", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"session:launched","requestId":"r9"}`, string(raw))
}

func TestException(t *testing.T) {
	env := Exception(lobby.ErrSessionNotFound("S9"))
	assert.Equal(t, Unicast, env.Delivery)
	assert.Equal(t, EventException, env.Event)

	raw, err := Encode(env.Event, "r1", env.Data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"exception","requestId":"r1","data":{"code":"sessionNotFound","data":{"sessionId":"S9"}}}`, string(raw))

	env = Exception(errors.New("disk on fire"))
	assert.Equal(t, lobby.CodeUnknown, env.Data.(ExceptionData).Code)
}

func TestDeliver_Order(t *testing.T) {
	tr := &recordingTransport{}
	target := Target{ConnID: "c1", RequestID: "r1", Room: "S1"}
	Deliver(tr, zaptest.NewLogger(t), target, Outcome{
		Subscribe: "S1",
		Envelopes: []Envelope{
			Reply(EventSessionJoined, map[string]string{"x": "y"}),
			ToOthers(EventSessionPlayerJoined, nil),
			ToAll(EventGroupCreated, nil),
		},
	})

	require.Len(t, tr.calls, 4)
	assert.Equal(t, sent{kind: "subscribe", room: "S1", conn: "c1"}, tr.calls[0])

	assert.Equal(t, "send", tr.calls[1].kind)
	assert.Equal(t, "c1", tr.calls[1].conn)
	assert.Equal(t, "r1", tr.calls[1].frame.RequestID, "unicast echoes request id")

	assert.Equal(t, "broadcast", tr.calls[2].kind)
	assert.Equal(t, "c1", tr.calls[2].except)
	assert.Empty(t, tr.calls[2].frame.RequestID)

	assert.Equal(t, "broadcast", tr.calls[3].kind)
	assert.Empty(t, tr.calls[3].except)
	assert.Equal(t, EventGroupCreated, tr.calls[3].frame.Event)
}

func TestDeliver_UnsubscribeFirst(t *testing.T) {
	tr := &recordingTransport{}
	Deliver(tr, zaptest.NewLogger(t), Target{ConnID: "c1", Room: "S1"}, Outcome{
		Unsubscribe: "S1",
		Envelopes:   []Envelope{ToOthers(EventSessionPlayerLeaved, map[string]string{"playerName": "Bob"})},
	})
	require.Len(t, tr.calls, 2)
	assert.Equal(t, "unsubscribe", tr.calls[0].kind)
	assert.Equal(t, "S1", tr.calls[1].room)
}

func TestDeliver_SendFailureIsDropped(t *testing.T) {
	tr := &recordingTransport{sendErr: errors.New("buffer full")}
	Deliver(tr, zaptest.NewLogger(t), Target{ConnID: "c1", Room: "S1"}, Outcome{
		Envelopes: []Envelope{Reply(EventSessionCreated, nil), ToAll(EventGroupCreated, nil)},
	})
	assert.Len(t, tr.calls, 2, "later envelopes are still delivered")
}

func TestDelivery_String(t *testing.T) {
	assert.Equal(t, "unicast", Unicast.String())
	assert.Equal(t, "broadcast_include", BroadcastInclude.String())
	assert.Equal(t, "delivery(7)", Delivery(7).String())
}
