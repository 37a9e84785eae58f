package bus

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector gathers payloads from concurrent handlers.
type collector struct {
	mu  sync.Mutex
	got []string
}

func (c *collector) handle(_ context.Context, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, string(payload))
}

func (c *collector) payloads() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.got...)
}

// --- Envelope decoding ---

func TestDecodeOutbound_Raw(t *testing.T) {
	ev, err := DecodeOutbound([]byte(`{"ContactId":"c1","Type":"MESSAGE","Content":"hi","ParticipantRole":"AGENT","Id":"m1"}`))
	require.NoError(t, err)
	assert.Equal(t, OutboundEvent{ContactID: "c1", Type: "MESSAGE", Content: "hi", ParticipantRole: "AGENT", ID: "m1"}, ev)
}

func TestDecodeOutbound_SNSEnvelope(t *testing.T) {
	raw := `{
		"Type": "Notification",
		"MessageId": "sns-1",
		"Message": "{\"ContactId\":\"c1\",\"Type\":\"MESSAGE\",\"Content\":\"hello\"}",
		"MessageAttributes": {
			"MessageVisibility": {"Type": "String", "Value": "CUSTOMER"},
			"ContactId": {"Type": "String", "Value": "c1"}
		}
	}`
	ev, err := DecodeOutbound([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "c1", ev.ContactID)
	assert.Equal(t, "hello", ev.Content)
	assert.Equal(t, "CUSTOMER", ev.MessageVisibility)
}

func TestDecodeOutbound_Malformed(t *testing.T) {
	_, err := DecodeOutbound([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeOutbound([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeOutbound([]byte(`{"Type":"Notification","Message":"garbage"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

// --- Visibility filter ---

func TestVisibilityFilter(t *testing.T) {
	c := &collector{}
	h := VisibilityFilter([]string{"CUSTOMER", "ALL"}, c.handle, nil)
	ctx := context.Background()

	h(ctx, []byte(`{"ContactId":"1","MessageVisibility":"CUSTOMER"}`))
	h(ctx, []byte(`{"ContactId":"2","MessageVisibility":"AGENT"}`))
	h(ctx, []byte(`{"ContactId":"3"}`))
	h(ctx, []byte(`{"Type":"Notification","Message":"{\"ContactId\":\"4\"}","MessageAttributes":{"MessageVisibility":{"Type":"String","Value":"ALL"}}}`))
	h(ctx, []byte(`{"Type":"Notification","Message":"{\"ContactId\":\"5\"}","MessageAttributes":{"MessageVisibility":{"Type":"String","Value":"AGENT"}}}`))

	got := c.payloads()
	require.Len(t, got, 3)
	assert.Contains(t, got[0], `"1"`)
	assert.Contains(t, got[1], `"3"`)
	assert.Contains(t, got[2], `\"4\"`)
}

// --- In-process bus ---

func TestMessageBus_PublishAndConsume(t *testing.T) {
	b := NewMessageBus(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, b.Publish(ctx, "out", []byte("one")))
	require.NoError(t, b.Publish(ctx, "other", []byte("two")))

	c := &collector{}
	go b.Subscribe("out").Run(ctx, c.handle)

	require.Eventually(t, func() bool { return len(c.payloads()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"one"}, c.payloads())

	other := &collector{}
	go b.Subscribe("other").Run(ctx, other.handle)
	require.Eventually(t, func() bool { return len(other.payloads()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestMessageBus_PublishRespectsContext(t *testing.T) {
	b := NewMessageBus(1)
	require.NoError(t, b.Publish(context.Background(), "t", []byte("fill")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Publish(ctx, "t", []byte("blocked")), context.DeadlineExceeded)
}

// --- Consumer ---

func TestConsumer_BoundsConcurrency(t *testing.T) {
	b := NewMessageBus(100)
	ctx, cancel := context.WithCancel(context.Background())

	var (
		inflight atomic.Int32
		peak     atomic.Int32
		done     atomic.Int32
	)
	handle := func(context.Context, []byte) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inflight.Add(-1)
		done.Add(1)
	}
	for i := 0; i < 30; i++ {
		require.NoError(t, b.Publish(ctx, "t", []byte("x")))
	}

	c := NewConsumer("test", b.Subscribe("t"), handle, 3, nil)
	stopped := make(chan error, 1)
	go func() { stopped <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return done.Load() == 30 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-stopped)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestConsumer_RecoversPanics(t *testing.T) {
	b := NewMessageBus(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	c := NewConsumer("panicky", b.Subscribe("t"), func(context.Context, []byte) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
	}, 1, nil)
	go c.Run(ctx)

	require.NoError(t, b.Publish(ctx, "t", []byte("1")))
	require.NoError(t, b.Publish(ctx, "t", []byte("2")))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestConsumer_OrderBySerializesKeys(t *testing.T) {
	b := NewMessageBus(100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu  sync.Mutex
		got = map[string][]string{}
	)
	handle := func(_ context.Context, payload []byte) {
		key, seq, _ := strings.Cut(string(payload), ":")
		if seq == "0" {
			time.Sleep(20 * time.Millisecond)
		}
		mu.Lock()
		got[key] = append(got[key], seq)
		mu.Unlock()
	}
	for i := 0; i < 5; i++ {
		for _, key := range []string{"a", "b"} {
			require.NoError(t, b.Publish(ctx, "t", []byte(fmt.Sprintf("%s:%d", key, i))))
		}
	}

	keyOf := func(p []byte) string {
		k, _, _ := strings.Cut(string(p), ":")
		return k
	}
	c := NewConsumer("ordered", b.Subscribe("t"), handle, 4, nil).OrderBy(keyOf)
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got["a"]) == 5 && len(got["b"]) == 5
	}, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, got["a"])
	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, got["b"])
}

// --- Redis pub/sub ---

func TestRedisBus_PublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	b := NewRedisBus(client, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	stopped := make(chan error, 1)
	go func() { stopped <- b.Subscribe("chatgw:outbound").Run(ctx, c.handle) }()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("chatgw:outbound")["chatgw:outbound"] == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Publish(ctx, "chatgw:outbound", []byte(`{"ContactId":"c1"}`)))
	require.Eventually(t, func() bool { return len(c.payloads()) == 1 }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"ContactId":"c1"}`, c.payloads()[0])

	cancel()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("subscription did not stop")
	}
}

// --- WebSocket relay ---

func TestWebSocketSource_ReceivesAndStops(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var authHeader atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader.Store(r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"ContactId":"c1"}`))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0x00})
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"ContactId":"c2"}`))
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	src := NewWebSocketSource(url, "relay-token", nil)

	ctx, cancel := context.WithCancel(context.Background())
	c := &collector{}
	stopped := make(chan error, 1)
	go func() { stopped <- src.Run(ctx, c.handle) }()

	require.Eventually(t, func() bool { return len(c.payloads()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{`{"ContactId":"c1"}`, `{"ContactId":"c2"}`}, c.payloads())
	assert.Equal(t, "Bearer relay-token", authHeader.Load())

	cancel()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("websocket source did not stop")
	}
}

func TestWebSocketSource_ReconnectsAfterDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := conns.Add(1)
		_ = conn.WriteMessage(websocket.TextMessage, []byte{byte('0' + n)})
		conn.Close()
	}))
	defer srv.Close()

	src := NewWebSocketSource("ws"+strings.TrimPrefix(srv.URL, "http"), "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	go src.Run(ctx, c.handle)

	require.Eventually(t, func() bool { return len(c.payloads()) >= 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"1", "2"}, c.payloads()[:2])
}
