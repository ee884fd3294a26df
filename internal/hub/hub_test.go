// internal/hub/hub_test.go
package hub

import (
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xoduel/xoduel/internal/auth"
	"github.com/xoduel/xoduel/internal/clock"
)

func newTestHub(t *testing.T) (*Hub, *clock.Fake) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	clk := clock.NewFake(time.Unix(1700000000, 0))
	h := New(Options{
		Logger:               logger,
		Clock:                clk,
		Verifier:             auth.NewJWTVerifier("test-key"),
		BaseURL:              "http://localhost:8080",
		QueueJoinThrottle:    3 * time.Second,
		InviteTTL:            30 * time.Minute,
		OnlineStatsInterval:  time.Hour,
		MaxMessagesPerSecond: 30,
	})
	return h, clk
}

func newTestConn() *Conn {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Conn{
		logger: logger,
		remote: "test",
		out:    make(chan []byte, outboundBuffer),
	}
}

// connect opens a connection and completes the hello handshake.
func connect(h *Hub, c *Conn, uid string) {
	h.dispatch(connOpened{c: c})
	h.dispatch(inboundFrame{c: c, data: []byte(fmt.Sprintf(`{"t":"hello","uid":%q,"name":"Player %s"}`, uid, uid))})
	drain(c)
}

func send(h *Hub, c *Conn, frame string) {
	h.dispatch(inboundFrame{c: c, data: []byte(frame)})
}

// drain empties the connection's outbound queue, returning decoded frames.
func drain(c *Conn) []map[string]interface{} {
	var frames []map[string]interface{}
	for {
		select {
		case data := <-c.out:
			var m map[string]interface{}
			if err := json.Unmarshal(data, &m); err == nil {
				frames = append(frames, m)
			}
		default:
			return frames
		}
	}
}

func frameTypes(frames []map[string]interface{}) []string {
	types := make([]string, 0, len(frames))
	for _, f := range frames {
		if t, ok := f["t"].(string); ok {
			types = append(types, t)
		}
	}
	return types
}

func findFrame(frames []map[string]interface{}, t string) map[string]interface{} {
	for _, f := range frames {
		if f["t"] == t {
			return f
		}
	}
	return nil
}

func TestQueuePairingSendsLeftThenStart(t *testing.T) {
	h, _ := newTestHub(t)
	connA, connB := newTestConn(), newTestConn()
	connect(h, connA, "a")
	connect(h, connB, "b")

	send(h, connA, `{"t":"queue.join"}`)
	framesA := drain(connA)
	assert.Contains(t, frameTypes(framesA), "queue.joined")
	waiting := findFrame(framesA, "queue.waiting")
	require.NotNil(t, waiting)
	assert.EqualValues(t, 1, waiting["position"])

	send(h, connB, `{"t":"queue.join"}`)
	framesA = drain(connA)
	framesB := drain(connB)

	// Both leave the queue and then receive game.start.
	typesA := frameTypes(framesA)
	typesB := frameTypes(framesB)
	assert.Contains(t, typesA, "queue.left")
	assert.Contains(t, typesB, "queue.left")

	startA := findFrame(framesA, "game.start")
	startB := findFrame(framesB, "game.start")
	require.NotNil(t, startA)
	require.NotNil(t, startB)
	assert.Equal(t, startA["gameId"], startB["gameId"])
	assert.NotEqual(t, startA["you"], startB["you"])
	assert.Equal(t, "X", startA["turn"])

	oppA := startA["opp"].(map[string]interface{})
	oppB := startB["opp"].(map[string]interface{})
	assert.Equal(t, "b", oppA["id"])
	assert.Equal(t, "a", oppB["id"])
}

func TestQueueJoinThrottled(t *testing.T) {
	h, clk := newTestHub(t)
	c := newTestConn()
	connect(h, c, "a")

	send(h, c, `{"t":"queue.join"}`)
	drain(c)

	clk.Advance(time.Second)
	send(h, c, `{"t":"queue.join"}`)
	frames := drain(c)
	throttled := findFrame(frames, "queue.throttled")
	require.NotNil(t, throttled)
	assert.Positive(t, throttled["retryIn"].(float64))
	assert.Nil(t, findFrame(frames, "queue.joined"))
}

func TestQueueLeave(t *testing.T) {
	h, _ := newTestHub(t)
	c := newTestConn()
	connect(h, c, "a")

	send(h, c, `{"t":"queue.join"}`)
	drain(c)
	send(h, c, `{"t":"queue.leave"}`)
	frames := drain(c)
	assert.NotNil(t, findFrame(frames, "queue.left"))

	// Leaving again is a no-op.
	send(h, c, `{"t":"queue.leave"}`)
	assert.Nil(t, findFrame(drain(c), "queue.left"))
}

func TestInviteFlowStartsGame(t *testing.T) {
	h, _ := newTestHub(t)
	host, guest := newTestConn(), newTestConn()
	connect(h, host, "host")
	connect(h, guest, "guest")

	send(h, host, `{"t":"invite.create"}`)
	frames := drain(host)
	created := findFrame(frames, "invite.created")
	require.NotNil(t, created)
	code := created["code"].(string)
	assert.Contains(t, created["link"], code)
	require.NotNil(t, findFrame(frames, "invite.waiting"))

	send(h, guest, fmt.Sprintf(`{"t":"invite.accept","code":%q}`, code))
	hostFrames := drain(host)
	guestFrames := drain(guest)

	hostConnected := findFrame(hostFrames, "invite.connected")
	require.NotNil(t, hostConnected)
	assert.Equal(t, "guest", hostConnected["guest"])
	guestConnected := findFrame(guestFrames, "invite.connected")
	require.NotNil(t, guestConnected)
	assert.Equal(t, "host", guestConnected["host"])

	require.NotNil(t, findFrame(hostFrames, "game.start"))
	require.NotNil(t, findFrame(guestFrames, "game.start"))
}

func TestInviteCreateReusesPendingCode(t *testing.T) {
	h, _ := newTestHub(t)
	host := newTestConn()
	connect(h, host, "host")

	send(h, host, `{"t":"invite.create"}`)
	first := findFrame(drain(host), "invite.created")
	send(h, host, `{"t":"invite.create"}`)
	second := findFrame(drain(host), "invite.created")
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first["code"], second["code"])
}

func TestInviteAcceptFailures(t *testing.T) {
	h, clk := newTestHub(t)
	host, guest := newTestConn(), newTestConn()
	connect(h, host, "host")
	connect(h, guest, "guest")

	send(h, guest, `{"t":"invite.accept","code":"missing123"}`)
	invalid := findFrame(drain(guest), "invite.invalid")
	require.NotNil(t, invalid)
	assert.Equal(t, "not_found", invalid["reason"])

	send(h, host, `{"t":"invite.create"}`)
	code := findFrame(drain(host), "invite.created")["code"].(string)

	send(h, host, fmt.Sprintf(`{"t":"invite.accept","code":%q}`, code))
	invalid = findFrame(drain(host), "invite.invalid")
	require.NotNil(t, invalid)
	assert.Equal(t, "self", invalid["reason"])

	clk.Advance(31 * time.Minute)
	send(h, guest, fmt.Sprintf(`{"t":"invite.accept","code":%q}`, code))
	invalid = findFrame(drain(guest), "invite.invalid")
	require.NotNil(t, invalid)
	assert.Equal(t, "expired", invalid["reason"])
}

func TestInviteAcceptHostOffline(t *testing.T) {
	h, _ := newTestHub(t)
	host, guest := newTestConn(), newTestConn()
	connect(h, host, "host")
	connect(h, guest, "guest")

	send(h, host, `{"t":"invite.create"}`)
	code := findFrame(drain(host), "invite.created")["code"].(string)

	h.dispatch(connClosed{c: host})
	send(h, guest, fmt.Sprintf(`{"t":"invite.accept","code":%q}`, code))
	invalid := findFrame(drain(guest), "invite.invalid")
	require.NotNil(t, invalid)
	assert.Equal(t, "host_offline", invalid["reason"])
}

func playQueueMatch(t *testing.T, h *Hub, connA, connB *Conn) string {
	t.Helper()
	send(h, connA, `{"t":"queue.join"}`)
	drain(connA)
	send(h, connB, `{"t":"queue.join"}`)
	startA := findFrame(drain(connA), "game.start")
	require.NotNil(t, startA)
	drain(connB)
	return startA["gameId"].(string)
}

func TestRematchFlow(t *testing.T) {
	h, clk := newTestHub(t)
	connA, connB := newTestConn(), newTestConn()
	connect(h, connA, "a")
	connect(h, connB, "b")

	gameID := playQueueMatch(t, h, connA, connB)
	send(h, connA, fmt.Sprintf(`{"t":"game.resign","gameId":%q}`, gameID))
	drain(connA)
	drain(connB)

	// A offers, B sees the offer with A's profile.
	send(h, connA, `{"t":"rematch.offer"}`)
	offer := findFrame(drain(connB), "rematch.offer")
	require.NotNil(t, offer)
	assert.Equal(t, "a", offer["from"].(map[string]interface{})["id"])

	// B accepts: a fresh game starts without either re-joining the queue.
	clk.Advance(time.Minute)
	send(h, connB, `{"t":"rematch.accept","to":"a"}`)
	startA := findFrame(drain(connA), "game.start")
	startB := findFrame(drain(connB), "game.start")
	require.NotNil(t, startA)
	require.NotNil(t, startB)
	assert.NotEqual(t, gameID, startA["gameId"])
	assert.Equal(t, startA["gameId"], startB["gameId"])
}

func TestRematchDeclineNotifiesBothSides(t *testing.T) {
	h, _ := newTestHub(t)
	connA, connB := newTestConn(), newTestConn()
	connect(h, connA, "a")
	connect(h, connB, "b")

	gameID := playQueueMatch(t, h, connA, connB)
	send(h, connA, fmt.Sprintf(`{"t":"game.resign","gameId":%q}`, gameID))
	drain(connA)
	drain(connB)

	send(h, connB, `{"t":"rematch.decline","to":"a"}`)
	declinedA := findFrame(drain(connA), "rematch.declined")
	declinedB := findFrame(drain(connB), "rematch.declined")
	require.NotNil(t, declinedA)
	require.NotNil(t, declinedB)
	assert.Equal(t, "b", declinedA["by"])
}

func TestRematchOfferWithoutOpponentJoinsQueue(t *testing.T) {
	h, _ := newTestHub(t)
	c := newTestConn()
	connect(h, c, "a")

	send(h, c, `{"t":"rematch.offer"}`)
	frames := drain(c)
	assert.NotNil(t, findFrame(frames, "queue.joined"))
}

func TestDisconnectMidGameResolvesSession(t *testing.T) {
	h, _ := newTestHub(t)
	connA, connB := newTestConn(), newTestConn()
	connect(h, connA, "a")
	connect(h, connB, "b")
	playQueueMatch(t, h, connA, connB)

	h.dispatch(connClosed{c: connB})
	end := findFrame(drain(connA), "game.end")
	require.NotNil(t, end)
	assert.Equal(t, "disconnect", end["reason"])
	assert.NotEmpty(t, end["by"])
	assert.Equal(t, 0, h.games.Active())
}

func TestRebindClosesOldConnWithoutCascade(t *testing.T) {
	h, _ := newTestHub(t)
	oldConn, connB := newTestConn(), newTestConn()
	connect(h, oldConn, "a")
	connect(h, connB, "b")
	playQueueMatch(t, h, oldConn, connB)

	// Same identity reconnects; the old connection's eventual close event
	// must not tear down the running game.
	replacement := newTestConn()
	connect(h, replacement, "a")
	h.dispatch(connClosed{c: oldConn})

	assert.Equal(t, 1, h.games.Active())
	assert.Nil(t, findFrame(drain(connB), "game.end"))
}

func TestHelloWithValidTokenCountsVerified(t *testing.T) {
	h, _ := newTestHub(t)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "a"}).
		SignedString([]byte("test-key"))
	require.NoError(t, err)

	c := newTestConn()
	h.dispatch(connOpened{c: c})
	send(h, c, fmt.Sprintf(`{"t":"hello","uid":"a","name":"Alice","authToken":%q}`, token))
	stats := findFrame(drain(c), "online.stats")
	require.NotNil(t, stats)
	assert.EqualValues(t, 1, stats["total"])
	assert.EqualValues(t, 1, stats["verified"])
	assert.EqualValues(t, 0, stats["guest"])
}

func TestHelloWithBadTokenStaysGuest(t *testing.T) {
	h, _ := newTestHub(t)

	c := newTestConn()
	h.dispatch(connOpened{c: c})
	send(h, c, `{"t":"hello","uid":"a","authToken":"garbage"}`)
	stats := findFrame(drain(c), "online.stats")
	require.NotNil(t, stats)
	assert.EqualValues(t, 0, stats["verified"])
	assert.EqualValues(t, 1, stats["guest"])
}

func TestFramesBeforeHelloAreDropped(t *testing.T) {
	h, _ := newTestHub(t)
	c := newTestConn()
	h.dispatch(connOpened{c: c})
	drain(c)

	send(h, c, `{"t":"queue.join"}`)
	assert.Empty(t, drain(c))
}

func TestMalformedFramesAreDroppedSilently(t *testing.T) {
	h, _ := newTestHub(t)
	c := newTestConn()
	connect(h, c, "a")

	for _, raw := range []string{
		`not json`,
		`{}`,
		`{"t":"hello"}`,
		`{"t":"game.move","gameId":"x"}`,
		`{"t":"game.move","gameId":"x","i":9}`,
		`{"t":"invite.accept"}`,
	} {
		send(h, c, raw)
	}
	assert.Empty(t, drain(c))
}

func TestRateCapResetsPerWindow(t *testing.T) {
	clk := clock.NewFake(time.Unix(1700000000, 0))
	c := newTestConn()

	for i := 0; i < 30; i++ {
		require.True(t, c.AllowMessage(clk.Now(), 30))
	}
	assert.False(t, c.AllowMessage(clk.Now(), 30))

	// A fresh window resets the count.
	clk.Advance(1100 * time.Millisecond)
	assert.True(t, c.AllowMessage(clk.Now(), 30))
}
