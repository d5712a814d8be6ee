package room

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/codebreaker-backend/internal/archive"
	"github.com/DoyleJ11/codebreaker-backend/internal/engine"
	"github.com/DoyleJ11/codebreaker-backend/internal/types"
)

type chanConn struct {
	ch     chan types.ServerMessage
	closed atomic.Bool
}

func newConn() *chanConn { return &chanConn{ch: make(chan types.ServerMessage, 16)} }

func (c *chanConn) Send(msg types.ServerMessage) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.ch <- msg:
		return true
	default:
		return false
	}
}

type fakeRecorder struct {
	got chan archive.Result
}

func (f *fakeRecorder) Record(_ context.Context, res archive.Result) error {
	f.got <- res
	return nil
}

// helper: receive one message with a timeout so tests never hang
func recv(t *testing.T, c *chanConn, within time.Duration) types.ServerMessage {
	t.Helper()
	select {
	case msg := <-c.ch:
		return msg
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return types.ServerMessage{} // unreachable
	}
}

func recvType(t *testing.T, c *chanConn, typ string) types.ServerMessage {
	t.Helper()
	msg := recv(t, c, 500*time.Millisecond)
	require.Equal(t, typ, msg.Type, "unexpected message %+v", msg)
	return msg
}

func recvNone(t *testing.T, c *chanConn, within time.Duration) {
	t.Helper()
	select {
	case msg := <-c.ch:
		t.Fatalf("expected no message within %v, but got: %+v", within, msg)
	case <-time.After(within):
		// good: nothing delivered
	}
}

func fixedSecrets(codes ...string) func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i%len(codes)]
		i++
		return c
	}
}

func newTestRoom(t *testing.T, opts Options) (*Room, *chanConn) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	if opts.Secrets == nil {
		opts.Secrets = fixedSecrets("1234", "5678")
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	admin := newConn()
	r := NewRoom(ctx, "4821", Seat{PlayerID: "a", Name: "Alice", Conn: admin}, opts)
	first := recvType(t, admin, types.MsgState)
	require.Equal(t, "4821", first.RoomCode)
	return r, admin
}

func snapshot(t *testing.T, r *Room) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := r.Snapshot(ctx)
	require.NoError(t, err)
	return v
}

func join(t *testing.T, r *Room, id, name string, others ...*chanConn) *chanConn {
	t.Helper()
	c := newConn()
	require.NoError(t, r.Join(context.Background(), Seat{PlayerID: id, Name: name, Conn: c}))
	for _, o := range append(others, c) {
		n := recvType(t, o, types.MsgNotification)
		require.Equal(t, name+" joined the game", n.Notification)
		recvType(t, o, types.MsgState)
	}
	return c
}

func start(t *testing.T, r *Room, conns ...*chanConn) {
	t.Helper()
	require.NoError(t, r.Submit(context.Background(), engine.Command{Type: engine.CmdStartGame, PlayerID: "a"}))
	for _, c := range conns {
		recvType(t, c, types.MsgTurnStarted)
		st := recvType(t, c, types.MsgState)
		require.Equal(t, engine.PhaseActive, st.State.Phase)
	}
}

func TestRoom_CreatorSeesLobbyWithoutSecret(t *testing.T) {
	r, _ := newTestRoom(t, Options{})
	v := snapshot(t, r)

	assert.Equal(t, engine.PhaseLobby, v.State.Phase)
	assert.Equal(t, "a", v.State.AdminID)
	assert.Equal(t, "1234", v.State.Secret)
	assert.False(t, v.TimerArmed)
	assert.Empty(t, engine.Sanitize(v.State).Secret)
}

func TestRoom_JoinRejections(t *testing.T) {
	r, admin := newTestRoom(t, Options{})
	b := join(t, r, "b", "Bob", admin)

	err := r.Join(context.Background(), Seat{PlayerID: "b", Name: "Bob", Conn: newConn()})
	require.ErrorIs(t, err, engine.ErrAlreadyJoined)

	c := join(t, r, "c", "Cat", admin, b)
	join(t, r, "d", "Dan", admin, b, c)

	err = r.Join(context.Background(), Seat{PlayerID: "e", Name: "Eve", Conn: newConn()})
	require.ErrorIs(t, err, engine.ErrRoomFull)

	recvNone(t, admin, 50*time.Millisecond)
}

func TestRoom_JoinAfterStartRejected(t *testing.T) {
	r, admin := newTestRoom(t, Options{TurnTimeout: time.Minute})
	start(t, r, admin)

	err := r.Join(context.Background(), Seat{PlayerID: "b", Name: "Bob", Conn: newConn()})
	require.ErrorIs(t, err, engine.ErrGameInProgress)
}

func TestRoom_StartArmsTimer(t *testing.T) {
	r, admin := newTestRoom(t, Options{TurnTimeout: time.Minute})
	b := join(t, r, "b", "Bob", admin)

	// Non-admin start is dropped without a broadcast.
	err := r.Submit(context.Background(), engine.Command{Type: engine.CmdStartGame, PlayerID: "b"})
	require.ErrorIs(t, err, engine.ErrNotAdmin)
	recvNone(t, admin, 50*time.Millisecond)

	start(t, r, admin, b)
	v := snapshot(t, r)
	assert.True(t, v.TimerArmed)
	assert.False(t, v.State.TurnDeadline.IsZero())
}

func TestRoom_TimerFires_AdvancesTurn(t *testing.T) {
	r, admin := newTestRoom(t, Options{TurnTimeout: 50 * time.Millisecond})
	b := join(t, r, "b", "Bob", admin)
	start(t, r, admin, b)

	ts := recv(t, admin, 500*time.Millisecond)
	require.Equal(t, types.MsgTurnStarted, ts.Type)
	require.NotNil(t, ts.CurrentTurn)
	assert.Equal(t, 1, *ts.CurrentTurn)

	st := recvType(t, admin, types.MsgState)
	assert.Equal(t, 1, st.State.Turn)
	assert.Equal(t, "b", st.State.CurrentPlayerID)
	assert.Equal(t, 1, st.State.Round)

	r.Shutdown()
}

func TestRoom_WrongTurnGuessIsDroppedSilently(t *testing.T) {
	r, admin := newTestRoom(t, Options{TurnTimeout: time.Minute})
	b := join(t, r, "b", "Bob", admin)
	start(t, r, admin, b)

	err := r.Submit(context.Background(), engine.Command{Type: engine.CmdGuess, PlayerID: "b", Guess: "5678"})
	require.ErrorIs(t, err, engine.ErrWrongTurn)

	recvNone(t, admin, 50*time.Millisecond)
	recvNone(t, b, 10*time.Millisecond)
	assert.Equal(t, 0, snapshot(t, r).State.Turn)
}

func TestRoom_StaleTimerAfterGuess_SingleAdvance(t *testing.T) {
	r, admin := newTestRoom(t, Options{TurnTimeout: time.Minute})
	b := join(t, r, "b", "Bob", admin)
	start(t, r, admin, b)

	gen := snapshot(t, r).TimerGen

	// The guess and the expiry for the same turn race; the guess wins.
	require.NoError(t, r.Submit(context.Background(), engine.Command{Type: engine.CmdGuess, PlayerID: "a", Guess: "5678"}))
	r.Inbox() <- TimerFired{Gen: gen}

	v := snapshot(t, r)
	assert.Equal(t, 1, v.State.Turn)
	assert.Equal(t, 1, v.State.Round)
	assert.NotEqual(t, gen, v.TimerGen)
}

func TestRoom_TimerBeforeGuess_SingleAdvance(t *testing.T) {
	r, admin := newTestRoom(t, Options{TurnTimeout: time.Minute})
	b := join(t, r, "b", "Bob", admin)
	start(t, r, admin, b)

	gen := snapshot(t, r).TimerGen

	// The expiry wins; the late guess is now out of turn.
	r.Inbox() <- TimerFired{Gen: gen}
	err := r.Submit(context.Background(), engine.Command{Type: engine.CmdGuess, PlayerID: "a", Guess: "5678"})
	require.ErrorIs(t, err, engine.ErrWrongTurn)

	v := snapshot(t, r)
	assert.Equal(t, 1, v.State.Turn)
	assert.Empty(t, v.State.Participants[0].Guesses)
}

func TestRoom_LeaveRestartsTimer(t *testing.T) {
	r, admin := newTestRoom(t, Options{TurnTimeout: time.Minute})
	b := join(t, r, "b", "Bob", admin)
	start(t, r, admin, b)
	before := snapshot(t, r).TimerGen

	r.Leave("b")

	n := recvType(t, admin, types.MsgNotification)
	assert.Equal(t, "Bob left the game", n.Notification)
	recvType(t, admin, types.MsgTurnStarted)
	st := recvType(t, admin, types.MsgState)
	assert.Len(t, st.State.Participants, 1)

	v := snapshot(t, r)
	assert.True(t, v.TimerArmed)
	assert.Greater(t, v.TimerGen, before)
	assert.Equal(t, 1, v.NumClients)
}

func TestRoom_LastLeaveShutsDown_NoTimerFire(t *testing.T) {
	emptied := make(chan string, 1)
	r, admin := newTestRoom(t, Options{
		TurnTimeout: 30 * time.Millisecond,
		OnEmpty:     func(code string, _ *Room) { emptied <- code },
	})
	start(t, r, admin)

	r.Leave("a")

	select {
	case code := <-emptied:
		assert.Equal(t, "4821", code)
	case <-time.After(time.Second):
		t.Fatalf("OnEmpty not called")
	}
	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatalf("room did not shut down")
	}

	err := r.Submit(context.Background(), engine.Command{Type: engine.CmdTimeoutAdvance})
	require.ErrorIs(t, err, ErrRoomNotFound)

	_, err = r.Snapshot(context.Background())
	require.ErrorIs(t, err, ErrRoomNotFound)

	// The first turn may have expired before the leave landed; anything
	// after shutdown would be a leaked timer.
	for len(admin.ch) > 0 {
		<-admin.ch
	}
	recvNone(t, admin, 150*time.Millisecond)
}

func TestRoom_FinishRevealsSecretAndRecords(t *testing.T) {
	rec := &fakeRecorder{got: make(chan archive.Result, 1)}
	r, admin := newTestRoom(t, Options{TurnTimeout: time.Minute, Recorder: rec})
	start(t, r, admin)

	require.NoError(t, r.Submit(context.Background(), engine.Command{Type: engine.CmdGuess, PlayerID: "a", Guess: "1234"}))

	st := recvType(t, admin, types.MsgState)
	assert.Equal(t, engine.PhaseFinished, st.State.Phase)
	assert.Equal(t, "1234", st.State.Secret)
	assert.Equal(t, "a", st.State.WinnerID)
	assert.False(t, snapshot(t, r).TimerArmed)

	select {
	case res := <-rec.got:
		assert.Equal(t, "4821", res.RoomCode)
		assert.Equal(t, "a", res.WinnerID)
		assert.Equal(t, []string{"a"}, res.Players)
	case <-time.After(time.Second):
		t.Fatalf("result not recorded")
	}
}

func TestRoom_RetryResamplesSecret(t *testing.T) {
	r, admin := newTestRoom(t, Options{TurnTimeout: time.Minute})
	start(t, r, admin)
	require.NoError(t, r.Submit(context.Background(), engine.Command{Type: engine.CmdGuess, PlayerID: "a", Guess: "1234"}))
	recvType(t, admin, types.MsgState)

	require.NoError(t, r.Submit(context.Background(), engine.Command{Type: engine.CmdRetryGame, PlayerID: "a"}))
	st := recvType(t, admin, types.MsgState)
	assert.Equal(t, engine.PhaseLobby, st.State.Phase)
	assert.Empty(t, st.State.Secret)
	assert.Empty(t, st.State.Participants[0].Guesses)

	v := snapshot(t, r)
	assert.Equal(t, "5678", v.State.Secret)
	assert.Equal(t, 1, v.State.Round)
	assert.False(t, v.TimerArmed)
}

func TestRoom_ClosedConnectionIsSkipped(t *testing.T) {
	r, admin := newTestRoom(t, Options{TurnTimeout: time.Minute})
	b := join(t, r, "b", "Bob", admin)
	c := join(t, r, "c", "Cat", admin, b)
	start(t, r, admin, b, c)

	// b's socket is gone but its Leave has not arrived yet.
	b.closed.Store(true)

	require.NoError(t, r.Submit(context.Background(), engine.Command{Type: engine.CmdGuess, PlayerID: "a", Guess: "5678"}))
	for _, conn := range []*chanConn{admin, c} {
		recvType(t, conn, types.MsgTurnStarted)
		st := recvType(t, conn, types.MsgState)
		assert.Equal(t, 1, st.State.Turn)
	}
	recvNone(t, b, 50*time.Millisecond)
}

// gateConn parks the room loop inside Send until release is closed.
type gateConn struct {
	entered chan types.ServerMessage
	release chan struct{}
}

func (g *gateConn) Send(msg types.ServerMessage) bool {
	g.entered <- msg
	<-g.release
	return true
}

func TestRoom_ShutdownDropsQueuedMessages(t *testing.T) {
	gate := &gateConn{entered: make(chan types.ServerMessage, 8), release: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := NewRoom(ctx, "4821", Seat{PlayerID: "a", Name: "Alice", Conn: gate}, Options{
		Logger:      zaptest.NewLogger(t),
		TurnTimeout: time.Minute,
		Secrets:     fixedSecrets("1234"),
	})

	// The loop is blocked delivering the opening state.
	select {
	case first := <-gate.entered:
		require.Equal(t, types.MsgState, first.Type)
	case <-time.After(time.Second):
		t.Fatalf("room never published its opening state")
	}

	reply := make(chan error, 1)
	r.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdStartGame, PlayerID: "a"}, Reply: reply}
	r.Shutdown()
	close(gate.release)

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatalf("room did not stop")
	}

	assert.Empty(t, gate.entered, "room published after Shutdown")
	select {
	case err := <-reply:
		t.Fatalf("queued command handled after Shutdown: %v", err)
	default:
	}
}
