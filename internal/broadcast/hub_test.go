package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"solana-vote-tracker/internal/domain"
)

// fakeConn records written frames. Reads block until Disconnect, like an
// idle browser tab, unless the test feeds inbound messages.
type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	gate     chan struct{} // when set, WriteMessage blocks until closed
	inbound  chan []byte   // when set, NextReader yields these
	closedCh chan struct{}
	closed   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{closedCh: make(chan struct{})}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	if f.gate != nil {
		<-f.gate
	}
	if messageType != websocket.TextMessage {
		return errors.New("unexpected message type")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("write on closed conn")
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeConn) WriteControl(int, []byte, time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error          { return nil }

func (f *fakeConn) NextReader() (int, io.Reader, error) {
	// A nil inbound channel blocks forever, so idle conns wait for close.
	select {
	case data := <-f.inbound:
		return websocket.TextMessage, bytes.NewReader(data), nil
	case <-f.closedCh:
		return 0, nil, errors.New("conn closed")
	}
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closedCh)
	}
	return nil
}

func (f *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4242}
}

func (f *fakeConn) Disconnect() { _ = f.Close() }

func (f *fakeConn) Frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

func (f *fakeConn) waitFrames(t *testing.T, n int) [][]byte {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if frames := f.Frames(); len(frames) >= n {
			return frames
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d frames, have %d", n, len(f.Frames()))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func serve(hub *Hub, conn *fakeConn, snapshot func() [][]byte) chan struct{} {
	done := make(chan struct{})
	go func() {
		hub.ServeConn(conn, snapshot)
		close(done)
	}()
	return done
}

func staticSnapshot(frames [][]byte) func() [][]byte {
	return func() [][]byte { return frames }
}

func TestHub_FansOutToAllSubscribers(t *testing.T) {
	hub := startHub(t)

	a, b := newFakeConn(), newFakeConn()
	serve(hub, a, nil)
	serve(hub, b, nil)

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 2
	}, 2*time.Second, 5*time.Millisecond)

	score := &domain.CommunityScore{SubmissionID: "team-alpha", Score: 7.5, UniqueVoters: 3}
	frame, err := EncodeScoreUpdate(score)
	require.NoError(t, err)
	hub.Broadcast(TypeScoreUpdate, frame)

	a.waitFrames(t, 1)
	b.waitFrames(t, 1)

	var msg Message
	require.NoError(t, json.Unmarshal(a.Frames()[0], &msg))
	require.Equal(t, TypeScoreUpdate, msg.Type)

	a.Disconnect()
	b.Disconnect()
}

func TestHub_InitialFramesArriveBeforeBroadcasts(t *testing.T) {
	hub := startHub(t)

	resync := [][]byte{[]byte(`{"type":"score_update"}`), []byte(`{"type":"pool_update"}`)}
	conn := newFakeConn()
	serve(hub, conn, staticSnapshot(resync))

	frames := conn.waitFrames(t, 2)
	require.Equal(t, resync[0], frames[0])
	require.Equal(t, resync[1], frames[1])

	conn.Disconnect()
}

func TestHub_StalledSubscriberIsDropped(t *testing.T) {
	hub := startHub(t)

	slow := newFakeConn()
	slow.gate = make(chan struct{})
	done := serve(hub, slow, nil)

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// One frame sits in the blocked write, clientBuffer fill the channel,
	// the next one has nowhere to go and must cost the registration.
	for i := 0; i < clientBuffer+2; i++ {
		hub.Broadcast(TypeScoreUpdate, []byte(`{"type":"score_update"}`))
	}

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, 2*time.Second, 5*time.Millisecond)

	// Once unblocked, the dropped client's loops wind down and the
	// connection closes instead of lingering with a gapped stream.
	close(slow.gate)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeConn did not return after the hub dropped the client")
	}
}

func TestHub_KeepingUpSubscriberSeesEveryFrame(t *testing.T) {
	hub := startHub(t)

	conn := newFakeConn()
	serve(hub, conn, nil)

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// A burst within the buffer never drops the client or a frame.
	for i := 0; i < clientBuffer; i++ {
		hub.Broadcast(TypeScoreUpdate, []byte(`{"type":"score_update"}`))
	}

	conn.waitFrames(t, clientBuffer)
	require.Equal(t, 1, hub.ClientCount())

	conn.Disconnect()
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub := startHub(t)

	conn := newFakeConn()
	done := serve(hub, conn, staticSnapshot([][]byte{[]byte("hello")}))
	conn.waitFrames(t, 1)

	conn.Disconnect()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeConn did not return after disconnect")
	}
}

func TestHub_ResyncRequestReplaysSnapshot(t *testing.T) {
	hub := startHub(t)

	conn := newFakeConn()
	conn.inbound = make(chan []byte)

	var calls atomic.Int32
	snapshot := func() [][]byte {
		n := calls.Add(1)
		return [][]byte{[]byte(fmt.Sprintf(`{"type":"score_update","call":%d}`, n))}
	}
	serve(hub, conn, snapshot)

	conn.waitFrames(t, 1)

	conn.inbound <- []byte(`{"type":"resync"}`)
	frames := conn.waitFrames(t, 2)
	require.Contains(t, string(frames[1]), `"call":2`)

	// Junk and unknown message types are drained without effect.
	conn.inbound <- []byte(`not json`)
	conn.inbound <- []byte(`{"type":"ping"}`)
	time.Sleep(50 * time.Millisecond)
	require.Len(t, conn.Frames(), 2)

	conn.Disconnect()
}

func TestEncodeScoreUpdate_NullBelowVoterThreshold(t *testing.T) {
	frame, err := EncodeScoreUpdate(&domain.CommunityScore{
		SubmissionID: "team-alpha",
		Score:        4.2,
		UniqueVoters: 1,
	})
	require.NoError(t, err)

	var decoded struct {
		Type string `json:"type"`
		Data struct {
			SubmissionID string   `json:"submission_id"`
			Score        *float64 `json:"score"`
			UniqueVoters int      `json:"unique_voters"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &decoded))
	require.Nil(t, decoded.Data.Score)
	require.Equal(t, 1, decoded.Data.UniqueVoters)

	frame, err = EncodeScoreUpdate(&domain.CommunityScore{
		SubmissionID: "team-alpha",
		Score:        4.2,
		UniqueVoters: 2,
	})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(frame, &decoded))
	require.NotNil(t, decoded.Data.Score)
	require.Equal(t, 4.2, *decoded.Data.Score)
}
