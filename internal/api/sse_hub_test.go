package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logitdash/domain/core"
	"logitdash/internal"
	"logitdash/internal/reactive"
)

func quietHub(t *testing.T) *SSEHub {
	t.Helper()
	hub := NewSSEHub(internal.NewLoggerTo(io.Discard, internal.LogLevelError, "text"))
	t.Cleanup(hub.Close)
	return hub
}

func TestSSEHub_NotifyReachesSessionOnly(t *testing.T) {
	hub := quietHub(t)
	a, b := core.NewSessionID(), core.NewSessionID()

	eventsA, cancelA := hub.Subscribe(a.String())
	defer cancelA()
	eventsB, cancelB := hub.Subscribe(b.String())
	defer cancelB()
	require.Eventually(t, func() bool {
		return hub.ClientCount(a.String()) == 1 && hub.ClientCount(b.String()) == 1
	}, time.Second, time.Millisecond)

	hub.Notify(a, []reactive.Key{"logit_or_ci", "logit_model_fit"})

	select {
	case ev := <-eventsA:
		assert.Equal(t, a.String(), ev.SessionID)
		assert.Equal(t, []string{"logit_or_ci", "logit_model_fit"}, ev.Outputs)
	case <-time.After(time.Second):
		t.Fatal("no event for subscribed session")
	}

	select {
	case ev := <-eventsB:
		t.Fatalf("unexpected event for other session: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSSEHub_Unsubscribe(t *testing.T) {
	hub := quietHub(t)
	events, cancel := hub.Subscribe("s1")
	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"s1"}, hub.ActiveSessions())

	cancel()
	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 0 }, time.Second, time.Millisecond)
	_, open := <-events
	assert.False(t, open)
	assert.Empty(t, hub.ActiveSessions())
}

func TestSSEHub_CloseEndsStreams(t *testing.T) {
	hub := quietHub(t)
	events, _ := hub.Subscribe("s1")
	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 1 }, time.Second, time.Millisecond)

	hub.Close()
	select {
	case _, open := <-events:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("stream not closed")
	}
}

// streamRecorder adds the CloseNotifier gin's Stream needs
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

func TestSSEHub_Stream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := quietHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool)}
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		hub.Stream(c, "s1")
		close(done)
	}()

	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 1 }, time.Second, time.Millisecond)
	hub.Broadcast(InvalidationEvent{SessionID: "s1", Outputs: []string{"code_snippet"}})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(body, "event:invalidate"), body)
	assert.Contains(t, body, `"outputs":["code_snippet"]`)
}
