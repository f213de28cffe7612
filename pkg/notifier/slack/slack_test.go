package slack

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/slack-go/slack"

	"github.com/edgepipe/runtime/pkg/controller"
	"github.com/edgepipe/runtime/pkg/fault"
)

func newTestServer(t *testing.T) (*httptest.Server, func() int) {
	var mu sync.Mutex
	count := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "channel": "C1", "ts": "1"})
	}))
	t.Cleanup(srv.Close)
	return srv, func() int { mu.Lock(); defer mu.Unlock(); return count }
}

func TestNotifierPostsOnFault(t *testing.T) {
	srv, count := newTestServer(t)
	n := &Notifier{
		client:  slack.New("xoxb-test", slack.OptionAPIURL(srv.URL+"/")),
		channel: "C1",
		log:     logr.Discard(),
	}
	n.OnFault("p1", fault.Fault{Severity: fault.SeverityError, Domain: fault.DomainCore, Message: "boom"})
	if count() != 1 {
		t.Errorf("post count = %d, want 1", count())
	}
}

func TestNotifierOnStateChangeIgnoresRoutineTransitions(t *testing.T) {
	_, count := newTestServer(t)
	n := &Notifier{log: logr.Discard()}
	n.OnStateChange("p1", controller.StateInitialized, controller.StateRunning)
	if count() != 0 {
		t.Errorf("post count = %d, want 0 (routine transition shouldn't post, and client is nil so a post would panic)", count())
	}
}

func TestNotifierOnStateChangePostsOnErrored(t *testing.T) {
	srv, count := newTestServer(t)
	n := &Notifier{
		client:  slack.New("xoxb-test", slack.OptionAPIURL(srv.URL+"/")),
		channel: "C1",
		log:     logr.Discard(),
	}
	n.OnStateChange("p1", controller.StateRunning, controller.StateErrored)
	if count() != 1 {
		t.Errorf("post count = %d, want 1", count())
	}
}
