package sessions

import (
	"context"
	"errors"
	"sync"

	"github.com/strrl/ng12-assist/internal/api"
	"github.com/strrl/ng12-assist/pkg/models"
)

var errBackendDown = errors.New("backend down")

// fakeHistory serves transcripts and can hold a session's response until released
type fakeHistory struct {
	mu          sync.Mutex
	transcripts map[string][]string
	fail        map[string]bool
	gates       map[string]chan struct{}
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		transcripts: make(map[string][]string),
		fail:        make(map[string]bool),
		gates:       make(map[string]chan struct{}),
	}
}

// hold blocks History for sessionID until the returned func is called
func (f *fakeHistory) hold(sessionID string) func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[sessionID] = gate
	f.mu.Unlock()
	return func() { close(gate) }
}

func (f *fakeHistory) History(ctx context.Context, sessionID string) ([]string, error) {
	f.mu.Lock()
	gate := f.gates[sessionID]
	lines := append([]string(nil), f.transcripts[sessionID]...)
	fail := f.fail[sessionID]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errBackendDown
	}
	return lines, nil
}

// fakeChat answers sends with a canned reply or an error
type fakeChat struct {
	mu       sync.Mutex
	reply    *api.SendResponse
	err      error
	panicMsg string
	clearErr error
	requests []api.SendRequest
	cleared  []string
}

func (f *fakeChat) Send(ctx context.Context, req api.SendRequest) (*api.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *fakeChat) Clear(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, sessionID)
	return f.clearErr
}

// fakeLister returns queued results, repeating the last one
type fakeLister struct {
	mu      sync.Mutex
	results []listResult
	calls   int
}

type listResult struct {
	sessions []models.SessionSummary
	err      error
}

func (f *fakeLister) push(sessions []models.SessionSummary, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, listResult{sessions: sessions, err: err})
}

func (f *fakeLister) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return nil, nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.sessions, r.err
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingNavigator records navigations
type recordingNavigator struct {
	mu  sync.Mutex
	ids []string
}

func (n *recordingNavigator) Navigate(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, id)
}

func (n *recordingNavigator) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.ids) == 0 {
		return ""
	}
	return n.ids[len(n.ids)-1]
}
