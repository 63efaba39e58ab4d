package sessions

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// SessionParam is the navigation query key that selects the active conversation
const SessionParam = "session_id"

// Navigator switches the client to another conversation
type Navigator interface {
	Navigate(sessionID string)
}

// Resolver determines the active session id from navigation state
type Resolver struct {
	fallback string
	nav      Navigator
	newID    func() string
}

// NewResolver creates a resolver. fallback is used when navigation names no session.
func NewResolver(fallback string, nav Navigator) *Resolver {
	return &Resolver{
		fallback: fallback,
		nav:      nav,
		newID:    uuid.NewString,
	}
}

// Resolve returns the session id in query, or the fallback id
func (r *Resolver) Resolve(query url.Values) string {
	if id := strings.TrimSpace(query.Get(SessionParam)); id != "" {
		return id
	}
	return r.fallback
}

// StartNew mints a fresh session id and navigates to it
func (r *Resolver) StartNew() string {
	id := r.newID()
	r.nav.Navigate(id)
	return id
}

// Select navigates to an existing session
func (r *Resolver) Select(sessionID string) {
	r.nav.Navigate(sessionID)
}

// Router is the client's in-process navigation state: a path plus query values.
// It is safe for concurrent use.
type Router struct {
	mu    sync.RWMutex
	path  string
	query url.Values
}

// NewRouter parses a link such as "/chat?session_id=abc". An empty link starts at /chat.
func NewRouter(link string) (*Router, error) {
	r := &Router{path: "/chat", query: url.Values{}}
	link = strings.TrimSpace(link)
	if link == "" {
		return r, nil
	}

	u, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("failed to parse link %q: %w", link, err)
	}
	if u.Path != "" {
		r.path = "/" + strings.TrimLeft(u.Path, "/")
	}
	r.query = u.Query()
	return r, nil
}

// Navigate switches the router to the chat view for sessionID
func (r *Router) Navigate(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = "/chat"
	r.query = url.Values{SessionParam: []string{sessionID}}
}

// Query returns a copy of the current query values
func (r *Router) Query() url.Values {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(url.Values, len(r.query))
	for k, v := range r.query {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Location renders the current path and query
func (r *Router) Location() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.query) == 0 {
		return r.path
	}
	return r.path + "?" + r.query.Encode()
}
