package sessions

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/strrl/ng12-assist/internal/logging"
	"github.com/strrl/ng12-assist/pkg/models"
)

// DefaultPollInterval is how often the directory refreshes
const DefaultPollInterval = 5 * time.Second

// SessionLister lists the sessions known to the backend
type SessionLister interface {
	ListSessions(ctx context.Context) ([]models.SessionSummary, error)
}

// DirectoryEntry is one row of the session sidebar
type DirectoryEntry struct {
	Session models.SessionSummary
	Active  bool
}

// DirectoryOption configures a Directory
type DirectoryOption func(*Directory)

// WithPollInterval sets the refresh interval
func WithPollInterval(d time.Duration) DirectoryOption {
	return func(dir *Directory) {
		if d > 0 {
			dir.interval = d
		}
	}
}

// WithDirectoryLogger sets the logger used for fetch failures
func WithDirectoryLogger(l *zap.Logger) DirectoryOption {
	return func(dir *Directory) {
		dir.logger = logging.OrNop(l)
	}
}

// Directory keeps a polled snapshot of the backend's session list.
// A failed fetch keeps the previous snapshot.
type Directory struct {
	lister   SessionLister
	nav      Navigator
	interval time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions []models.SessionSummary
	updates  chan []models.SessionSummary

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDirectory creates a session directory. nav receives selections.
func NewDirectory(lister SessionLister, nav Navigator, opts ...DirectoryOption) *Directory {
	d := &Directory{
		lister:   lister,
		nav:      nav,
		interval: DefaultPollInterval,
		logger:   zap.NewNop(),
		updates:  make(chan []models.SessionSummary, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start fetches once and then polls until Stop is called or ctx ends.
// Calling Start on a running directory does nothing.
func (d *Directory) Start(ctx context.Context) {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	if d.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done
	go d.run(ctx, done)
}

// Stop cancels polling and waits for the poll goroutine to exit. It is safe to call
// more than once, and Start may be called again afterwards.
func (d *Directory) Stop() {
	d.lifeMu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.lifeMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the poll goroutine is active
func (d *Directory) Running() bool {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	return d.cancel != nil
}

func (d *Directory) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	_ = d.Refresh(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = d.Refresh(ctx)
		}
	}
}

// Refresh fetches the session list once. On failure the previous snapshot is kept.
func (d *Directory) Refresh(ctx context.Context) error {
	list, err := d.lister.ListSessions(ctx)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Warn("failed to list sessions", zap.Error(err))
		}
		return err
	}

	d.mu.Lock()
	d.sessions = append([]models.SessionSummary(nil), list...)
	d.mu.Unlock()

	d.publish(list)
	return nil
}

// publish offers the newest snapshot to Updates, replacing an unread older one
func (d *Directory) publish(list []models.SessionSummary) {
	snapshot := append([]models.SessionSummary(nil), list...)
	select {
	case d.updates <- snapshot:
		return
	default:
	}
	select {
	case <-d.updates:
	default:
	}
	select {
	case d.updates <- snapshot:
	default:
	}
}

// Updates delivers each successfully fetched snapshot. Only the latest unread one is kept.
func (d *Directory) Updates() <-chan []models.SessionSummary {
	return d.updates
}

// Snapshot returns the most recent session list
func (d *Directory) Snapshot() []models.SessionSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]models.SessionSummary(nil), d.sessions...)
}

// Entries returns the snapshot with the entry for activeID flagged
func (d *Directory) Entries(activeID string) []DirectoryEntry {
	return Mark(d.Snapshot(), activeID)
}

// Select makes sessionID the active session
func (d *Directory) Select(sessionID string) {
	d.nav.Navigate(sessionID)
}

// Mark flags the summary matching activeID
func Mark(sessions []models.SessionSummary, activeID string) []DirectoryEntry {
	entries := make([]DirectoryEntry, len(sessions))
	for i, s := range sessions {
		entries[i] = DirectoryEntry{Session: s, Active: s.ID == activeID}
	}
	return entries
}
