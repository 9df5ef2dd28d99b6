// Package registry tracks live cloud browser sessions keyed by conversation
// id, so repeated prompts to the same conversation reuse one logged-in tab.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/lansoai/agentbridge/pkg/browser"
	"github.com/lansoai/agentbridge/pkg/browserbase"
	"github.com/lansoai/agentbridge/pkg/logging"
)

// Provider allocates and releases cloud browser sessions.
// Satisfied by *browserbase.Client.
type Provider interface {
	CreateSession(ctx context.Context) (*browserbase.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Connector attaches to a running browser over its debug endpoint.
// Satisfied by *browser.Driver.
type Connector interface {
	Connect(connectURL string) (browser.Conn, error)
}

// Authenticator brings a fresh tab to a logged-in state on the agent app.
// Satisfied by *auth.Manager.
type Authenticator interface {
	EnsureLoggedIn(ctx context.Context, page browser.Page) error
}

// Entry is one live conversation session.
type Entry struct {
	// Tab is the logged-in page on the agent app.
	Tab browser.Page

	// SessionID identifies the cloud session backing the tab.
	SessionID string

	// LiveViewURL points a human at the session's live debugger view.
	LiveViewURL string

	conn browser.Conn
}

// Registry maps conversation ids to live sessions. Creation is serialized
// per key: two callers racing on the same conversation share one session,
// while different conversations create in parallel.
type Registry struct {
	provider  Provider
	connector Connector
	auth      Authenticator
	log       *logging.Logger

	mu       sync.Mutex
	entries  map[string]*Entry
	creating KeyedMutex
}

// New builds an empty registry.
func New(provider Provider, connector Connector, auth Authenticator, log *logging.Logger) *Registry {
	return &Registry{
		provider:  provider,
		connector: connector,
		auth:      auth,
		log:       log,
		entries:   make(map[string]*Entry),
	}
}

// GetOrCreate returns the live session for key, creating one if none exists.
// A stored session whose tab has died is evicted and replaced transparently.
func (r *Registry) GetOrCreate(ctx context.Context, key string) (*Entry, error) {
	unlock := r.creating.Lock(key)
	defer unlock()

	r.mu.Lock()
	entry := r.entries[key]
	r.mu.Unlock()

	if entry != nil {
		if entry.Tab.Alive() {
			return entry, nil
		}
		r.log.Warnf("session for %q died, recreating", key)
		r.evict(ctx, key, entry)
	}

	return r.create(ctx, key)
}

// Get returns the stored session for key without creating one.
func (r *Registry) Get(key string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[key]
	return entry, ok
}

func (r *Registry) create(ctx context.Context, key string) (*Entry, error) {
	session, err := r.provider.CreateSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating cloud session: %w", err)
	}
	r.log.Infof("created session %s for conversation %q", session.ID, key)

	conn, err := r.connector.Connect(session.ConnectURL)
	if err != nil {
		r.release(ctx, session.ID)
		return nil, fmt.Errorf("connecting to session %s: %w", session.ID, err)
	}

	tab, err := conn.DefaultTab()
	if err != nil {
		conn.Close()
		r.release(ctx, session.ID)
		return nil, fmt.Errorf("opening tab in session %s: %w", session.ID, err)
	}

	if err := r.auth.EnsureLoggedIn(ctx, tab); err != nil {
		conn.Close()
		r.release(ctx, session.ID)
		return nil, fmt.Errorf("logging in session %s: %w", session.ID, err)
	}

	entry := &Entry{
		Tab:         tab,
		SessionID:   session.ID,
		LiveViewURL: session.LiveViewURL(),
		conn:        conn,
	}
	r.mu.Lock()
	r.entries[key] = entry
	r.mu.Unlock()
	return entry, nil
}

// Stop tears down the session for key. Stopping an unknown key is a no-op.
func (r *Registry) Stop(ctx context.Context, key string) error {
	unlock := r.creating.Lock(key)
	defer unlock()

	r.mu.Lock()
	entry := r.entries[key]
	r.mu.Unlock()
	if entry == nil {
		return nil
	}
	r.evict(ctx, key, entry)
	return nil
}

// Close tears down every live session. Used on shutdown.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	r.mu.Unlock()

	for _, key := range keys {
		if err := r.Stop(ctx, key); err != nil {
			r.log.Warnf("stopping session for %q: %v", key, err)
		}
	}
}

func (r *Registry) evict(ctx context.Context, key string, entry *Entry) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()

	if entry.conn != nil {
		if err := entry.conn.Close(); err != nil {
			r.log.Warnf("closing connection for %q: %v", key, err)
		}
	}
	r.release(ctx, entry.SessionID)
	r.log.Infof("released session %s for conversation %q", entry.SessionID, key)
}

func (r *Registry) release(ctx context.Context, sessionID string) {
	if err := r.provider.DeleteSession(ctx, sessionID); err != nil {
		r.log.Warnf("releasing session %s: %v", sessionID, err)
	}
}
