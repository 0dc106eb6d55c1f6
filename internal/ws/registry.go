package ws

import (
	"context"
	"log"
	"sort"
	"sync"

	"backcoffee-chat/internal/models"
)

// Conn is a live duplex connection the relay can write envelopes to.
// Send and Ping on a closed connection are no-ops.
type Conn interface {
	ID() string
	Send(envelope any) error
	Ping() error
	Close() error
}

// State is the protocol state of a connection.
type State int

const (
	StateUnregistered State = iota
	StateRegistered
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	default:
		return "closed"
	}
}

// Party is a user bound to a role and its current connection.
type Party struct {
	UserID string
	Role   models.Role
	Conn   Conn
}

// PresenceSink mirrors registry membership somewhere outside the process.
type PresenceSink interface {
	Online(ctx context.Context, userID string, role models.Role) error
	Offline(ctx context.Context, userID string) error
}

type session struct {
	conn  Conn
	info  ConnInfo
	state State
	alive bool
	// identity claimed by the last connect on this connection; kept after a
	// newer connection supersedes the registry binding.
	claimedUser string
	claimedRole models.Role
}

// Registry tracks accepted connections and the party each one represents.
// A user has at most one registered connection; the latest connect wins.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	parties  map[string]Party
	owners   map[string]string
	presence PresenceSink
	// serializes sink writes so the mirror ends on the latest binding
	presenceMu sync.Mutex
}

// NewRegistry creates an empty registry. presence may be nil.
func NewRegistry(presence PresenceSink) *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		parties:  make(map[string]Party),
		owners:   make(map[string]string),
		presence: presence,
	}
}

// Track records an accepted connection in the unregistered state.
func (r *Registry) Track(conn Conn, info ConnInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info.ConnID = conn.ID()
	r.sessions[conn.ID()] = &session{conn: conn, info: info, state: StateUnregistered, alive: true}
}

// Untrack forgets a closed connection and drops its registration.
func (r *Registry) Untrack(connID string) {
	r.Unregister(connID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[connID]; ok {
		s.state = StateClosed
		delete(r.sessions, connID)
	}
}

// Register binds userID to role and conn, superseding any earlier binding
// of the same user.
func (r *Registry) Register(userID string, role models.Role, conn Conn) {
	connID := conn.ID()

	changed := []string{userID}
	r.mu.Lock()
	if prev, ok := r.parties[userID]; ok && prev.Conn.ID() != connID {
		delete(r.owners, prev.Conn.ID())
	}
	if prevUser, ok := r.owners[connID]; ok && prevUser != userID {
		if p, ok := r.parties[prevUser]; ok && p.Conn.ID() == connID {
			delete(r.parties, prevUser)
			changed = append(changed, prevUser)
		}
	}
	r.parties[userID] = Party{UserID: userID, Role: role, Conn: conn}
	r.owners[connID] = userID

	s, ok := r.sessions[connID]
	if !ok {
		s = &session{conn: conn, info: ConnInfo{ConnID: connID}, alive: true}
		r.sessions[connID] = s
	}
	s.state = StateRegistered
	s.claimedUser = userID
	s.claimedRole = role
	r.mu.Unlock()

	r.syncPresence(changed...)
}

// ResolveByUser returns the party registered for userID.
func (r *Registry) ResolveByUser(userID string) (Party, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parties[userID]
	return p, ok
}

// ResolveUserByConnection returns the user a connection currently represents.
func (r *Registry) ResolveUserByConnection(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.owners[connID]
	return userID, ok
}

// Unregister removes the bindings of connID. Unknown connections are ignored.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	userID, ok := r.owners[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.owners, connID)
	offline := false
	if p, ok := r.parties[userID]; ok && p.Conn.ID() == connID {
		delete(r.parties, userID)
		offline = true
	}
	r.mu.Unlock()

	if offline {
		r.syncPresence(userID)
	}
}

// syncPresence writes the current binding of each user to the presence sink.
// The binding is read under presenceMu, so overlapping calls for the same
// user cannot leave the sink behind the registry.
func (r *Registry) syncPresence(users ...string) {
	if r.presence == nil {
		return
	}
	r.presenceMu.Lock()
	defer r.presenceMu.Unlock()
	ctx := context.Background()
	for _, userID := range users {
		p, ok := r.ResolveByUser(userID)
		if ok {
			if err := r.presence.Online(ctx, userID, p.Role); err != nil {
				log.Printf("presence online failed user_id=%s: %v", userID, err)
			}
			continue
		}
		if err := r.presence.Offline(ctx, userID); err != nil {
			log.Printf("presence offline failed user_id=%s: %v", userID, err)
		}
	}
}

// ListByRole returns the users currently registered with role, sorted.
func (r *Registry) ListByRole(role models.Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var users []string
	for userID, p := range r.parties {
		if p.Role == role {
			users = append(users, userID)
		}
	}
	sort.Strings(users)
	return users
}

// State reports the protocol state of a connection.
func (r *Registry) State(connID string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[connID]; ok {
		return s.state
	}
	return StateClosed
}

// Info returns the metadata recorded when the connection was accepted.
func (r *Registry) Info(connID string) (ConnInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[connID]; ok {
		return s.info, true
	}
	return ConnInfo{}, false
}

// claimed returns the identity of the last connect seen on connID.
func (r *Registry) claimed(connID string) (string, models.Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	if !ok || s.claimedUser == "" {
		return "", "", false
	}
	return s.claimedUser, s.claimedRole, true
}

// MarkAlive records a heartbeat answer.
func (r *Registry) MarkAlive(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[connID]; ok {
		s.alive = true
	}
}

// takeAlive returns the liveness flag and clears it until the next answer.
func (r *Registry) takeAlive(connID string) (alive bool, tracked bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok {
		return false, false
	}
	alive = s.alive
	s.alive = false
	return alive, true
}

// Connections returns a snapshot of every open connection.
func (r *Registry) Connections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]Conn, 0, len(r.sessions))
	for _, s := range r.sessions {
		conns = append(conns, s.conn)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].ID() < conns[j].ID() })
	return conns
}

// List returns the registered users and their roles.
func (r *Registry) List(ctx context.Context) (map[string]models.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]models.Role, len(r.parties))
	for userID, p := range r.parties {
		out[userID] = p.Role
	}
	return out, nil
}
