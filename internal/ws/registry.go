// Package ws tracks live device and browser connections and fans out
// actuation messages when payments settle.
package ws

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Role separates hardware connections from browser observers. Only hardware
// connections count toward a device being "connected".
type Role string

const (
	RoleHardware Role = "hardware"
	RoleBrowser  Role = "browser"
)

// ParseRole maps a query parameter to a Role, defaulting to hardware.
func ParseRole(s string) Role {
	if s == string(RoleBrowser) {
		return RoleBrowser
	}
	return RoleHardware
}

// Conn is a live duplex connection handle. WriteText must be safe to call
// from multiple goroutines.
type Conn interface {
	WriteText(message string) error
	Close() error
}

type connKey struct {
	deviceID string
	role     Role
}

// Registry owns the set of live connection handles. All map mutation happens
// under the mutex in brief critical sections; the lock is never held across
// a network send.
type Registry struct {
	mu    sync.Mutex
	conns map[connKey]map[Conn]bool
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[connKey]map[Conn]bool),
	}
}

func (r *Registry) Register(deviceID string, role Role, c Conn) {
	key := connKey{deviceID: deviceID, role: role}

	r.mu.Lock()
	if r.conns[key] == nil {
		r.conns[key] = make(map[Conn]bool)
	}
	r.conns[key][c] = true
	count := len(r.conns[key])
	r.mu.Unlock()

	log.Info().
		Str("deviceId", deviceID).
		Str("role", string(role)).
		Int("connCount", count).
		Msg("connection registered")
}

// Unregister removes the handle and deletes its set when it becomes empty;
// the registry never accumulates empty sets.
func (r *Registry) Unregister(deviceID string, role Role, c Conn) {
	key := connKey{deviceID: deviceID, role: role}

	r.mu.Lock()
	if set, ok := r.conns[key]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.conns, key)
		}
	}
	r.mu.Unlock()

	log.Info().
		Str("deviceId", deviceID).
		Str("role", string(role)).
		Msg("connection unregistered")
}

// Dispatch sends message to every live connection for the device, hardware
// and browser alike. Handles whose send fails are pruned. Returns true iff
// at least one send succeeded. Sends happen outside the lock on a snapshot
// of the handle set.
func (r *Registry) Dispatch(deviceID string, message string) bool {
	type target struct {
		conn Conn
		role Role
	}

	r.mu.Lock()
	var targets []target
	for _, role := range []Role{RoleHardware, RoleBrowser} {
		for c := range r.conns[connKey{deviceID: deviceID, role: role}] {
			targets = append(targets, target{conn: c, role: role})
		}
	}
	r.mu.Unlock()

	if len(targets) == 0 {
		log.Warn().Str("deviceId", deviceID).Msg("no live connections for device")
		return false
	}

	sent := false
	for _, t := range targets {
		if err := t.conn.WriteText(message); err != nil {
			log.Debug().Err(err).
				Str("deviceId", deviceID).
				Str("role", string(t.role)).
				Msg("send failed, pruning connection")
			r.Unregister(deviceID, t.role, t.conn)
			_ = t.conn.Close()
			continue
		}
		sent = true
	}

	return sent
}

// ConnectedDeviceIDs lists devices holding at least one open hardware
// connection, in lexical order. Browser-only connections do not count.
func (r *Registry) ConnectedDeviceIDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.conns))
	for key, set := range r.conns {
		if key.role == RoleHardware && len(set) > 0 {
			ids = append(ids, key.deviceID)
		}
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// IsConnected reports whether the device has any open hardware connection.
func (r *Registry) IsConnected(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[connKey{deviceID: deviceID, role: RoleHardware}]) > 0
}
