package server

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/morezero/datatype-introspection/pkg/events"
)

const peersLogPrefix = "server:peers"

// PeerStatus is the last announcement seen from a peer and whether it matched ours.
type PeerStatus struct {
	Node         string                     `json:"node"`
	Agrees       bool                       `json:"agrees"`
	Announcement *events.CatalogAnnouncement `json:"announcement"`
	LastSeen     time.Time                  `json:"lastSeen"`
}

// PeerTable records catalog agreement with every announcing peer.
type PeerTable struct {
	self string

	mu    sync.RWMutex
	peers map[string]PeerStatus
}

// NewPeerTable creates a table that ignores announcements from self.
func NewPeerTable(self string) *PeerTable {
	return &PeerTable{self: self, peers: make(map[string]PeerStatus)}
}

// Observe compares remote with local and records the result. It returns false when
// the announcement came from this node and was ignored.
func (t *PeerTable) Observe(local, remote *events.CatalogAnnouncement) bool {
	if remote.Node == "" || remote.Node == t.self {
		return false
	}
	agrees := local.Agrees(remote)

	t.mu.Lock()
	prev, seen := t.peers[remote.Node]
	t.peers[remote.Node] = PeerStatus{
		Node:         remote.Node,
		Agrees:       agrees,
		Announcement: remote,
		LastSeen:     time.Now().UTC(),
	}
	t.mu.Unlock()

	switch {
	case !agrees && (!seen || prev.Agrees):
		slog.Warn(fmt.Sprintf("%s - Catalog mismatch with %s: messages %s/%s (%d/%d), services %s/%s (%d/%d)",
			peersLogPrefix, remote.Node,
			local.MessageSignature, remote.MessageSignature, local.MessageCount, remote.MessageCount,
			local.ServiceSignature, remote.ServiceSignature, local.ServiceCount, remote.ServiceCount))
	case agrees && !seen:
		slog.Info(fmt.Sprintf("%s - Peer %s agrees", peersLogPrefix, remote.Node))
	case agrees && !prev.Agrees:
		slog.Info(fmt.Sprintf("%s - Peer %s agrees again", peersLogPrefix, remote.Node))
	}
	return true
}

// Get returns the status of one peer.
func (t *PeerTable) Get(node string) (PeerStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.peers[node]
	return st, ok
}

// List returns all peers sorted by node name.
func (t *PeerTable) List() []PeerStatus {
	t.mu.RLock()
	out := make([]PeerStatus, 0, len(t.peers))
	for _, st := range t.peers {
		out = append(out, st)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}

// Disagreeing counts peers whose last announcement did not match.
func (t *PeerTable) Disagreeing() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, st := range t.peers {
		if !st.Agrees {
			n++
		}
	}
	return n
}
