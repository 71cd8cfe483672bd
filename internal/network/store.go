// Package network holds the signed-in viewer's connection graph and the
// request/accept/reject/cancel transitions that mutate it.
package network

import (
	"sort"
	"sync"

	"proconnect/internal/models"
)

// Store is the viewer's edge set, indexed by counterpart. Status is derived on read.
type Store struct {
	viewerID uint

	mu            sync.RWMutex
	byCounterpart map[uint]models.ConnectionEdge
	byID          map[uint]uint // edge id -> counterpart
	version       uint64
}

// NewStore creates an empty store for viewerID.
func NewStore(viewerID uint) *Store {
	return &Store{
		viewerID:      viewerID,
		byCounterpart: make(map[uint]models.ConnectionEdge),
		byID:          make(map[uint]uint),
	}
}

// ViewerID returns the user the store belongs to.
func (s *Store) ViewerID() uint {
	return s.viewerID
}

// StatusOf derives the viewer's status toward counterpartID.
func (s *Store) StatusOf(counterpartID uint) models.DerivedConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	edge, ok := s.byCounterpart[counterpartID]
	if !ok {
		return models.StatusNone
	}
	return models.DeriveStatus(s.viewerID, &edge)
}

// ReplaceAll swaps in a complete edge set. Readers observe either the old set or the new one.
// When two edges name the same counterpart the newest wins.
func (s *Store) ReplaceAll(edges []models.ConnectionEdge) {
	byCounterpart := make(map[uint]models.ConnectionEdge, len(edges))
	for _, e := range edges {
		if !e.Involves(s.viewerID) || e.RequesterID == e.ReceiverID {
			continue
		}
		cp := e.Counterpart(s.viewerID)
		if prev, ok := byCounterpart[cp]; ok && newer(prev, e) {
			continue
		}
		byCounterpart[cp] = e
	}

	byID := make(map[uint]uint, len(byCounterpart))
	for cp, e := range byCounterpart {
		if e.ID != 0 {
			byID[e.ID] = cp
		}
	}

	s.mu.Lock()
	s.byCounterpart = byCounterpart
	s.byID = byID
	s.version++
	s.mu.Unlock()
}

// newer reports whether a should be kept over b.
func newer(a, b models.ConnectionEdge) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// Put stores edge as the viewer's edge with its counterpart, replacing any previous one.
func (s *Store) Put(edge models.ConnectionEdge) {
	if !edge.Involves(s.viewerID) {
		return
	}
	cp := edge.Counterpart(s.viewerID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.byCounterpart[cp]; ok && prev.ID != 0 {
		delete(s.byID, prev.ID)
	}
	s.byCounterpart[cp] = edge
	if edge.ID != 0 {
		s.byID[edge.ID] = cp
	}
	s.version++
}

// Remove drops the edge with the given id.
func (s *Store) Remove(edgeID uint) (models.ConnectionEdge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.byID[edgeID]
	if !ok {
		return models.ConnectionEdge{}, false
	}
	edge := s.byCounterpart[cp]
	delete(s.byID, edgeID)
	delete(s.byCounterpart, cp)
	s.version++
	return edge, true
}

// RemoveCounterpart drops whatever edge exists with counterpartID.
func (s *Store) RemoveCounterpart(counterpartID uint) (models.ConnectionEdge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	edge, ok := s.byCounterpart[counterpartID]
	if !ok {
		return models.ConnectionEdge{}, false
	}
	if edge.ID != 0 {
		delete(s.byID, edge.ID)
	}
	delete(s.byCounterpart, counterpartID)
	s.version++
	return edge, true
}

// EdgeByID looks an edge up by id.
func (s *Store) EdgeByID(edgeID uint) (models.ConnectionEdge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.byID[edgeID]
	if !ok {
		return models.ConnectionEdge{}, false
	}
	return s.byCounterpart[cp], true
}

// EdgeFor returns the edge with counterpartID, if any.
func (s *Store) EdgeFor(counterpartID uint) (models.ConnectionEdge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	edge, ok := s.byCounterpart[counterpartID]
	return edge, ok
}

// PendingReceived lists requests the viewer may accept or reject, oldest first.
func (s *Store) PendingReceived() []models.ConnectionEdge {
	return s.filter(models.StatusPendingReceived)
}

// SentPending lists requests the viewer may cancel, oldest first.
func (s *Store) SentPending() []models.ConnectionEdge {
	return s.filter(models.StatusPendingSent)
}

// Connected lists accepted edges, oldest first.
func (s *Store) Connected() []models.ConnectionEdge {
	return s.filter(models.StatusConnected)
}

// All returns every edge, oldest first.
func (s *Store) All() []models.ConnectionEdge {
	return s.filter("")
}

func (s *Store) filter(status models.DerivedConnectionStatus) []models.ConnectionEdge {
	s.mu.RLock()
	out := make([]models.ConnectionEdge, 0, len(s.byCounterpart))
	for _, e := range s.byCounterpart {
		if status == "" || models.DeriveStatus(s.viewerID, &e) == status {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Counterpart(s.viewerID) < out[j].Counterpart(s.viewerID)
	})
	return out
}

// Version increments on every mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
