package store

import (
	"sync"

	"github.com/opd-ai/dtchat/message"
)

// MemoryStore keeps everything in process memory. Peers and rooms are fixed
// at construction; messages accumulate for the lifetime of the process.
type MemoryStore struct {
	localPeer Peer
	peers     map[string]Peer
	rooms     map[string]Room

	mu       sync.Mutex
	messages []*message.ChatMessage
	byUUID   map[string]*message.ChatMessage
}

// NewMemoryStore builds a store over the given immutable peer and room sets.
func NewMemoryStore(localPeer Peer, peers []Peer, rooms []Room) *MemoryStore {
	s := &MemoryStore{
		localPeer: localPeer,
		peers:     make(map[string]Peer, len(peers)),
		rooms:     make(map[string]Room, len(rooms)),
		byUUID:    make(map[string]*message.ChatMessage),
	}
	for _, p := range peers {
		s.peers[p.UUID] = p
	}
	for _, r := range rooms {
		s.rooms[r.UUID] = r
	}
	return s
}

// LocalPeer implements Store.
func (s *MemoryStore) LocalPeer() Peer { return s.localPeer }

// OtherPeers implements Store.
func (s *MemoryStore) OtherPeers() map[string]Peer {
	out := make(map[string]Peer, len(s.peers))
	for k, v := range s.peers {
		out[k] = v
	}
	return out
}

// Rooms implements Store.
func (s *MemoryStore) Rooms() map[string]Room {
	out := make(map[string]Room, len(s.rooms))
	for k, v := range s.rooms {
		out[k] = v
	}
	return out
}

// AddMessage implements Store. Duplicate uuids are rejected.
func (s *MemoryStore) AddMessage(m *message.ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUUID[m.UUID]; exists {
		return false
	}
	stored := *m
	s.messages = append(s.messages, &stored)
	s.byUUID[stored.UUID] = &stored
	return true
}

// MarkAs implements Store.
func (s *MemoryStore) MarkAs(uuid string, intent MarkIntent) *message.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byUUID[uuid]
	if !ok {
		return nil
	}
	intent.apply(m)
	updated := *m
	return &updated
}

// LastMessages implements Store.
func (s *MemoryStore) LastMessages(n int) []*message.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := len(s.messages) - n
	if start < 0 {
		start = 0
	}
	return s.copyOut(s.messages[start:])
}

// AllMessages implements Store.
func (s *MemoryStore) AllMessages() []*message.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyOut(s.messages)
}

func (s *MemoryStore) copyOut(msgs []*message.ChatMessage) []*message.ChatMessage {
	out := make([]*message.ChatMessage, len(msgs))
	for i, m := range msgs {
		cp := *m
		out[i] = &cp
	}
	return out
}
