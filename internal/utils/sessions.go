package utils

import (
	"strings"
	"sync"
	"time"
)

// Sessions tracks open timed sessions (voice, streaming) per guild member.
type Sessions struct {
	mu      sync.Mutex
	started map[string]time.Time
}

type EndedSession struct {
	GuildID  string
	UserID   string
	Duration time.Duration
}

func NewSessions() *Sessions {
	return &Sessions{started: make(map[string]time.Time)}
}

// Start opens a session. An already open session keeps its original start.
func (s *Sessions) Start(guildID, userID string, at time.Time) bool {
	key := MemberKey(guildID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.started[key]; ok {
		return false
	}
	s.started[key] = at
	return true
}

func (s *Sessions) Stop(guildID, userID string, at time.Time) (time.Duration, bool) {
	key := MemberKey(guildID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	start, ok := s.started[key]
	if !ok {
		return 0, false
	}
	delete(s.started, key)
	if at.Before(start) {
		return 0, true
	}
	return at.Sub(start), true
}

func (s *Sessions) Active(guildID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.started[MemberKey(guildID, userID)]
	return ok
}

func (s *Sessions) Forget(guildID, userID string) {
	s.mu.Lock()
	delete(s.started, MemberKey(guildID, userID))
	s.mu.Unlock()
}

// Drain closes every open session at the given time.
func (s *Sessions) Drain(at time.Time) []EndedSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	ended := make([]EndedSession, 0, len(s.started))
	for key, start := range s.started {
		guildID, userID, _ := strings.Cut(key, ":")
		duration := time.Duration(0)
		if at.After(start) {
			duration = at.Sub(start)
		}
		ended = append(ended, EndedSession{GuildID: guildID, UserID: userID, Duration: duration})
	}
	s.started = make(map[string]time.Time)
	return ended
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.started)
}
