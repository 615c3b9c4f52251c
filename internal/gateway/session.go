package gateway

import (
	"context"
	"sync"
)

// session memoizes the login token. The exchange runs at most once
// successfully; concurrent callers wait for the first attempt and failed
// attempts are retried by the next caller.
type session struct {
	mu     sync.Mutex
	done   bool
	value  string
	loginF func(context.Context) (string, error)
}

func newSession(preset string, login func(context.Context) (string, error)) *session {
	s := &session{loginF: login}
	if preset != "" {
		s.done = true
		s.value = preset
	}
	return s
}

func (s *session) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.value, nil
	}
	tok, err := s.loginF(ctx)
	if err != nil {
		return "", err
	}
	s.value = tok
	s.done = true
	return tok, nil
}
