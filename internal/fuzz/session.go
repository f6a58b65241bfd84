// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package fuzz runs a long fuzz invocation under a throwaway identity and
// classifies the kernel log afterwards.
package fuzz

import (
	"fmt"
	"sync"

	"grimm.is/peerbench/internal/errors"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateUninitialized State = iota
	StateProvisioned
	StateRunning
	StateCompleted
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateProvisioned:
		return "provisioned"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateTornDown:
		return "torn_down"
	default:
		return "uninitialized"
	}
}

// transitions lists the allowed moves. Teardown is reachable from every
// state but itself.
var transitions = map[State][]State{
	StateUninitialized: {StateProvisioned, StateTornDown},
	StateProvisioned:   {StateRunning, StateTornDown},
	StateRunning:       {StateCompleted, StateTornDown},
	StateCompleted:     {StateTornDown},
}

// Session is one restricted identity and its workspace.
type Session struct {
	ID      string
	User    string
	Group   string
	Workdir string
	LogPath string

	mu    sync.Mutex
	state State
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, next := range transitions[s.state] {
		if next == to {
			s.state = to
			return nil
		}
	}
	return errors.Attr(errors.Errorf(errors.KindInternal, "fuzz session cannot move from %s to %s", s.state, to), "session", s.ID)
}

func (s *Session) String() string {
	return fmt.Sprintf("%s(%s:%s %s)", s.ID, s.User, s.Group, s.state)
}
