// Copyright 2018 Fabian Wenzelmann
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package web

import (
	"errors"
	"sync"
	"time"

	"github.com/FabianWe/tilemosaic"
	"github.com/google/uuid"
)

// ConnectionID identifies a client session.
type ConnectionID uuid.UUID

// GenConnectionID returns a new random id.
func GenConnectionID() (ConnectionID, error) {
	id, idErr := uuid.NewRandom()
	return ConnectionID(id), idErr
}

// ParseConnectionID parses the string representation of an id.
func ParseConnectionID(s string) (ConnectionID, error) {
	id, err := uuid.Parse(s)
	return ConnectionID(id), err
}

func (id ConnectionID) String() string {
	return uuid.UUID(id).String()
}

// State is the state of a single connection: the mosaic configuration the
// client changed via /set.
type State struct {
	mutex          sync.Mutex
	created        time.Time
	lastConnection time.Time
	config         tilemosaic.Config
}

// NewState returns a state with the given configuration.
func NewState(config tilemosaic.Config) *State {
	now := time.Now().UTC()
	return &State{
		created:        now,
		lastConnection: now,
		config:         config,
	}
}

// Touch updates the time of the last access.
func (s *State) Touch() {
	s.mutex.Lock()
	s.lastConnection = time.Now().UTC()
	s.mutex.Unlock()
}

// Config returns a copy of the current configuration.
func (s *State) Config() tilemosaic.Config {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.config
}

// Set changes a configuration variable, see tilemosaic.Config.Set.
func (s *State) Set(name, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.config.Set(name, value)
}

// Update works like Set but applies the change to a copy of the
// configuration first. The change is only stored if check accepts the copy.
func (s *State) Update(name, value string, check func(cfg tilemosaic.Config) error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	cfg := s.config
	if err := cfg.Set(name, value); err != nil {
		return err
	}
	if err := check(cfg); err != nil {
		return err
	}
	s.config = cfg
	return nil
}

// Expired returns true if the last access is at least maxAge ago.
func (s *State) Expired(now time.Time, maxAge time.Duration) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return now.Sub(s.lastConnection) >= maxAge
}

var (
	ErrConnNotFound = errors.New("connection not found")
)

// ConnectionStorage stores the states of all connections.
type ConnectionStorage interface {
	Get(conn ConnectionID) (*State, error)
	Set(conn ConnectionID, state *State) error
	Delete(conn ConnectionID) error
	Filter(maxAge time.Duration) error
}

// MemStorage is a ConnectionStorage that keeps all states in memory.
type MemStorage struct {
	mutex   *sync.RWMutex
	connMap map[ConnectionID]*State
}

func NewMemStorage() *MemStorage {
	return &MemStorage{
		mutex:   new(sync.RWMutex),
		connMap: make(map[ConnectionID]*State, 1000),
	}
}

func (s *MemStorage) Get(conn ConnectionID) (*State, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	state, has := s.connMap[conn]
	if has {
		return state, nil
	}
	return nil, ErrConnNotFound
}

func (s *MemStorage) Set(conn ConnectionID, state *State) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.connMap[conn] = state
	return nil
}

func (s *MemStorage) Delete(conn ConnectionID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.connMap, conn)
	return nil
}

// Len returns the number of stored connections.
func (s *MemStorage) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.connMap)
}

// Filter removes all connections not accessed within maxAge.
func (s *MemStorage) Filter(maxAge time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	now := time.Now().UTC()
	for id, state := range s.connMap {
		if state.Expired(now, maxAge) {
			delete(s.connMap, id)
		}
	}
	return nil
}

// RunFilter calls storage.Filter every interval until the returned channel
// is closed.
func RunFilter(storage ConnectionStorage, maxAge, interval time.Duration) chan<- struct{} {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				storage.Filter(maxAge)
			}
		}
	}()
	return done
}
