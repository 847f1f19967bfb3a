// Copyright (c) 2025-present deep.rent GmbH (https://deep.rent)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vinculum

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Scope is one activation of a named scope policy: a cache of the Scoped
// components constructed while it is active, plus their disposal order.
// Construction is funneled through a singleflight.Group so that two
// goroutines racing to resolve the same Scoped key within the same
// activation get the same instance instead of a duplicate build.
type Scope struct {
	name string

	mu        sync.Mutex
	instances map[string]any
	order     []string
	closed    bool

	group singleflight.Group
}

func newScope(name string) *Scope {
	return &Scope{name: name, instances: make(map[string]any)}
}

// getOrCreate returns the cached instance for key if one exists in this
// activation, otherwise runs create exactly once even under concurrent
// callers.
func (s *Scope) getOrCreate(key string, create func() (any, error)) (any, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errScopeInactive(s.name, key)
	}
	if v, ok := s.instances[key]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do(key, func() (any, error) {
		s.mu.Lock()
		if v, ok := s.instances[key]; ok {
			s.mu.Unlock()
			return v, nil
		}
		s.mu.Unlock()

		inst, err := create()
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.instances[key] = inst
		s.order = append(s.order, key)
		s.mu.Unlock()
		return inst, nil
	})
	return v, err
}

// close marks the scope inactive and disposes every instance it constructed,
// most recently constructed first.
func (s *Scope) close(ctx context.Context, log *slog.Logger) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	entries := make([]disposalEntry, 0, len(s.order))
	for _, key := range s.order {
		if inst := s.instances[key]; isDisposable(inst) {
			entries = append(entries, disposalEntry{key: key, inst: inst})
		}
	}
	s.mu.Unlock()

	disposeAll(ctx, log, entries)
}

// ScopeHandle is returned by Container.Scope. It holds the context to use
// for resolutions performed within the activation and closes the scope
// (disposing its Scoped instances) exactly once.
type ScopeHandle struct {
	Context context.Context

	container *Container
	scope     *Scope
	once      sync.Once
}

// Close disposes every component this activation constructed, in reverse
// construction order. It is safe to call more than once; only the first
// call has an effect.
func (h *ScopeHandle) Close(ctx context.Context) error {
	h.once.Do(func() {
		h.scope.close(ctx, h.container.log)
	})
	return nil
}
