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
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
)

// Registry is the single source of truth for component descriptors. It
// never compares types by identity, only by canonical key, so that a
// forward declaration and a later re-registration of the "same" type don't
// create phantom duplicates.
//
// Registry is safe for concurrent use: reads take a reader lock and writes
// take a single writer lock whose critical section also updates every
// reverse index, so readers never observe a torn state.
type Registry struct {
	mu sync.RWMutex

	byKey   map[string]*Descriptor
	byType  map[reflect.Type][]string // ComponentType -> keys, insertion order
	byTag   map[string][]string       // tag -> keys, insertion order
	byLife  map[Lifetime][]string     // Lifetime -> keys, insertion order

	// aliases is the forward-reference indirection table: a string name
	// that has not yet been (or cannot be) resolved to a reflect.Type maps
	// to the canonical key that should satisfy it once asked for.
	aliases map[string]string

	// generation increments on every mutation so an Analyzer can detect a
	// stale cache without the Registry needing to know Analyzer exists.
	generation atomic.Uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey:   make(map[string]*Descriptor),
		byType:  make(map[reflect.Type][]string),
		byTag:   make(map[string][]string),
		byLife:  make(map[Lifetime][]string),
		aliases: make(map[string]string),
	}
}

// Register inserts d under its canonical key (computed from d.Key and
// d.Name). It fails with KindAlreadyRegistered when the key already exists
// and allowOverride is false. The reverse indices are updated atomically
// with the primary map.
func (r *Registry) Register(d *Descriptor, allowOverride bool) (*Descriptor, error) {
	key := canonicalKey(d.Key, d.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[key]; exists && !allowOverride {
		return nil, errAlreadyRegistered(key)
	}

	if old, exists := r.byKey[key]; exists {
		r.unindexLocked(key, old)
	}

	cp := *d
	cp.Key = key
	r.byKey[key] = &cp
	r.indexLocked(key, &cp)
	r.generation.Add(1)
	return &cp, nil
}

// Override is equivalent to Register with allowOverride set to true.
func (r *Registry) Override(d *Descriptor) (*Descriptor, error) {
	return r.Register(d, true)
}

func (r *Registry) indexLocked(key string, d *Descriptor) {
	if d.ComponentType != nil {
		r.byType[d.ComponentType] = appendUnique(r.byType[d.ComponentType], key)
	}
	for _, iface := range d.Implements {
		r.byType[iface] = appendUnique(r.byType[iface], key)
	}
	for tag := range d.Tags {
		r.byTag[tag] = appendUnique(r.byTag[tag], key)
	}
	r.byLife[d.Lifetime] = appendUnique(r.byLife[d.Lifetime], key)
}

func (r *Registry) unindexLocked(key string, d *Descriptor) {
	if d.ComponentType != nil {
		r.byType[d.ComponentType] = removeValue(r.byType[d.ComponentType], key)
	}
	for _, iface := range d.Implements {
		r.byType[iface] = removeValue(r.byType[iface], key)
	}
	for tag := range d.Tags {
		r.byTag[tag] = removeValue(r.byTag[tag], key)
	}
	r.byLife[d.Lifetime] = removeValue(r.byLife[d.Lifetime], key)
}

func appendUnique(s []string, v string) []string {
	for _, e := range s {
		if e == v {
			return s
		}
	}
	return append(s, v)
}

func removeValue(s []string, v string) []string {
	out := s[:0]
	for _, e := range s {
		if e != v {
			out = append(out, e)
		}
	}
	return out
}

// Get looks up a descriptor by key and optional name. It returns
// KindNotRegistered if the key is absent or its Condition currently
// evaluates to false.
func (r *Registry) Get(key, name string) (*Descriptor, error) {
	canon := canonicalKey(key, name)

	r.mu.RLock()
	d, ok := r.byKey[canon]
	r.mu.RUnlock()

	if !ok {
		if alias, ok := r.resolveAlias(canon); ok {
			return r.Get(alias, "")
		}
		return nil, errNotRegistered(canon)
	}
	if !d.visible() {
		return nil, errNotRegistered(canon)
	}
	return d, nil
}

// Has reports whether Get would succeed for the same arguments.
func (r *Registry) Has(key, name string) bool {
	_, err := r.Get(key, name)
	return err == nil
}

// Remove deletes the descriptor for key/name, updating every reverse index.
// It reports whether a descriptor was actually removed.
func (r *Registry) Remove(key, name string) bool {
	canon := canonicalKey(key, name)

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byKey[canon]
	if !ok {
		return false
	}
	delete(r.byKey, canon)
	r.unindexLocked(canon, d)
	r.generation.Add(1)
	return true
}

// FindByType returns every visible descriptor registered under t, in
// registration order.
func (r *Registry) FindByType(t reflect.Type) []*Descriptor {
	r.mu.RLock()
	keys := append([]string(nil), r.byType[t]...)
	r.mu.RUnlock()
	return r.collectVisible(keys)
}

// FindByTag returns every visible descriptor carrying tag, in registration
// order.
func (r *Registry) FindByTag(tag string) []*Descriptor {
	r.mu.RLock()
	keys := append([]string(nil), r.byTag[tag]...)
	r.mu.RUnlock()
	return r.collectVisible(keys)
}

// FindByLifetime returns every visible descriptor with the given scope
// policy (SINGLETON/TRANSIENT/SCOPED), in registration order.
func (r *Registry) FindByLifetime(l Lifetime) []*Descriptor {
	r.mu.RLock()
	keys := append([]string(nil), r.byLife[l]...)
	r.mu.RUnlock()
	return r.collectVisible(keys)
}

func (r *Registry) collectVisible(keys []string) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(keys))
	for _, k := range keys {
		if d, ok := r.byKey[k]; ok && d.visible() {
			out = append(out, d)
		}
	}
	return out
}

// Keys returns the canonical key of every currently visible descriptor, in
// no particular order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.byKey))
	for k, d := range r.byKey {
		if d.visible() {
			keys = append(keys, k)
		}
	}
	return keys
}

// Alias registers a forward-reference: a name that could not be resolved to
// a reflect.Type at the call site now stands for canonical. Later lookups
// of name fall back to canonical when no direct registration exists.
func (r *Registry) Alias(name, canonical string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[name] = canonical
	r.generation.Add(1)
}

func (r *Registry) resolveAlias(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.aliases[name]
	return c, ok
}

// rank orders candidates by Descriptor.Priority, descending, returning the
// descriptors tied for the highest priority. A single winner means the analyzer can
// INJECT; more than one still means AMBIGUOUS.
func rank(candidates []*Descriptor) []*Descriptor {
	if len(candidates) <= 1 {
		return candidates
	}
	sorted := append([]*Descriptor(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})
	top := sorted[0].Priority()
	winners := sorted[:0:0]
	for _, d := range sorted {
		if d.Priority() == top {
			winners = append(winners, d)
		}
	}
	return winners
}
