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

import "reflect"

// Lifetime is the scope policy of a registered component.
type Lifetime string

const (
	// Singleton components are constructed once per Container and reused
	// for the Container's lifetime.
	Singleton Lifetime = "singleton"
	// Transient components are constructed anew on every resolution.
	Transient Lifetime = "transient"
	// Scoped components are constructed once per active Scope activation
	// sharing the descriptor's ScopeName.
	Scoped Lifetime = "scoped"
)

// ProviderKind classifies how a Descriptor produces instances.
type ProviderKind string

const (
	// ProviderType builds instances by constructing a struct value and
	// auto-wiring its exported fields.
	ProviderType ProviderKind = "type"
	// ProviderFactorySync builds instances by invoking a plain function
	// whose parameters are resolved by the Type Analyzer.
	ProviderFactorySync ProviderKind = "factory_sync"
	// ProviderFactoryAsync builds instances by invoking a function that may
	// only be reached from an async call path (ResolveAsync/CallAsync). It
	// runs on the calling goroutine; a context.Context parameter receives
	// the resolution's context.
	ProviderFactoryAsync ProviderKind = "factory_async"
	// ProviderInstance wraps a pre-built value.
	ProviderInstance ProviderKind = "instance"
)

// Condition is a nullary predicate gating a Descriptor's visibility. A false
// result makes the descriptor invisible to every lookup operation.
type Condition func() bool

// Descriptor is the registry's row: the full metadata needed to produce and
// manage one component.
type Descriptor struct {
	// Key is the canonical identifier, e.g. "Logger" or "Logger:primary".
	Key string
	// ComponentType is the interface or concrete type this descriptor
	// provides, derived from Provider at registration time.
	ComponentType reflect.Type
	// Provider is a factory function or a pre-built instance, depending on
	// Kind. It is not used for ProviderType, which builds from ComponentType.
	Provider any
	// Kind classifies Provider.
	Kind ProviderKind
	// Lifetime is the scope policy.
	Lifetime Lifetime
	// ScopeName names the scope this descriptor belongs to. Required iff
	// Lifetime == Scoped.
	ScopeName string
	// Name disambiguates multiple descriptors for the same ComponentType.
	Name string
	// Condition optionally gates visibility; nil means always visible.
	Condition Condition
	// Tags categorize the descriptor for FindByTag.
	Tags map[string]struct{}
	// Lazy defers construction until first use through a thunk.
	Lazy bool
	// Metadata is a free-form key/value bag, e.g. Metadata["priority"].
	Metadata map[string]any

	// Implements lists additional interface types this descriptor should be
	// discoverable under via FindByType, beyond ComponentType itself. The
	// Analyzer's abstract-capability rule (rule 9) calls FindByType(iface)
	// to enumerate every registered implementer of an interface parameter.
	Implements []reflect.Type

	// allowOverride is set by the AllowOverride RegisterOption; it never
	// appears in a Descriptor returned from the Registry, only on the one
	// being submitted to it.
	allowOverride bool
}

// visible reports whether the descriptor's condition currently allows it to
// be returned from registry lookups.
func (d *Descriptor) visible() bool {
	return d.Condition == nil || d.Condition()
}

// HasTag reports whether tag was attached to the descriptor at registration.
func (d *Descriptor) HasTag(tag string) bool {
	if d.Tags == nil {
		return false
	}
	_, ok := d.Tags[tag]
	return ok
}

// Priority returns Metadata["priority"] as an int, defaulting to 0. It is
// used as a secondary tie-breaker when several capability implementers
// would otherwise be equally ranked (see rank).
func (d *Descriptor) Priority() int {
	if d.Metadata == nil {
		return 0
	}
	if p, ok := d.Metadata["priority"].(int); ok {
		return p
	}
	return 0
}

func newTagSet(tags []string) map[string]struct{} {
	if len(tags) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}

// canonicalKey normalizes a type/string key and optional name into the
// registry's canonical "<key>" or "<key>:<name>" form.
func canonicalKey(key, name string) string {
	if name == "" {
		return key
	}
	return key + ":" + name
}
