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

// Package vinculum is a reflection-based dependency injection container.
// It keys components by name or type, wires constructor parameters and
// exported struct fields automatically, and manages singleton, transient,
// and scoped lifetimes with ordered disposal.
//
//	c := vinculum.New()
//	vinculum.Register[*Logger](c, vinculum.Instance(vlog.New()))
//	vinculum.Register[*Repository](c, vinculum.Type[Repository]())
//	svc, err := vinculum.Resolve[*Service](context.Background(), c, nil)
package vinculum

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/deep-rent/vinculum/vlog"
	"github.com/google/uuid"
)

func defaultLogger() *slog.Logger { return vlog.New() }

// Policy configures ambient resolver behavior that doesn't belong on any
// single Descriptor: whether unregistered concrete types may be
// auto-constructed from their own fields (rule 10), and how deep that
// recursive proof is allowed to walk before giving up. Load one with
// vconfig.Load into this exact shape.
type Policy struct {
	AutoCreate bool `json:"autoCreate" yaml:"autoCreate"`
	MaxDepth   int  `json:"maxDepth" yaml:"maxDepth"`
}

// DefaultPolicy matches the Analyzer's own zero-config defaults.
func DefaultPolicy() Policy {
	return Policy{AutoCreate: true, MaxDepth: maxAutoCreateDepth}
}

// Container is the façade applications use: it owns a Registry, the
// Analyzer built on top of it, the singleton cache, and the logger used for
// the one class of message this package ever emits on its own (a swallowed
// Dispose failure).
type Container struct {
	registry   *Registry
	analyzer   *Analyzer
	singletons *Scope
	log        *slog.Logger
	parent     *Container
}

// Option configures a Container at construction time.
type Option func(*Container)

// WithLogger overrides the logger used for swallowed disposal failures.
// The default, from vlog.New(), writes text-formatted records to stdout.
func WithLogger(log *slog.Logger) Option {
	return func(c *Container) { c.log = log }
}

// WithPolicy applies p to the Container's Analyzer.
func WithPolicy(p Policy) Option {
	return func(c *Container) { c.analyzer.SetPolicy(p.AutoCreate, p.MaxDepth) }
}

// New creates an empty Container.
func New(opts ...Option) *Container {
	registry := NewRegistry()
	c := &Container{
		registry:   registry,
		analyzer:   NewAnalyzer(registry),
		singletons: newScope(""),
		log:        defaultLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateChild returns a new Container sharing this one's Registry and
// Analyzer but with its own singleton cache, so overriding a binding in the
// child never mutates instances already constructed by the parent. Scope
// activations are unaffected either way; they live on the context, not the
// Container.
func (c *Container) CreateChild() *Container {
	return &Container{
		registry:   c.registry,
		analyzer:   c.analyzer,
		singletons: newScope(""),
		log:        c.log,
		parent:     c,
	}
}

// RegisterOption configures a single registration.
type RegisterOption func(*Descriptor)

func WithName(name string) RegisterOption        { return func(d *Descriptor) { d.Name = name } }
func WithTags(tags ...string) RegisterOption      { return func(d *Descriptor) { d.Tags = newTagSet(tags) } }
func WithCondition(cond Condition) RegisterOption { return func(d *Descriptor) { d.Condition = cond } }
// WithLazy defers construction: Resolve/ResolveAsync return a Thunk instead
// of a constructed instance, and the construction protocol only runs when
// that Thunk is first invoked.
func WithLazy() RegisterOption { return func(d *Descriptor) { d.Lazy = true } }
func WithScopeName(name string) RegisterOption {
	return func(d *Descriptor) { d.Lifetime = Scoped; d.ScopeName = name }
}
func WithMetadata(key string, value any) RegisterOption {
	return func(d *Descriptor) {
		if d.Metadata == nil {
			d.Metadata = make(map[string]any)
		}
		d.Metadata[key] = value
	}
}
func AllowOverride() RegisterOption { return func(d *Descriptor) { d.allowOverride = true } }

// Implements marks the descriptor as a discoverable implementer of each
// given interface type, so the Analyzer's abstract-capability rule finds it
// when a constructor parameter asks for the interface rather than the
// concrete type.
func Implements(ifaces ...reflect.Type) RegisterOption {
	return func(d *Descriptor) { d.Implements = append(d.Implements, ifaces...) }
}

// Register inserts a fully-formed Descriptor, applying opts before
// submitting it to the Registry.
func (c *Container) Register(d *Descriptor, opts ...RegisterOption) (*Descriptor, error) {
	for _, opt := range opts {
		opt(d)
	}
	return c.registry.Register(d, d.allowOverride)
}

// RegisterType registers componentType (typically obtained via
// reflect.TypeOf((*T)(nil)) for a pointer receiver) to be constructed by
// allocating its zero value and auto-wiring its exported fields.
func (c *Container) RegisterType(componentType reflect.Type, lifetime Lifetime, opts ...RegisterOption) (*Descriptor, error) {
	d := &Descriptor{
		Key:           typeKey(componentType),
		ComponentType: componentType,
		Kind:          ProviderType,
		Lifetime:      lifetime,
	}
	return c.Register(d, opts...)
}

// RegisterFactory registers fn, a function whose parameters are resolved by
// the Analyzer and whose return is (T) or (T, error), as the provider for
// its result type.
func (c *Container) RegisterFactory(fn any, lifetime Lifetime, opts ...RegisterOption) (*Descriptor, error) {
	ft := reflect.TypeOf(fn)
	if ft == nil || ft.Kind() != reflect.Func || ft.NumOut() == 0 {
		return nil, errProviderFailed("", errUnknownProviderKind)
	}
	// A factory that happens to take context.Context as its first parameter
	// is still classified ProviderFactorySync unless registered through
	// RegisterFactoryAsync: the context is then treated as an ordinary
	// injected value (see invokeFactory), not as an async marker.
	d := &Descriptor{
		Key:           typeKey(ft.Out(0)),
		ComponentType: ft.Out(0),
		Provider:      fn,
		Kind:          ProviderFactorySync,
		Lifetime:      lifetime,
	}
	return c.Register(d, opts...)
}

// RegisterFactoryAsync registers fn, which must accept context.Context as
// its first parameter, to be invoked only through ResolveAsync/CallAsync.
func (c *Container) RegisterFactoryAsync(fn any, lifetime Lifetime, opts ...RegisterOption) (*Descriptor, error) {
	ft := reflect.TypeOf(fn)
	if ft == nil || ft.Kind() != reflect.Func || ft.NumOut() == 0 {
		return nil, errProviderFailed("", errUnknownProviderKind)
	}
	d := &Descriptor{
		Key:           typeKey(ft.Out(0)),
		ComponentType: ft.Out(0),
		Provider:      fn,
		Kind:          ProviderFactoryAsync,
		Lifetime:      lifetime,
	}
	return c.Register(d, opts...)
}

// RegisterInstance registers a pre-built value as a singleton.
func (c *Container) RegisterInstance(instance any, opts ...RegisterOption) (*Descriptor, error) {
	t := reflect.TypeOf(instance)
	d := &Descriptor{
		Key:           typeKey(t),
		ComponentType: t,
		Provider:      instance,
		Kind:          ProviderInstance,
		Lifetime:      Singleton,
	}
	return c.Register(d, opts...)
}

// Resolve looks up key/name and constructs or returns the cached instance,
// synchronously. It fails with ASYNC_IN_SYNC_CONTEXT if the resolved
// descriptor is a ProviderFactoryAsync. overrides binds a struct field or
// factory parameter by name, bypassing the registry for that slot entirely
// (spec rule 6); pass nil when there is nothing to override. If the
// descriptor was registered WithLazy, Resolve returns a Thunk instead of a
// constructed instance.
func (c *Container) Resolve(ctx context.Context, key, name string, overrides map[string]any) (any, error) {
	ctx = c.prepare(ctx)
	_, v, err := c.resolveKey(ctx, key, name, overrides)
	return v, err
}

// ResolveAsync is Resolve's counterpart for ProviderFactoryAsync
// descriptors; it also allows a sync descriptor to be resolved from an
// async call path.
func (c *Container) ResolveAsync(ctx context.Context, key, name string, overrides map[string]any) (any, error) {
	ctx = withAsync(c.prepare(ctx))
	_, v, err := c.resolveKey(ctx, key, name, overrides)
	return v, err
}

// CallOpts configures Call/CallAsync.
type CallOpts struct {
	// Positional supplies leading factory arguments directly, bypassing the
	// analyzer for those positions.
	Positional []any
	// Overrides binds a factory parameter by the simple name of its type
	// (see invokeFactory's doc comment on why Go can't match a plain
	// function's parameters by their declared name). Positional wins over
	// Overrides for the same slot.
	Overrides map[string]any
}

// Call invokes fn, resolving every parameter the Analyzer classifies as
// INJECT/OPTIONAL, and returns its (T) or (T, error) result.
func (c *Container) Call(ctx context.Context, fn any, opts CallOpts) (any, error) {
	ctx = c.prepare(ctx)
	return c.call(ctx, fn, opts)
}

// CallAsync is Call with the async marker set on the context, so fn's
// dependencies may include ProviderFactoryAsync descriptors. fn itself runs
// on the calling goroutine.
func (c *Container) CallAsync(ctx context.Context, fn any, opts CallOpts) (any, error) {
	ctx = withAsync(c.prepare(ctx))
	return c.call(ctx, fn, opts)
}

func (c *Container) call(ctx context.Context, fn any, opts CallOpts) (any, error) {
	d := &Descriptor{Key: "call", Provider: fn, Kind: ProviderFactorySync, Lifetime: Transient}
	v, err := c.invokeFactoryWithPositional(ctx, d, opts.Positional, opts.Overrides)
	return v, err
}

// Scope activates name as a Scoped-lifetime boundary for the returned
// context. Resolutions made against the returned context that request a
// component Scoped to name share one instance; resolutions against a
// different, unrelated context never see it. Reactivating an already-active
// name on the same context chain fails with SCOPE_REENTRY.
func (c *Container) Scope(ctx context.Context, name string) (*ScopeHandle, error) {
	ctx = c.prepare(ctx)
	if _, active := findActiveScope(ctx, name); active {
		return nil, errScopeReentry(name)
	}
	s := newScope(name)
	return &ScopeHandle{Context: withActiveScope(ctx, s), container: c, scope: s}, nil
}

// Has reports whether key/name is registered and currently visible.
func (c *Container) Has(key, name string) bool { return c.registry.Has(key, name) }

// Keys returns every currently visible descriptor's canonical key.
func (c *Container) Keys() []string {
	return c.registry.Keys()
}

// Close disposes every singleton this Container constructed, in reverse
// construction order. A child Container's Close never touches its parent's
// singletons, since each Container owns its own singleton cache.
func (c *Container) Close(ctx context.Context) error {
	c.singletons.close(ctx, c.log)
	return nil
}

// prepare stamps ctx with a trace id if it doesn't already carry one, so a
// fresh top-level Resolve/Call/Scope starts its own correlation id while a
// nested call (already holding a trace id from its caller) keeps it.
func (c *Container) prepare(ctx context.Context) context.Context {
	if traceID(ctx) != "" {
		return ctx
	}
	return withTrace(ctx, uuid.NewString())
}
