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
	"reflect"
	"sync"

	"github.com/deep-rent/vinculum/internal/ptr"
)

// resolveKey is the Resolver's entry point for registered descriptors: every
// public Resolve and every injected dependency that is registered funnels
// through here so cycle detection, scope policy, and caching are applied
// uniformly regardless of who's asking. resolveValue's auto-creation
// fallback for an unregistered type pushes the resolving stack and calls
// construct itself.
// overrides binds by parameter/field name and applies only to this
// top-most resolution; it is never propagated into nested resolutions of
// the instance's own dependencies.
func (c *Container) resolveKey(ctx context.Context, key, name string, overrides map[string]any) (context.Context, any, error) {
	d, err := c.registry.Get(key, name)
	if err != nil {
		return ctx, nil, err
	}

	// A lazy descriptor resolves to a thunk immediately, deferring the
	// construction protocol (including cycle detection, which runs when the
	// thunk is first invoked instead of now) until first invocation.
	if d.Lazy {
		return ctx, c.lazyThunk(d, overrides), nil
	}

	ctx, err = pushResolving(ctx, d.Key)
	if err != nil {
		return ctx, nil, err
	}
	v, err := c.constructByLifetime(ctx, d, overrides)
	return ctx, v, err
}

// constructByLifetime dispatches to the scope appropriate for d.Lifetime,
// funneling Singleton and Scoped construction through that scope's
// getOrCreate so concurrent demand for the same key builds exactly once.
func (c *Container) constructByLifetime(ctx context.Context, d *Descriptor, overrides map[string]any) (any, error) {
	switch d.Lifetime {
	case Singleton:
		return c.singletons.getOrCreate(d.Key, func() (any, error) { return c.construct(ctx, d, overrides) })
	case Scoped:
		scope, ok := findActiveScope(ctx, d.ScopeName)
		if !ok {
			return nil, errScopeInactive(d.ScopeName, d.Key)
		}
		return scope.getOrCreate(d.Key, func() (any, error) { return c.construct(ctx, d, overrides) })
	default: // Transient
		return c.construct(ctx, d, overrides)
	}
}

// Thunk is what a lazy descriptor resolves to instead of a constructed
// instance: the construction protocol runs on first invocation and the
// same result (or error) is replayed on every later call.
type Thunk func(ctx context.Context) (any, error)

// lazyThunk captures (d, overrides) the way the construction protocol would
// see them eagerly, deferring the actual call to construct until the
// returned Thunk is invoked. sync.Once makes it idempotent and safe for
// concurrent callers.
func (c *Container) lazyThunk(d *Descriptor, overrides map[string]any) Thunk {
	var once sync.Once
	var result any
	var resultErr error
	return func(ctx context.Context) (any, error) {
		once.Do(func() {
			ctx, err := pushResolving(ctx, d.Key)
			if err != nil {
				resultErr = err
				return
			}
			result, resultErr = c.constructByLifetime(ctx, d, overrides)
		})
		return result, resultErr
	}
}

// construct builds one instance per d.Kind and runs Initialize when
// implemented. It records no disposal entry itself: Singleton and Scoped
// instances are tracked by the *Scope that caches them (see below).
func (c *Container) construct(ctx context.Context, d *Descriptor, overrides map[string]any) (inst any, err error) {
	defer recoverPanic(d.Key, &err)

	switch d.Kind {
	case ProviderInstance:
		inst = d.Provider
	case ProviderType:
		inst, err = c.autowireType(ctx, d, overrides)
	case ProviderFactorySync:
		inst, err = c.invokeFactory(ctx, d, nil, overrides)
	case ProviderFactoryAsync:
		if !isAsync(ctx) {
			return nil, errAsyncInSync(d.Key)
		}
		inst, err = c.invokeFactory(ctx, d, nil, overrides)
	default:
		return nil, errProviderFailed(d.Key, errUnknownProviderKind)
	}
	if err != nil {
		return nil, err
	}

	if err := initialize(ctx, d.Key, inst); err != nil {
		return nil, err
	}

	// Disposal tracking for Singleton/Scoped instances happens for free:
	// both land in a *Scope's instances map via getOrCreate, and Scope.close
	// walks that map checking isDisposable itself. A Transient's caller owns
	// its lifecycle, so nothing here ever calls Dispose on one again.

	return inst, nil
}

var errUnknownProviderKind = &Error{Kind: KindProviderFailed, Suggestion: "unrecognized ProviderKind"}

// autowireType constructs a pointer to d.ComponentType's zero value and
// injects every exported field the analyzer classifies as INJECT or
// OPTIONAL, leaving SKIP fields at their zero value except that a SKIP
// pointer field is allocated (see injectField). overrides binds by
// field name and always wins over whatever the analyzer would have decided.
func (c *Container) autowireType(ctx context.Context, d *Descriptor, overrides map[string]any) (any, error) {
	st := d.ComponentType
	for st.Kind() == reflect.Pointer {
		st = st.Elem()
	}

	alloc := reflect.New(st)
	elem := alloc.Elem()

	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.IsExported() {
			continue
		}
		if err := c.injectField(ctx, d.Key, elem.Field(i), f, overrides); err != nil {
			return nil, err
		}
	}

	if d.ComponentType.Kind() == reflect.Pointer {
		return alloc.Interface(), nil
	}
	return elem.Interface(), nil
}

// injectField resolves a single struct field. An entry in overrides keyed
// by the field's own name is never resolved from the registry; it is
// assigned directly and unconditionally, ahead of anything the analyzer
// would otherwise decide for that field (spec rule 6: override injection).
func (c *Container) injectField(ctx context.Context, ownerKey string, field reflect.Value, sf reflect.StructField, overrides map[string]any) error {
	if v, ok := overrides[sf.Name]; ok {
		field.Set(reflect.ValueOf(v))
		return nil
	}

	r := c.analyzer.Analyze(sf.Type, sf.Name, false)
	switch r.Decision {
	case DecisionSkip:
		// A plain data pointer on an auto-created struct is allocated to its
		// zero value rather than left nil, so callers of an auto-created
		// component never have to nil-check a field they never populated.
		// ptr.Deref walks every pointer level (e.g. **T), not just the first.
		if sf.Type.Kind() == reflect.Pointer && field.CanSet() {
			ptr.Deref(field)
		}
		return nil
	case DecisionAmbiguous:
		return errAmbiguous(ownerKey, sf.Name, r.Candidates)
	case DecisionOptional:
		v, err := c.resolveValue(ctx, r.InnerType, "")
		if err != nil {
			if IsKind(err, KindNotRegistered) || IsKind(err, KindScopeInactive) {
				field.Set(reflect.Zero(sf.Type)) // absence is tolerated for Opt[T]
				return nil
			}
			return err
		}
		opt := reflect.New(sf.Type).Elem()
		opt.FieldByName("Value").Set(reflect.ValueOf(v))
		opt.FieldByName("Present").SetBool(true)
		field.Set(opt)
		return nil
	case DecisionInject:
		v, err := c.resolveValue(ctx, sf.Type, "")
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(v))
		return nil
	}
	return nil
}

// resolveValue is resolveKey for callers holding a reflect.Type rather than
// a string key; it first tries the key the registration path derives (the
// type's simple name). When nothing is registered under that key, it falls
// back to the single implementer rank selects among the descriptors
// registered for t and, when none is registered for t at all, to
// auto-creating t as a Transient if the Analyzer's auto-creation rule allows
// it. A nested resolution never inherits the caller's overrides (spec:
// override semantics bind only the top-most resolution).
func (c *Container) resolveValue(ctx context.Context, t reflect.Type, name string) (any, error) {
	_, v, err := c.resolveKey(ctx, typeKey(t), name, nil)
	if err == nil || name != "" || !IsKind(err, KindNotRegistered) {
		return v, err
	}
	found := c.registry.FindByType(t)
	if winners := rank(found); len(winners) == 1 {
		_, v, err = c.resolveKey(ctx, winners[0].Key, "", nil)
	} else if len(found) == 0 && c.analyzer.autoCreate && c.analyzer.canAutoCreate(t, make(map[reflect.Type]bool), 0) {
		d := &Descriptor{Key: typeKey(t), ComponentType: t, Kind: ProviderType, Lifetime: Transient}
		if ctx, err = pushResolving(ctx, d.Key); err == nil {
			v, err = c.construct(ctx, d, nil)
		}
	}
	return v, err
}

// invokeFactory builds a factory function's arguments via the analyzer and
// calls it on the calling goroutine, for the sync and async variant alike. Go
// doesn't preserve function parameter names at runtime, so override-by-name
// for a factory parameter is matched against its type's simple name (the
// nearest Go reflection gets to a parameter name without one); struct-field
// autowiring (see injectField) overrides by the field's own name instead.
// Positional (see CallOpts) fills leading slots by index and takes priority
// over a name-keyed override for the same slot.
func (c *Container) invokeFactory(ctx context.Context, d *Descriptor, positional []any, overrides map[string]any) (any, error) {
	fn := reflect.ValueOf(d.Provider)
	ft := fn.Type()

	args := make([]reflect.Value, ft.NumIn())
	for i := 0; i < ft.NumIn(); i++ {
		pt := ft.In(i)
		if pt == contextType {
			args[i] = reflect.ValueOf(ctx)
			continue
		}
		if i < len(positional) && positional[i] != nil {
			args[i] = reflect.ValueOf(positional[i])
			continue
		}
		if v, ok := overrides[typeKey(pt)]; ok {
			args[i] = reflect.ValueOf(v)
			continue
		}
		r := c.analyzer.Analyze(pt, "", false)
		switch r.Decision {
		case DecisionSkip:
			args[i] = reflect.Zero(pt)
		case DecisionAmbiguous:
			return nil, errAmbiguous(d.Key, "", r.Candidates)
		case DecisionOptional:
			v, err := c.resolveValue(ctx, r.InnerType, "")
			if err != nil && !IsKind(err, KindNotRegistered) && !IsKind(err, KindScopeInactive) {
				return nil, err
			}
			opt := reflect.New(pt).Elem()
			if err == nil {
				opt.FieldByName("Value").Set(reflect.ValueOf(v))
				opt.FieldByName("Present").SetBool(true)
			}
			args[i] = opt
		case DecisionInject:
			v, err := c.resolveValue(ctx, pt, "")
			if err != nil {
				return nil, err
			}
			args[i] = reflect.ValueOf(v)
		default:
			args[i] = reflect.Zero(pt)
		}
	}

	out := fn.Call(args)
	return splitFactoryResult(d.Key, out)
}

// invokeFactoryWithPositional is Call/CallAsync's entry point: unlike a
// registered factory, an ad-hoc callable has no Descriptor of its own, so
// panics are recovered here directly rather than through construct.
func (c *Container) invokeFactoryWithPositional(ctx context.Context, d *Descriptor, positional []any, overrides map[string]any) (result any, err error) {
	defer recoverPanic(d.Key, &err)
	return c.invokeFactory(ctx, d, positional, overrides)
}

// splitFactoryResult interprets a provider's return values under the two
// conventions this package accepts: (T) or (T, error).
func splitFactoryResult(key string, out []reflect.Value) (any, error) {
	switch len(out) {
	case 1:
		return out[0].Interface(), nil
	case 2:
		var err error
		if e, ok := out[1].Interface().(error); ok {
			err = e
		}
		if err != nil {
			return nil, errProviderFailed(key, err)
		}
		return out[0].Interface(), nil
	default:
		return nil, errProviderFailed(key, errUnknownProviderKind)
	}
}
