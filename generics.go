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
)

// providerSpec is the untyped payload Instance/Type/Factory/FactoryAsync
// build; Register[T] turns it into a Descriptor keyed by T's own type, so
// callers never type a string key by hand for the common case.
type providerSpec struct {
	kind     ProviderKind
	provider any
	lifetime Lifetime
}

// Instance wraps a pre-built value as a Singleton provider.
func Instance(v any) providerSpec {
	return providerSpec{kind: ProviderInstance, provider: v, lifetime: Singleton}
}

// Type builds T by allocating its zero value and auto-wiring its exported
// fields, Transient unless overridden with WithLifetime.
func Type[T any]() providerSpec {
	var zero T
	return providerSpec{kind: ProviderType, provider: reflect.TypeOf(zero), lifetime: Transient}
}

// Factory builds a value by calling fn, whose parameters are resolved by
// the Analyzer, Transient unless overridden with WithLifetime.
func Factory(fn any) providerSpec {
	return providerSpec{kind: ProviderFactorySync, provider: fn, lifetime: Transient}
}

// FactoryAsync is Factory for a provider meant to run only behind
// ResolveAsync/CallAsync.
func FactoryAsync(fn any) providerSpec {
	return providerSpec{kind: ProviderFactoryAsync, provider: fn, lifetime: Transient}
}

// WithLifetime overrides a providerSpec's default lifetime.
func WithLifetime(l Lifetime) RegisterOption {
	return func(d *Descriptor) { d.Lifetime = l }
}

// Register submits spec as the provider for T, where T is typically a
// pointer type (e.g. *Repository) so the constructed instance's type
// matches what callers of Resolve[T] expect back.
func Register[T any](c *Container, spec providerSpec, opts ...RegisterOption) (*Descriptor, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	componentType := t
	if pt, ok := spec.provider.(reflect.Type); ok {
		// Type[T] stashed the zero value's reflect.Type; autowireType always
		// returns a pointer, so ComponentType must be the pointer type to
		// match T when T is itself a pointer.
		if t.Kind() == reflect.Pointer && pt == t.Elem() {
			componentType = t
		} else {
			componentType = pt
		}
	}
	d := &Descriptor{
		Key:           typeKey(t),
		ComponentType: componentType,
		Provider:      spec.provider,
		Kind:          spec.kind,
		Lifetime:      spec.lifetime,
	}
	if spec.kind == ProviderType {
		d.Provider = nil // autowireType only needs ComponentType
	}
	return c.Register(d, opts...)
}

// Resolve resolves T by its canonical type key. overrides binds a struct
// field or factory parameter by name, bypassing the registry for that slot;
// pass nil when there is nothing to override.
func Resolve[T any](ctx context.Context, c *Container, overrides map[string]any) (T, error) {
	var zero T
	t := reflect.TypeOf((*T)(nil)).Elem()
	v, err := c.Resolve(ctx, typeKey(t), "", overrides)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, errTypeResolutionFailed(typeKey(t))
	}
	return out, nil
}

// ResolveNamed is Resolve with an explicit disambiguating name.
func ResolveNamed[T any](ctx context.Context, c *Container, name string, overrides map[string]any) (T, error) {
	var zero T
	t := reflect.TypeOf((*T)(nil)).Elem()
	v, err := c.Resolve(ctx, typeKey(t), name, overrides)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, errTypeResolutionFailed(typeKey(t))
	}
	return out, nil
}
