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

import "context"

// Every piece of state a resolution needs beyond its own stack frame rides
// along on the context.Context passed into Resolve/Call, rather than on a
// goroutine-local. That makes the one genuinely concurrent operation in this
// package — resolving two independent dependency trees on two goroutines —
// behave exactly like two independent calls, with no shared mutable state
// except the Registry and Scope caches, which already take their own locks.

type ctxKey int

const (
	ctxKeyStack ctxKey = iota
	ctxKeyScopes
	ctxKeyAsync
	ctxKeyTrace
)

// resolving is one frame of the in-flight construction stack, used both to
// render a cycle's path in a CIRCULAR_DEPENDENCY error and to detect the
// cycle in the first place.
type resolving struct {
	key  string
	next *resolving
}

func pushResolving(ctx context.Context, key string) (context.Context, error) {
	head, _ := ctx.Value(ctxKeyStack).(*resolving)
	for f := head; f != nil; f = f.next {
		if f.key == key {
			return ctx, errCircular(cyclePath(head, key))
		}
	}
	frame := &resolving{key: key, next: head}
	return context.WithValue(ctx, ctxKeyStack, frame), nil
}

func cyclePath(head *resolving, closingKey string) []string {
	var path []string
	for f := head; f != nil; f = f.next {
		path = append([]string{f.key}, path...)
	}
	path = append(path, closingKey)
	return path
}

// activeScopes returns the stack of Scope activations visible to the
// current context, most recently activated last; findActiveScope searches
// it from the end.
func activeScopes(ctx context.Context) []*Scope {
	scopes, _ := ctx.Value(ctxKeyScopes).([]*Scope)
	return scopes
}

func withActiveScope(ctx context.Context, s *Scope) context.Context {
	scopes := append(append([]*Scope(nil), activeScopes(ctx)...), s)
	return context.WithValue(ctx, ctxKeyScopes, scopes)
}

func findActiveScope(ctx context.Context, name string) (*Scope, bool) {
	scopes := activeScopes(ctx)
	for i := len(scopes) - 1; i >= 0; i-- {
		if scopes[i].name == name {
			return scopes[i], true
		}
	}
	return nil, false
}

// withAsync marks ctx as originating from an async call path (ResolveAsync/
// CallAsync), allowing the resolver to invoke ProviderFactoryAsync providers
// without raising ASYNC_IN_SYNC_CONTEXT.
func withAsync(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeyAsync, true)
}

func isAsync(ctx context.Context) bool {
	async, _ := ctx.Value(ctxKeyAsync).(bool)
	return async
}

// withTrace attaches a correlation id. disposeAll writes it as trace_id on
// every dispose-failure log line when the context it is given carries one.
// No Error is tagged with it; Error.TraceID stays empty.
func withTrace(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKeyTrace, traceID)
}

func traceID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyTrace).(string)
	return id
}
