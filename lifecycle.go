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
	"fmt"
	"log/slog"
)

// Initializable is implemented by components that need a post-construction
// hook run once, immediately after every constructor argument has been
// injected, before the instance is handed to its caller.
type Initializable interface {
	Initialize() error
}

// InitializableContext is the context-aware counterpart of Initializable.
// Initialize receives the context of the resolution that constructed the
// component, on the sync and the async path alike.
type InitializableContext interface {
	Initialize(ctx context.Context) error
}

// Disposable is implemented by components that hold a resource (a file
// handle, a connection) which must be released when their owning scope (or
// the Container itself, for singletons) closes.
type Disposable interface {
	Dispose() error
}

// DisposableContext is the context-aware counterpart of Disposable.
type DisposableContext interface {
	Dispose(ctx context.Context) error
}

// initialize dispatches to whichever Initializable variant inst implements.
// The async marker on ctx plays no part in the choice; a type implements at
// most one variant, since both declare a method named Initialize.
func initialize(ctx context.Context, key string, inst any) error {
	switch v := inst.(type) {
	case InitializableContext:
		if err := v.Initialize(ctx); err != nil {
			return errInitializationFailed(key, err)
		}
	case Initializable:
		if err := v.Initialize(); err != nil {
			return errInitializationFailed(key, err)
		}
	}
	return nil
}

// disposalEntry pairs a constructed instance with the key it was resolved
// under, purely for log attribution when disposal fails.
type disposalEntry struct {
	key  string
	inst any
}

func isDisposable(inst any) bool {
	switch inst.(type) {
	case Disposable, DisposableContext:
		return true
	}
	return false
}

// disposeAll runs dispose hooks in reverse construction order (LIFO), the
// mirror image of activation order, logging and swallowing every failure:
// disposal is a best-effort cleanup pass, not a resolution the caller can
// react to, so the container's own operations (Resolve, Scope activation)
// never fail because a sibling's Dispose did.
func disposeAll(ctx context.Context, log *slog.Logger, entries []disposalEntry) {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		var err error
		switch v := e.inst.(type) {
		case DisposableContext:
			err = v.Dispose(ctx)
		case Disposable:
			err = v.Dispose()
		}
		if err != nil {
			log.Error("dispose failed",
				slog.String("key", e.key),
				slog.String("trace_id", traceID(ctx)),
				slog.Any("error", err))
		}
	}
}

// recoverPanic is meant to be deferred directly (defer recoverPanic(key,
// &err)) so recover() observes the panicking provider's goroutine.
func recoverPanic(key string, err *error) {
	if r := recover(); r != nil {
		*err = errProviderFailed(key, fmt.Errorf("panic: %v", r))
	}
}
