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
	"fmt"
	"strings"
)

// Kind distinguishes the failure modes the container can report. Unlike a
// bare string, a Kind is safe to switch on without risking a typo.
type Kind string

const (
	KindNotRegistered       Kind = "NOT_REGISTERED"
	KindAlreadyRegistered   Kind = "ALREADY_REGISTERED"
	KindAmbiguousInjection  Kind = "AMBIGUOUS_INJECTION"
	KindCircularDependency  Kind = "CIRCULAR_DEPENDENCY"
	KindScopeInactive       Kind = "SCOPE_INACTIVE"
	KindScopeReentry        Kind = "SCOPE_REENTRY"
	KindAsyncInSyncContext  Kind = "ASYNC_IN_SYNC_CONTEXT"
	KindInitializationFailed Kind = "INITIALIZATION_FAILED"
	KindProviderFailed      Kind = "PROVIDER_FAILED"
	KindTypeResolutionFailed Kind = "TYPE_RESOLUTION_FAILED"
)

// Error is the single error type the container returns for every
// predictable failure. The Registry performs no index-consistency checks,
// so no error or panic reports an internal invariant violation.
type Error struct {
	Kind       Kind
	Key        string
	Param      string
	Candidates []string
	Cycle      []string
	Suggestion string
	Cause      error
	// TraceID holds a correlation id. No function in this package sets it,
	// so it is empty on every Error the container returns.
	TraceID string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Key != "" {
		fmt.Fprintf(&b, " key=%q", e.Key)
	}
	if e.Param != "" {
		fmt.Fprintf(&b, " param=%q", e.Param)
	}
	if len(e.Candidates) > 0 {
		fmt.Fprintf(&b, " candidates=%s", strings.Join(e.Candidates, ","))
	}
	if len(e.Cycle) > 0 {
		fmt.Fprintf(&b, " cycle=%s", strings.Join(e.Cycle, "->"))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, " (%s)", e.Suggestion)
	}
	return b.String()
}

// Unwrap exposes the underlying cause, if any, for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// IsKind reports whether err is a *Error of the given Kind.
func IsKind(err error, k Kind) bool {
	var verr *Error
	if ok := asError(err, &verr); ok {
		return verr.Kind == k
	}
	return false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func errNotRegistered(key string) *Error {
	return &Error{Kind: KindNotRegistered, Key: key,
		Suggestion: "register a provider for this key before resolving it"}
}

func errAlreadyRegistered(key string) *Error {
	return &Error{Kind: KindAlreadyRegistered, Key: key,
		Suggestion: "pass AllowOverride() to replace an existing registration"}
}

func errAmbiguous(key, param string, candidates []string) *Error {
	return &Error{Kind: KindAmbiguousInjection, Key: key, Param: param,
		Candidates: candidates,
		Suggestion: "register only one implementation, or disambiguate with a Name"}
}

func errCircular(cycle []string) *Error {
	return &Error{Kind: KindCircularDependency, Cycle: cycle,
		Suggestion: "break the cycle or resolve one side lazily"}
}

func errScopeInactive(scopeName, key string) *Error {
	return &Error{Kind: KindScopeInactive, Key: key,
		Suggestion: fmt.Sprintf("scope %q must be active to resolve this component", scopeName)}
}

func errScopeReentry(scopeName string) *Error {
	return &Error{Kind: KindScopeReentry, Key: scopeName,
		Suggestion: "close the existing activation before reactivating it"}
}

func errAsyncInSync(key string) *Error {
	return &Error{Kind: KindAsyncInSyncContext, Key: key,
		Suggestion: "use ResolveAsync/CallAsync for this component"}
}

func errInitializationFailed(key string, cause error) *Error {
	return &Error{Kind: KindInitializationFailed, Key: key, Cause: cause}
}

func errProviderFailed(key string, cause error) *Error {
	return &Error{Kind: KindProviderFailed, Key: key, Cause: cause}
}

func errTypeResolutionFailed(name string) *Error {
	return &Error{Kind: KindTypeResolutionFailed, Key: name,
		Suggestion: "register a forward reference alias for this name"}
}
