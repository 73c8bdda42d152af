// Copyright 2025 clrxasm Authors
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
// Package kconfig implements ConfigStore (spec §4.3, C3), the per-kernel
// Config aggregate (spec §3.3), and the Argument descriptor variants (spec
// §3.4). Sentinel "default" values (0xff/0xffff/0xffffffff/...) are replaced
// throughout by Opt[T], a generic optional wrapper, per spec §9's design note
// "Strongly-typed 'sentinel for default'": unset is a distinct state from
// zero, and the finaliser's default-compute-vs-honour-user logic becomes a
// plain match over IsSet().
package kconfig

// Opt is "unset, or set to a value of T". The zero value of Opt[T] is unset.
type Opt[T any] struct {
	val T
	set bool
}

// Set returns an Opt holding v.
func Set[T any](v T) Opt[T] {
	return Opt[T]{val: v, set: true}
}

// IsSet reports whether a value has been explicitly assigned.
func (o Opt[T]) IsSet() bool { return o.set }

// Get returns the held value; callers must check IsSet first (or use GetOr).
func (o Opt[T]) Get() T { return o.val }

// GetOr returns the held value, or def when unset.
func (o Opt[T]) GetOr(def T) T {
	if o.set {
		return o.val
	}
	return def
}

// SetIfUnset assigns v only if o is currently unset, returning the resulting
// Opt — the finaliser's "compute a default, but only if the user didn't set
// one" pattern (spec §4.8.2/§4.8.3) in one call.
func (o Opt[T]) SetIfUnset(v T) Opt[T] {
	if o.set {
		return o
	}
	return Set(v)
}
