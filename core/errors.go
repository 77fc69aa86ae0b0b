// Copyright 2025 Poiesic Systems
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


package core

import "errors"

var (
	// ErrNotFound indicates that a requested node does not exist.
	ErrNotFound = errors.New("node not found")

	// ErrInvalidArgument indicates a malformed argument: an invalid
	// identifier, an out-of-range parameter, a bad link direction, or a
	// metadata filter referencing a non-indexed field. Always raised
	// before any storage I/O.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidLink indicates a Link failed validation.
	ErrInvalidLink = errors.New("invalid link")
)
