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

import (
	"fmt"
	"unicode"
)

// ValidateNodeID validates an explicitly supplied node identifier.
//
// Validation rules:
//   - must not contain control characters or leading/trailing whitespace
//
// An empty ID is valid: the store generates one on insert.
func ValidateNodeID(id string) error {
	if id == "" {
		return nil
	}
	runes := []rune(id)
	if unicode.IsSpace(runes[0]) || unicode.IsSpace(runes[len(runes)-1]) {
		return fmt.Errorf("%w: node ID %q has surrounding whitespace", ErrInvalidArgument, id)
	}
	for _, r := range runes {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: node ID contains control characters", ErrInvalidArgument)
		}
	}
	return nil
}

// ValidateLink validates a Link according to domain rules.
//
// Validation rules:
//   - Kind and Tag must not be empty
//   - Direction must be one of in, out, bidir
func ValidateLink(link Link) error {
	if link.Kind == "" {
		return fmt.Errorf("%w: empty kind", ErrInvalidLink)
	}
	if link.Tag == "" {
		return fmt.Errorf("%w: empty tag", ErrInvalidLink)
	}
	switch link.Direction {
	case DirectionIn, DirectionOut, DirectionBidir:
		return nil
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidLink, link.Direction)
	}
}

// ValidateNode validates a Node prior to insertion.
func ValidateNode(node *Node) error {
	if node == nil {
		return fmt.Errorf("%w: node is nil", ErrInvalidArgument)
	}
	if err := ValidateNodeID(node.ID); err != nil {
		return err
	}
	for _, link := range node.Links {
		if err := ValidateLink(link); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
	}
	return nil
}

// ValidateLambda validates an MMR lambda multiplier.
// Lambda must be in [0, 1]: 0 is maximum diversity, 1 is pure relevance.
func ValidateLambda(lambda float64) error {
	if lambda < 0 || lambda > 1 {
		return fmt.Errorf("%w: lambda %v outside [0, 1]", ErrInvalidArgument, lambda)
	}
	return nil
}
