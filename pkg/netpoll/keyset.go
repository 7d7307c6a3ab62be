// Copyright (c) 2023 The Evloop Authors. All rights reserved.
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

package netpoll

import (
	"github.com/evloop/evloop/pkg/errors"
	"github.com/evloop/evloop/pkg/math"
)

// DefaultKeySetCap is the per-side capacity of a KeySet before the first growth.
const DefaultKeySetCap = 1024

// KeySet is a double-buffered, insertion-ordered batch of ready attachments,
// it hands the attachments collected during a poll round over to the drain
// phase without copying, clearing or allocating in steady state.
//
// The set keeps two sides and fills only the active one. Flip terminates the
// active side with a nil sentinel, makes the other side active and returns
// the filled side, so registrations added while a batch is being drained can
// never disturb that batch.
//
// A KeySet is owned by a single goroutine and is not safe for concurrent use.
// It is a write-only staging area rather than a general set: membership
// queries and removal are deliberately unsupported.
type KeySet struct {
	keysA []*PollAttachment
	sizeA int
	keysB []*PollAttachment
	sizeB int
	isA   bool
}

// NewKeySet creates a KeySet holding up to capacity attachments per side
// before the first growth. A non-positive capacity falls back to
// DefaultKeySetCap, any other value is rounded up to the next power of two.
func NewKeySet(capacity int) *KeySet {
	if capacity <= 0 {
		capacity = DefaultKeySetCap
	} else {
		capacity = math.CeilToPowerOfTwo(capacity)
	}
	return &KeySet{
		keysA: make([]*PollAttachment, capacity),
		keysB: make([]*PollAttachment, capacity),
		isA:   true,
	}
}

// Add appends pa to the active side, doubling that side's storage when the
// append fills it to capacity. Adding nil is a no-op that reports false,
// any other add reports true. Duplicates are not detected, the caller
// decides whether an attachment may enter the batch twice.
func (s *KeySet) Add(pa *PollAttachment) bool {
	if pa == nil {
		return false
	}
	if s.isA {
		s.keysA[s.sizeA] = pa
		s.sizeA++
		if s.sizeA == len(s.keysA) {
			s.keysA = growKeys(s.keysA)
		}
	} else {
		s.keysB[s.sizeB] = pa
		s.sizeB++
		if s.sizeB == len(s.keysB) {
			s.keysB = growKeys(s.keysB)
		}
	}
	return true
}

// Len returns the number of attachments on the active side.
func (s *KeySet) Len() int {
	if s.isA {
		return s.sizeA
	}
	return s.sizeB
}

// Flip terminates the active side with a nil sentinel, resets the side that
// is about to become active and returns the terminated batch. Entries
// 0 through Len()-1 of the returned slice are the attachments in insertion
// order, the slot after them is nil and anything beyond it is stale residue
// from earlier rounds, so consumers must stop at the sentinel.
func (s *KeySet) Flip() []*PollAttachment {
	if s.isA {
		s.isA = false
		s.keysA[s.sizeA] = nil
		s.sizeB = 0
		return s.keysA
	}
	s.isA = true
	s.keysB[s.sizeB] = nil
	s.sizeA = 0
	return s.keysB
}

// Remove always reports false, the set only ever empties wholesale via Flip.
func (s *KeySet) Remove(_ *PollAttachment) bool {
	return false
}

// Contains always reports false, the fill phase never needs membership checks.
func (s *KeySet) Contains(_ *PollAttachment) bool {
	return false
}

// Iterate returns ErrUnsupportedOp, the only sanctioned way to consume the
// set is draining the batch returned by Flip.
func (s *KeySet) Iterate(_ func(*PollAttachment) bool) error {
	return errors.ErrUnsupportedOp
}

func growKeys(keys []*PollAttachment) []*PollAttachment {
	grown := make([]*PollAttachment, len(keys)<<1)
	copy(grown, keys)
	return grown
}
