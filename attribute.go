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

package evloop

import (
	"sync"
	"sync/atomic"
	"unsafe"

	errorx "github.com/evloop/evloop/pkg/errors"
)

// AttributeKey names an attribute stored on an executor. Keys are interned,
// each name maps to exactly one key for the lifetime of the process, and
// identity comparison of keys is therefore sufficient.
type AttributeKey struct {
	id   int
	name string
}

// String returns the name the key was registered with.
func (k *AttributeKey) String() string {
	return k.name
}

var attributeKeys = struct {
	sync.Mutex
	nextID int
	names  map[string]*AttributeKey
}{names: make(map[string]*AttributeKey)}

// NewAttributeKey registers a new key under the given name. It returns
// ErrEmptyAttributeKey for an empty name and ErrDuplicateAttributeKey when
// the name has been registered before.
func NewAttributeKey(name string) (*AttributeKey, error) {
	if name == "" {
		return nil, errorx.ErrEmptyAttributeKey
	}
	attributeKeys.Lock()
	defer attributeKeys.Unlock()
	if _, dup := attributeKeys.names[name]; dup {
		return nil, errorx.ErrDuplicateAttributeKey
	}
	key := &AttributeKey{id: attributeKeys.nextID, name: name}
	attributeKeys.nextID++
	attributeKeys.names[name] = key
	return key, nil
}

// MakeAttributeKey is like NewAttributeKey but panics on error, for use in
// variable initializations.
func MakeAttributeKey(name string) *AttributeKey {
	key, err := NewAttributeKey(name)
	if err != nil {
		panic(err)
	}
	return key
}

// Attribute is an atomic value cell attached to an executor. The zero value
// holds nil. All methods are safe for concurrent use.
type Attribute struct {
	key *AttributeKey
	p   unsafe.Pointer // *any, nil when unset
}

// Key returns the key this attribute is stored under.
func (a *Attribute) Key() *AttributeKey {
	return a.key
}

// Get returns the current value, nil when unset.
func (a *Attribute) Get() any {
	box := (*any)(atomic.LoadPointer(&a.p))
	if box == nil {
		return nil
	}
	return *box
}

// Set stores v, a nil v clears the attribute.
func (a *Attribute) Set(v any) {
	if v == nil {
		atomic.StorePointer(&a.p, nil)
		return
	}
	atomic.StorePointer(&a.p, unsafe.Pointer(&v))
}

// GetAndSet stores v and returns the value it replaced.
func (a *Attribute) GetAndSet(v any) any {
	var p unsafe.Pointer
	if v != nil {
		p = unsafe.Pointer(&v)
	}
	box := (*any)(atomic.SwapPointer(&a.p, p))
	if box == nil {
		return nil
	}
	return *box
}

// SetIfAbsent stores v only when the attribute is unset. It returns nil when
// v was stored, otherwise the value already present.
func (a *Attribute) SetIfAbsent(v any) any {
	if v == nil {
		return a.Get()
	}
	p := unsafe.Pointer(&v)
	for {
		old := atomic.LoadPointer(&a.p)
		if old != nil {
			return *(*any)(old)
		}
		if atomic.CompareAndSwapPointer(&a.p, nil, p) {
			return nil
		}
	}
}

// GetAndRemove clears the attribute and returns the value it held.
func (a *Attribute) GetAndRemove() any {
	return a.GetAndSet(nil)
}

// Remove clears the attribute.
func (a *Attribute) Remove() {
	atomic.StorePointer(&a.p, nil)
}

// attributeMap backs the Attr method of executors. The map is allocated on
// first use, executors that never carry attributes pay only the mutex.
type attributeMap struct {
	mu    sync.Mutex
	attrs map[int]*Attribute
}

func (m *attributeMap) Attr(key *AttributeKey) *Attribute {
	if key == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attrs == nil {
		m.attrs = make(map[int]*Attribute)
	}
	attr, ok := m.attrs[key.id]
	if !ok {
		attr = &Attribute{key: key}
		m.attrs[key.id] = attr
	}
	return attr
}
