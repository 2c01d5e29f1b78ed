package streamkit

import (
	"math/rand"
	"sync/atomic"

	"github.com/serialx/hashring"
)

//**************************************
// RandomSet
//**************************************

// RandomSet implements a member set which returns a random member on
// every call to it's Get() method. It uses the internal random
// package, which is not truly random.
type RandomSet struct {
	items []string
	set   map[string]int
}

// NewRandomSet returns a new instance of RandomSet.
func NewRandomSet() *RandomSet {
	return &RandomSet{
		set: map[string]int{},
	}
}

// Get will return the next member in a random fashion, allowing some
// form of distributed calls across members offering the same service.
func (p *RandomSet) Get() string {
	total := len(p.items)
	target := rand.Intn(total)
	return p.items[target]
}

// Total returns current total of members in set.
func (p *RandomSet) Total() int {
	return len(p.items)
}

// Remove removes giving member from set.
func (p *RandomSet) Remove(member string) {
	if !p.Has(member) {
		return
	}

	index := p.set[member]
	delete(p.set, member)

	last := len(p.items) - 1
	if last == 0 {
		p.items = nil
		return
	}

	lastItem := p.items[last]
	p.items[index] = lastItem
	p.items = p.items[:last]

	if lastItem != member {
		p.set[lastItem] = index
	}
}

// Add adds giving member into set.
func (p *RandomSet) Add(member string) {
	if p.Has(member) {
		return
	}

	pIndex := len(p.items)
	p.items = append(p.items, member)
	p.set[member] = pIndex
}

// Has returns true/false if giving member is in set.
func (p *RandomSet) Has(s string) bool {
	_, ok := p.set[s]
	return ok
}

//**************************************
// HashedSet
//**************************************

// HashedSet implements a giving set which is unique in that it has a
// hash ring underline which is encoded to return specific members for
// specific hash strings. It allows consistently retrieving the same
// member for the same hash.
type HashedSet struct {
	set     map[string]struct{}
	hashing *hashring.HashRing
}

// NewHashedSet returns a new instance of HashedSet.
func NewHashedSet(set []string) *HashedSet {
	var hashed HashedSet
	hashed.set = map[string]struct{}{}
	hashed.hashing = hashring.New(set)

	for _, k := range set {
		hashed.set[k] = struct{}{}
	}

	return &hashed
}

// Get returns a giving member for provided hash value.
func (hs *HashedSet) Get(hashed string) (string, bool) {
	if content, ok := hs.hashing.GetNode(hashed); ok {
		return content, ok
	}
	return "", false
}

// Add adds giving member into set.
func (hs *HashedSet) Add(n string) {
	hs.hashing = hs.hashing.AddNode(n)
	hs.set[n] = struct{}{}
}

// Remove removes giving member from set.
func (hs *HashedSet) Remove(n string) {
	hs.hashing = hs.hashing.RemoveNode(n)
	delete(hs.set, n)
}

// Has returns true/false if giving member is in set.
func (hs *HashedSet) Has(n string) bool {
	_, ok := hs.set[n]
	return ok
}

//**************************************
// RoundRobinSet
//**************************************

// RoundRobinSet defines a member set/group of members offering the
// same service contract, provided in rotating index order whenever a
// member is needed for communication.
type RoundRobinSet struct {
	lastIndex int32
	items     []string
	set       map[string]int
}

// NewRoundRobinSet returns a new instance of RoundRobinSet.
func NewRoundRobinSet() *RoundRobinSet {
	return &RoundRobinSet{
		set: map[string]int{},
	}
}

// Get will return the next member in a round-robin fashion, allowing
// some form of distributed calls across members offering the same
// service.
func (p *RoundRobinSet) Get() string {
	var lastIndex int32
	total := int32(len(p.items))
	if atomic.LoadInt32(&p.lastIndex) >= total {
		atomic.StoreInt32(&p.lastIndex, -1)
	}

	lastIndex = atomic.AddInt32(&p.lastIndex, 1)
	target := int(lastIndex % total)

	return p.items[target]
}

// Total returns current total of members in rotation.
func (p *RoundRobinSet) Total() int {
	return len(p.items)
}

// Remove removes giving member from set.
func (p *RoundRobinSet) Remove(member string) {
	if !p.Has(member) {
		return
	}

	index := p.set[member]
	delete(p.set, member)

	last := len(p.items) - 1
	if last == 0 {
		p.items = nil
		return
	}

	lastItem := p.items[last]
	p.items[index] = lastItem
	p.items = p.items[:last]

	if lastItem != member {
		p.set[lastItem] = index
	}
}

// Add adds giving member into set.
func (p *RoundRobinSet) Add(member string) {
	if p.Has(member) {
		return
	}

	pIndex := len(p.items)
	p.items = append(p.items, member)
	p.set[member] = pIndex
}

// Has returns true/false if giving member is in set.
func (p *RoundRobinSet) Has(s string) bool {
	_, ok := p.set[s]
	return ok
}
