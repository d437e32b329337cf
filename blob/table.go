package blob

import (
	"github.com/gowim/wim/werror"
	"github.com/gowim/wim/wimhash"
)

// Table is a hash-keyed set of blob descriptors offering O(1) average
// lookup, backed directly by a Go map keyed on the full 20-byte hash
// (the map's own hash of the key already behaves like hashing "the
// first machine word" for distribution purposes; there is no need to
// hand-roll a narrower bucket key).
type Table struct {
	byHash map[wimhash.Hash]*Descriptor
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{byHash: make(map[wimhash.Hash]*Descriptor)}
}

// Insert adds desc to the table. Inserting a hash that already exists is
// a caller error (hash collision between distinct content is a
// correctness violation, not a recoverable condition).
func (t *Table) Insert(desc *Descriptor) error {
	if _, exists := t.byHash[desc.Hash]; exists {
		return werror.New(werror.InvalidParam, "blob table: insert of duplicate hash "+desc.Hash.String())
	}
	t.byHash[desc.Hash] = desc
	return nil
}

// Lookup returns the descriptor for hash, or nil if none is present.
func (t *Table) Lookup(hash wimhash.Hash) *Descriptor {
	return t.byHash[hash]
}

// Remove deletes desc.Hash from the table unconditionally, regardless of
// its current refcount.
func (t *Table) Remove(desc *Descriptor) {
	delete(t.byHash, desc.Hash)
}

// Iterate calls fn for every descriptor in the table. Iteration order is
// unspecified, matching Go map iteration.
func (t *Table) Iterate(fn func(*Descriptor)) {
	for _, d := range t.byHash {
		fn(d)
	}
}

// Len reports the number of descriptors currently in the table.
func (t *Table) Len() int {
	return len(t.byHash)
}

// Decref decrements desc's reference count by one. If the count reaches
// zero, the descriptor is removed from the table and Decref reports
// removed=true.
func (t *Table) Decref(desc *Descriptor) (removed bool) {
	if desc.Refcnt > 0 {
		desc.Refcnt--
	}
	if desc.Refcnt == 0 {
		t.Remove(desc)
		return true
	}
	return false
}

// Incref increments desc's reference count by one.
func (t *Table) Incref(desc *Descriptor) {
	desc.Refcnt++
}
