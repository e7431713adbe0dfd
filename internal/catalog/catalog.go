package catalog

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"daemondb/internal/buffer"
	"daemondb/internal/diskio"
	"daemondb/internal/hash"
	"daemondb/internal/txn"
)

// numCatalogBuckets sizes the small hash table the catalog itself is
// backed by. A database's table count is expected to be tiny next to the
// row counts the core hash table is built for; this just needs enough
// slots that registering a handful of tables never forces a Resize.
const numCatalogBuckets = 64

/*
Catalog is the smallest "schema wiring" an external collaborator needs
to go from a table name to the header page id of that table's
linear-probe hash index. Rather than a flat in-memory map (the
teacher's storage_engine/catalog.CatalogManager keeps
map[string]TableFileMapping), this re-expresses the same mapping as a
client of the hash table itself, so table registration exercises
Insert/GetValue/Remove end to end instead of sitting beside them.

Table names hash to uint64 keys via xxhash; the header page id is
stored as the value. A hash collision between two distinct table names
is possible but vanishingly unlikely and is not disambiguated further
— the catalog is an external collaborator, not part of the core being
specified.
*/
type Catalog struct {
	tables *hash.Table
}

// New constructs a catalog backed by a fresh linear-probe hash table.
func New(bpm *buffer.PoolManager) (*Catalog, error) {
	t, err := hash.New("__catalog__", bpm, hash.Uint64Comparator, numCatalogBuckets, hash.XXHash)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return &Catalog{tables: t}, nil
}

func nameKey(name string) uint64 {
	return xxhash.Sum64String(name)
}

// Register records headerPageID as the table named name's index root.
// It fails if the name is already registered.
func (c *Catalog) Register(tx *txn.Txn, name string, headerPageID diskio.PageID) error {
	if _, ok := c.Lookup(tx, name); ok {
		return fmt.Errorf("catalog: table %q already registered", name)
	}
	if !c.tables.Insert(tx, nameKey(name), uint64(headerPageID)) {
		return fmt.Errorf("catalog: failed to register table %q", name)
	}
	return nil
}

// Lookup returns the header page id registered for name, if any.
func (c *Catalog) Lookup(tx *txn.Txn, name string) (diskio.PageID, bool) {
	values, ok := c.tables.GetValue(tx, nameKey(name))
	if !ok || len(values) == 0 {
		return diskio.InvalidPageID, false
	}
	return diskio.PageID(values[0]), true
}

// Drop removes name's registration, returning false if it wasn't present.
func (c *Catalog) Drop(tx *txn.Txn, name string) bool {
	headerPageID, ok := c.Lookup(tx, name)
	if !ok {
		return false
	}
	return c.tables.Remove(tx, nameKey(name), uint64(headerPageID))
}
