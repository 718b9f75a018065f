package ledb

import "sync"

const (
	dataBucketSub    = "data"
	catalogBucket    = "catalog"
	indexBucketPrefix = "idx:"
)

func indexBucketSub(path string) string { return indexBucketPrefix + path }

// Collection is a named set of documents plus the secondary indexes
// maintained over them (spec §4.7). Each Collection owns one top-level
// storage bucket (its name), with the documents themselves in a "data"
// sub-bucket keyed by the big-endian Primary, and one "idx:<path>"
// sub-bucket per index.
type Collection struct {
	st     storage
	name   string
	Serial Serial
	codec  *DocCodec

	serialGen *SerialGenerator

	mu      sync.RWMutex
	indexes map[string]*indexEntry
}

type indexEntry struct {
	idx       *Index
	serial    Serial
	bucketSub string
}

// NewCollection builds a Collection bound to st, named name and carrying
// serial as its own catalog serial. serialGen is shared across every
// collection of the owning Storage, so index serials stay globally
// monotone regardless of which collection they belong to.
func NewCollection(st storage, name string, serial Serial, serialGen *SerialGenerator, primaryField string) *Collection {
	return &Collection{
		st:        st,
		name:      name,
		Serial:    serial,
		codec:     NewDocCodec(primaryField),
		serialGen: serialGen,
		indexes:   map[string]*indexEntry{},
	}
}

func (c *Collection) Name() string { return c.name }

// RegisterIndex records an index already present in the catalog (and whose
// bucket already exists on disk) without backfilling or touching the
// catalog, used when a Storage reloads an existing database.
func (c *Collection) RegisterIndex(def IndexDef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexes[def.Path] = &indexEntry{
		idx:       NewIndex(c.name, def.Path, def.Kind, def.KeyType),
		serial:    def.Serial,
		bucketSub: indexBucketSub(def.Path),
	}
}

// Indexes returns the current index definitions, in no particular order.
func (c *Collection) Indexes() []IndexDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]IndexDef, 0, len(c.indexes))
	for path, e := range c.indexes {
		out = append(out, IndexDef{Serial: e.serial, Collection: c.name, Path: path, Kind: e.idx.Kind, KeyType: e.idx.KeyType})
	}
	return out
}

func (c *Collection) withWrite(fn func(tx storageTx) error) error {
	tx, err := c.st.BeginTx(true)
	if err != nil {
		return newErr(IoFailure, "Collection", err, "begin write transaction on %q", c.name)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return newErr(IoFailure, "Collection", err, "commit transaction on %q", c.name)
	}
	return nil
}

func (c *Collection) withRead(fn func(tx storageTx) error) error {
	tx, err := c.st.BeginTx(false)
	if err != nil {
		return newErr(IoFailure, "Collection", err, "begin read transaction on %q", c.name)
	}
	defer tx.Rollback()
	return fn(tx)
}

// txIndexSource binds a Collection's index registry to one live
// transaction, so Filter.Apply can resolve a field path to the Index and
// storageBucket backing it (spec §4.6's req_index).
type txIndexSource struct {
	c  *Collection
	tx storageTx
}

func (s *txIndexSource) LookupIndex(path string) (*Index, storageBucket, bool) {
	s.c.mu.RLock()
	e, ok := s.c.indexes[path]
	s.c.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	bucket := s.tx.Bucket(s.c.name, e.bucketSub)
	if bucket == nil {
		return nil, nil, false
	}
	return e.idx, bucket, true
}

func (c *Collection) maintainAll(tx storageTx, oldRest, newRest Value, primary uint32) error {
	c.mu.RLock()
	entries := make([]*indexEntry, 0, len(c.indexes))
	for _, e := range c.indexes {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	for _, e := range entries {
		bucket := tx.Bucket(c.name, e.bucketSub)
		if bucket == nil {
			continue
		}
		if err := e.idx.maintain(bucket, oldRest, newRest, primary); err != nil {
			return err
		}
	}
	return nil
}

func allPrimaries(bucket storageBucket) []uint32 {
	if bucket == nil {
		return nil
	}
	var out []uint32
	cur := bucket.Cursor()
	for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
		out = append(out, decodePrimaryBytes(k))
	}
	return out
}

func reverseUint32s(ids []uint32) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}

// LastID returns the highest primary currently stored, or 0 if the
// collection is empty.
func (c *Collection) LastID() (uint32, error) {
	var last uint32
	err := c.withRead(func(tx storageTx) error {
		bucket := tx.Bucket(c.name, dataBucketSub)
		if bucket == nil {
			return nil
		}
		k, _ := bucket.Cursor().Last()
		if k != nil {
			last = decodePrimaryBytes(k)
		}
		return nil
	})
	return last, err
}

// NewID returns LastID()+1, the primary the next Insert will assign.
func (c *Collection) NewID() (uint32, error) {
	last, err := c.LastID()
	return last + 1, err
}

// Has reports whether id names a stored document.
func (c *Collection) Has(id uint32) (bool, error) {
	var found bool
	err := c.withRead(func(tx storageTx) error {
		bucket := tx.Bucket(c.name, dataBucketSub)
		if bucket == nil {
			return nil
		}
		found = bucket.Get(primaryBytes(id)) != nil
		return nil
	})
	return found, err
}

// Get retrieves a document by primary, with the primary field injected back
// under the collection's configured primary-field name.
func (c *Collection) Get(id uint32) (Value, bool, error) {
	var doc Value
	var found bool
	err := c.withRead(func(tx storageTx) error {
		bucket := tx.Bucket(c.name, dataBucketSub)
		if bucket == nil {
			return nil
		}
		payload := bucket.Get(primaryBytes(id))
		if payload == nil {
			return nil
		}
		d, err := c.codec.DecodeDoc(id, payload)
		if err != nil {
			return err
		}
		doc, found = d, true
		return nil
	})
	return doc, found, err
}

// Insert assigns the next primary and stores doc, returning the new primary.
// An integer id field the document already carries is ignored; a
// non-integer or out-of-range id makes Insert fail.
func (c *Collection) Insert(doc Value) (uint32, error) {
	var primary uint32
	err := c.withWrite(func(tx storageTx) error {
		dataBucket, err := tx.CreateBucket(c.name, dataBucketSub)
		if err != nil {
			return newErr(IoFailure, "Collection.Insert", err, "create data bucket")
		}
		id := nextID(dataBucket)

		_, payload, err := c.codec.EncodeDoc(doc, AllowMissingPrimary)
		if err != nil {
			return err
		}
		rest, err := c.codec.DecodePayload(payload)
		if err != nil {
			return err
		}
		if err := dataBucket.Put(primaryBytes(id), payload); err != nil {
			return newErr(IoFailure, "Collection.Insert", err, "put")
		}
		if err := c.maintainAll(tx, Value{}, rest, id); err != nil {
			return err
		}
		primary = id
		return nil
	})
	return primary, err
}

func nextID(bucket storageBucket) uint32 {
	k, _ := bucket.Cursor().Last()
	if k == nil {
		return 1
	}
	return decodePrimaryBytes(k) + 1
}

// Put replaces a document in place; doc must carry a valid primary field.
func (c *Collection) Put(doc Value) error {
	return c.withWrite(func(tx storageTx) error {
		primary, payload, err := c.codec.EncodeDoc(doc, RequirePrimary)
		if err != nil {
			return err
		}
		dataBucket, err := tx.CreateBucket(c.name, dataBucketSub)
		if err != nil {
			return newErr(IoFailure, "Collection.Put", err, "create data bucket")
		}

		oldRest := Value{}
		if oldPayload := dataBucket.Get(primaryBytes(primary)); oldPayload != nil {
			oldRest, err = c.codec.DecodePayload(oldPayload)
			if err != nil {
				return err
			}
		}
		newRest, err := c.codec.DecodePayload(payload)
		if err != nil {
			return err
		}
		if err := dataBucket.Put(primaryBytes(primary), payload); err != nil {
			return newErr(IoFailure, "Collection.Put", err, "put")
		}
		return c.maintainAll(tx, oldRest, newRest, primary)
	})
}

// Delete removes the document at id, reporting whether one was present.
func (c *Collection) Delete(id uint32) (bool, error) {
	var deleted bool
	err := c.withWrite(func(tx storageTx) error {
		dataBucket := tx.Bucket(c.name, dataBucketSub)
		if dataBucket == nil {
			return nil
		}
		payload := dataBucket.Get(primaryBytes(id))
		if payload == nil {
			return nil
		}
		oldRest, err := c.codec.DecodePayload(payload)
		if err != nil {
			return err
		}
		if err := dataBucket.Delete(primaryBytes(id)); err != nil {
			return newErr(IoFailure, "Collection.Delete", err, "delete")
		}
		if err := c.maintainAll(tx, oldRest, Value{}, id); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// FindIDs resolves filter (nil meaning "every document") to the matching
// set of primaries, scanning the full id universe only when the filter's
// Selection is inverted (spec §4.6's find_ids).
func (c *Collection) FindIDs(filter *Filter) ([]uint32, error) {
	var ids []uint32
	err := c.withRead(func(tx storageTx) error {
		dataBucket := tx.Bucket(c.name, dataBucketSub)
		if filter == nil {
			ids = allPrimaries(dataBucket)
			return nil
		}
		sel, err := filter.Apply(&txIndexSource{c: c, tx: tx})
		if err != nil {
			return err
		}
		explicit, inv := sel.IDs()
		if !inv {
			ids = explicit
			return nil
		}
		for _, id := range allPrimaries(dataBucket) {
			if sel.Has(id) {
				ids = append(ids, id)
			}
		}
		return nil
	})
	return ids, err
}

// Find returns every document matching filter (nil meaning "every
// document"), in the order requested (spec §4.6).
func (c *Collection) Find(filter *Filter, order Order) ([]Value, error) {
	var docs []Value
	err := c.withRead(func(tx storageTx) error {
		dataBucket := tx.Bucket(c.name, dataBucketSub)
		src := &txIndexSource{c: c, tx: tx}

		var orderedIDs []uint32
		if order.IsPrimary() {
			orderedIDs = allPrimaries(dataBucket)
			if order.Kind == Desc {
				reverseUint32s(orderedIDs)
			}
		} else {
			idx, bucket, ok := src.LookupIndex(order.Field)
			if !ok {
				return newErr(MissingIndex, "Collection.Find", nil, "no index on %q to order by", order.Field)
			}
			orderedIDs = idx.iteratePrimaries(bucket, order.Kind == Desc)
		}

		var sel *Selection
		if filter != nil {
			s, err := filter.Apply(src)
			if err != nil {
				return err
			}
			sel = &s
		}

		for _, id := range orderedIDs {
			if sel != nil && !sel.Has(id) {
				continue
			}
			payload := dataBucket.Get(primaryBytes(id))
			if payload == nil {
				continue
			}
			doc, err := c.codec.DecodeDoc(id, payload)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	return docs, err
}

// Dump returns every document in primary order, equivalent to
// Find(nil, OrderByPrimary(Asc)).
func (c *Collection) Dump() ([]Value, error) {
	return c.Find(nil, OrderByPrimary(Asc))
}

// Update applies modify to every document matched by filter (nil meaning
// "every document"), returning the number of documents touched.
func (c *Collection) Update(filter *Filter, modify *Modify) (int, error) {
	ids, err := c.FindIDs(filter)
	if err != nil {
		return 0, err
	}
	count := 0
	err = c.withWrite(func(tx storageTx) error {
		dataBucket, err := tx.CreateBucket(c.name, dataBucketSub)
		if err != nil {
			return newErr(IoFailure, "Collection.Update", err, "create data bucket")
		}
		for _, id := range ids {
			payload := dataBucket.Get(primaryBytes(id))
			if payload == nil {
				continue
			}
			oldRest, err := c.codec.DecodePayload(payload)
			if err != nil {
				return err
			}
			newRest := modify.Apply(oldRest)
			newPayload, err := c.codec.EncodePayload(newRest)
			if err != nil {
				return err
			}
			if err := dataBucket.Put(primaryBytes(id), newPayload); err != nil {
				return newErr(IoFailure, "Collection.Update", err, "put")
			}
			if err := c.maintainAll(tx, oldRest, newRest, id); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// Remove deletes every document matched by filter (nil meaning "every
// document"), returning the number of documents removed.
func (c *Collection) Remove(filter *Filter) (int, error) {
	ids, err := c.FindIDs(filter)
	if err != nil {
		return 0, err
	}
	count := 0
	err = c.withWrite(func(tx storageTx) error {
		dataBucket := tx.Bucket(c.name, dataBucketSub)
		if dataBucket == nil {
			return nil
		}
		for _, id := range ids {
			payload := dataBucket.Get(primaryBytes(id))
			if payload == nil {
				continue
			}
			oldRest, err := c.codec.DecodePayload(payload)
			if err != nil {
				return err
			}
			if err := dataBucket.Delete(primaryBytes(id)); err != nil {
				return newErr(IoFailure, "Collection.Remove", err, "delete")
			}
			if err := c.maintainAll(tx, oldRest, Value{}, id); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// Purge removes every document in the collection. Shortcut for Remove(nil).
func (c *Collection) Purge() (int, error) {
	return c.Remove(nil)
}

// Load replaces the collection's contents wholesale: every existing
// document is purged, then each of docs is inserted preserving its own
// primary field (which must be present and valid on every element).
func (c *Collection) Load(docs []Value) (int, error) {
	if _, err := c.Purge(); err != nil {
		return 0, err
	}
	count := 0
	err := c.withWrite(func(tx storageTx) error {
		dataBucket, err := tx.CreateBucket(c.name, dataBucketSub)
		if err != nil {
			return newErr(IoFailure, "Collection.Load", err, "create data bucket")
		}
		for _, doc := range docs {
			primary, payload, err := c.codec.EncodeDoc(doc, RequirePrimary)
			if err != nil {
				return err
			}
			rest, err := c.codec.DecodePayload(payload)
			if err != nil {
				return err
			}
			if err := dataBucket.Put(primaryBytes(primary), payload); err != nil {
				return newErr(IoFailure, "Collection.Load", err, "put")
			}
			if err := c.maintainAll(tx, Value{}, rest, primary); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// EnsureIndex makes sure an index with the given kind and key type exists
// at path, creating or replacing it as needed, and reports whether it
// changed anything.
func (c *Collection) EnsureIndex(path string, kind IndexKind, keyType KeyType) (bool, error) {
	c.mu.RLock()
	existing, ok := c.indexes[path]
	c.mu.RUnlock()
	if ok && existing.idx.Kind == kind && existing.idx.KeyType == keyType {
		return false, nil
	}
	if ok {
		if err := c.DropIndex(path); err != nil {
			return false, err
		}
	}
	return true, c.createIndex(path, kind, keyType)
}

func (c *Collection) createIndex(path string, kind IndexKind, keyType KeyType) error {
	bucketSub := indexBucketSub(path)
	var serial Serial
	err := c.withWrite(func(tx storageTx) error {
		bucket, err := tx.CreateBucket(c.name, bucketSub)
		if err != nil {
			return newErr(IoFailure, "Collection.createIndex", err, "create index bucket")
		}
		idx := NewIndex(c.name, path, kind, keyType)

		if dataBucket := tx.Bucket(c.name, dataBucketSub); dataBucket != nil {
			cur := dataBucket.Cursor()
			for k, payload := cur.First(); k != nil; k, payload = cur.Next() {
				doc, err := c.codec.DecodePayload(payload)
				if err != nil {
					return err
				}
				primary := decodePrimaryBytes(k)
				for _, kd := range extractKeys(doc, path, keyType) {
					if err := idx.put(bucket, kd, primary); err != nil {
						return err
					}
				}
			}
		}

		serial = c.serialGen.Gen()
		catalogBuck, err := tx.CreateBucket(catalogBucket, "")
		if err != nil {
			return newErr(IoFailure, "Collection.createIndex", err, "create catalog bucket")
		}
		def := IndexDef{Serial: serial, Collection: c.name, Path: path, Kind: kind, KeyType: keyType}
		if err := catalogBuck.Put([]byte(formatIndexRecord(def)), []byte{}); err != nil {
			return newErr(IoFailure, "Collection.createIndex", err, "write catalog record")
		}

		c.mu.Lock()
		c.indexes[path] = &indexEntry{idx: idx, serial: serial, bucketSub: bucketSub}
		c.mu.Unlock()
		return nil
	})
	return err
}

// DropIndex removes the index at path, if any.
func (c *Collection) DropIndex(path string) error {
	c.mu.RLock()
	e, ok := c.indexes[path]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	return c.withWrite(func(tx storageTx) error {
		if err := tx.DeleteBucket(c.name, e.bucketSub); err != nil && err != ErrBucketNotFound {
			return newErr(IoFailure, "Collection.DropIndex", err, "delete index bucket")
		}
		if catalogBuck := tx.Bucket(catalogBucket, ""); catalogBuck != nil {
			def := IndexDef{Serial: e.serial, Collection: c.name, Path: path, Kind: e.idx.Kind, KeyType: e.idx.KeyType}
			if err := catalogBuck.Delete([]byte(formatIndexRecord(def))); err != nil {
				return newErr(IoFailure, "Collection.DropIndex", err, "delete catalog record")
			}
		}
		c.mu.Lock()
		delete(c.indexes, path)
		c.mu.Unlock()
		return nil
	})
}
