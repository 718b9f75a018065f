package ledb

import (
	"log/slog"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

// Options configures Open, following the teacher's db.go Options shape:
// a handful of knobs over bbolt's own options plus LEDB-specific ones.
type Options struct {
	// Logf receives low-level verbose traces (bbolt open timing, when the
	// open takes 5 ms or more). Nil disables them.
	Logf func(format string, args ...any)
	// Logger receives structured, leveled events (open, close, collection
	// create and drop, catalog records that fail to parse). Index backfill
	// and constraint conflicts are not logged. Defaults to slog.Default().
	Logger *slog.Logger

	Verbose   bool
	IsTesting bool

	// MmapSize overrides bbolt's InitialMmapSize when non-zero.
	MmapSize int
	// NoSync disables bbolt's fsync-on-commit, trading durability for speed.
	NoSync bool
	// NoFreelistSync skips persisting bbolt's freelist, trading slower
	// startup for faster writes; mirrors db.go's NoPersistentFreeList.
	NoFreelistSync bool

	// PrimaryField names the document field holding the primary key,
	// default "id" (spec §3).
	PrimaryField string
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) primaryField() string {
	if o.PrimaryField == "" {
		return "id"
	}
	return o.PrimaryField
}

// Storage is an open LEDB database: a catalog of named Collections sharing
// one underlying ordered key/value engine (spec §4.9).
type Storage struct {
	st   storage
	path string
	opt  Options
	log  *slog.Logger

	serialGen SerialGenerator

	mu          sync.RWMutex
	collections map[string]*Collection
	collSerial  map[string]Serial

	closeOnce sync.Once
	onClose   func()
}

// Open opens (creating if necessary) a bbolt-backed database at path and
// loads its catalog, following db.go::Open's bbolt-options-by-testing-vs-
// production shape.
func Open(path string, opt Options) (*Storage, error) {
	const op = "Open"
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}
	if opt.NoSync {
		bopt.NoSync = true
	}
	if opt.NoFreelistSync {
		bopt.NoFreelistSync = true
	}

	start := time.Now()
	bdb, err := bbolt.Open(path, 0666, &bopt)
	if err != nil {
		return nil, newErr(IoFailure, op, err, "opening %q", path)
	}
	if elapsed := time.Since(start); opt.Logf != nil && elapsed >= 5*time.Millisecond {
		opt.Logf("ledb: bbolt open of %q took %d ms", path, elapsed.Milliseconds())
	}

	st, err := newStorageFromBolt(bdb, path, opt)
	if err != nil {
		bdb.Close()
		return nil, err
	}
	st.onClose = func() { bdb.Close() }
	return st, nil
}

// OpenMem opens an in-memory Storage, for tests that want the real catalog
// and Collection machinery without touching the filesystem.
func OpenMem(opt Options) (*Storage, error) {
	return newStorageFromBolt(nil, ":memory:", opt)
}

func newStorageFromBolt(bdb *bbolt.DB, path string, opt Options) (*Storage, error) {
	var backend storage
	if bdb != nil {
		backend = newBoltStorage(bdb)
	} else {
		backend = newMemStorage()
	}
	s := &Storage{
		st:          backend,
		path:        path,
		opt:         opt,
		log:         opt.logger(),
		collections: map[string]*Collection{},
		collSerial:  map[string]Serial{},
	}
	if err := s.bootstrap(); err != nil {
		return nil, err
	}
	s.log.Info("ledb: opened", "path", path, "collections", len(s.collections))
	return s, nil
}

// bootstrap reads every catalog record and reconstructs the in-memory
// Collection roster, following original_source/ledb/src/storage.rs's
// load-catalog-then-build-collections Open sequence.
func (s *Storage) bootstrap() error {
	const op = "Storage.bootstrap"
	tx, err := s.st.BeginTx(true)
	if err != nil {
		return newErr(IoFailure, op, err, "begin bootstrap transaction")
	}
	defer tx.Rollback()

	catalogBuck, err := tx.CreateBucket(catalogBucket, "")
	if err != nil {
		return newErr(IoFailure, op, err, "create catalog bucket")
	}

	var collDefs []*CollectionDef
	var indexDefs []*IndexDef
	cur := catalogBuck.Cursor()
	for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
		rec, err := parseCatalogRecord(string(k))
		if err != nil {
			s.log.Debug("ledb: catalog record failed to parse", hexAttr("key", k))
			return err
		}
		switch r := rec.(type) {
		case *CollectionDef:
			collDefs = append(collDefs, r)
		case *IndexDef:
			indexDefs = append(indexDefs, r)
		}
	}

	for _, d := range collDefs {
		s.serialGen.Set(d.Serial)
		c := NewCollection(s.st, d.Name, d.Serial, &s.serialGen, s.opt.primaryField())
		s.collections[d.Name] = c
		s.collSerial[d.Name] = d.Serial
	}
	for _, d := range indexDefs {
		s.serialGen.Set(d.Serial)
		c, ok := s.collections[d.Collection]
		if !ok {
			return newErr(CatalogCorrupt, op, nil, "index record %q.%q references unknown collection", d.Collection, d.Path)
		}
		c.RegisterIndex(*d)
	}

	return tx.Commit()
}

// Collection returns the named collection and whether it exists.
func (s *Storage) Collection(name string) (*Collection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	return c, ok
}

// Collections lists every collection name, in no particular order
// (original_source/ledb/src/storage.rs::get_collections).
func (s *Storage) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.collections))
	for name := range s.collections {
		out = append(out, name)
	}
	return out
}

// CreateCollection returns the named collection, creating and cataloging it
// if it doesn't already exist.
func (s *Storage) CreateCollection(name string) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}

	const op = "Storage.CreateCollection"
	serial := s.serialGen.Gen()
	err := s.withWrite(func(tx storageTx) error {
		catalogBuck, err := tx.CreateBucket(catalogBucket, "")
		if err != nil {
			return newErr(IoFailure, op, err, "create catalog bucket")
		}
		def := CollectionDef{Serial: serial, Name: name}
		if err := catalogBuck.Put([]byte(formatCollectionRecord(def)), []byte{}); err != nil {
			return newErr(IoFailure, op, err, "write catalog record")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c := NewCollection(s.st, name, serial, &s.serialGen, s.opt.primaryField())
	s.collections[name] = c
	s.collSerial[name] = serial
	s.log.Info("ledb: collection created", "name", name)
	return c, nil
}

// DropCollection removes a collection and every document and index it
// holds, if it exists.
func (s *Storage) DropCollection(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return nil
	}

	const op = "Storage.DropCollection"
	for _, def := range c.Indexes() {
		if err := c.DropIndex(def.Path); err != nil {
			return err
		}
	}
	serial := s.collSerial[name]
	err := s.withWrite(func(tx storageTx) error {
		if err := tx.DeleteBucket(name, dataBucketSub); err != nil && err != ErrBucketNotFound {
			return newErr(IoFailure, op, err, "delete data bucket")
		}
		if catalogBuck := tx.Bucket(catalogBucket, ""); catalogBuck != nil {
			def := CollectionDef{Serial: serial, Name: name}
			if err := catalogBuck.Delete([]byte(formatCollectionRecord(def))); err != nil {
				return newErr(IoFailure, op, err, "delete catalog record")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	delete(s.collections, name)
	delete(s.collSerial, name)
	s.log.Info("ledb: collection dropped", "name", name)
	return nil
}

func (s *Storage) withRead(fn func(tx storageTx) error) error {
	tx, err := s.st.BeginTx(false)
	if err != nil {
		return newErr(IoFailure, "Storage", err, "begin read transaction")
	}
	defer tx.Rollback()
	return fn(tx)
}

func (s *Storage) withWrite(fn func(tx storageTx) error) error {
	tx, err := s.st.BeginTx(true)
	if err != nil {
		return newErr(IoFailure, "Storage", err, "begin write transaction")
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return newErr(IoFailure, "Storage", err, "commit transaction")
	}
	return nil
}

// Info summarizes a Storage for diagnostics (original_source/ledb/src/storage.rs::Info).
type Info struct {
	Path        string
	Collections int
	SizeBytes   int64
}

// Info reports high-level facts about the open database.
func (s *Storage) Info() Info {
	s.mu.RLock()
	n := len(s.collections)
	s.mu.RUnlock()
	return Info{Path: s.path, Collections: n, SizeBytes: s.Size()}
}

// Size returns the database's on-disk size in bytes (0 for the in-memory
// backend, which tracks no such thing).
func (s *Storage) Size() int64 {
	tx, err := s.st.BeginTx(false)
	if err != nil {
		return 0
	}
	defer tx.Rollback()
	return tx.Size()
}

// CollectionStats summarizes one collection's buckets
// (original_source/ledb/src/storage.rs::Stats, mirrored from the teacher's
// own bucketStats plumbing).
type CollectionStats struct {
	Name       string
	Documents  int
	Indexes    map[string]int
	TotalAlloc int64
}

// Stats reports per-bucket counts and allocation sizes for name.
func (s *Storage) Stats(name string) (CollectionStats, error) {
	c, ok := s.Collection(name)
	if !ok {
		return CollectionStats{}, newErr(MissingDocument, "Storage.Stats", nil, "no such collection %q", name)
	}
	out := CollectionStats{Name: name, Indexes: map[string]int{}}
	err := s.withRead(func(tx storageTx) error {
		if dataBucket := tx.Bucket(name, dataBucketSub); dataBucket != nil {
			st := dataBucket.Stats()
			out.Documents = st.KeyN
			out.TotalAlloc += st.TotalAlloc()
		}
		for _, def := range c.Indexes() {
			if bucket := tx.Bucket(name, indexBucketSub(def.Path)); bucket != nil {
				st := bucket.Stats()
				out.Indexes[def.Path] = st.KeyN
				out.TotalAlloc += st.TotalAlloc()
			}
		}
		return nil
	})
	return out, err
}

// Close releases the underlying storage engine. Safe to call once; a
// second call is a no-op.
func (s *Storage) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.st.Close()
		if s.onClose != nil {
			s.onClose()
		}
		s.log.Info("ledb: closed", "path", s.path)
	})
	return err
}
