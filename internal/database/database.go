// Package database stores completed runs. Each run gets its own directory
// under the database root holding the serialized record, a manifest of file
// hashes and, under files/, copies of its inputs and outputs. A bbolt index next to
// the run directories records the order in which runs were appended.
package database

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/felixgeelhaar/watts/internal/errors"
	"github.com/felixgeelhaar/watts/internal/exec"
	"github.com/felixgeelhaar/watts/internal/log"
	"github.com/felixgeelhaar/watts/internal/results"
)

const (
	// DefaultPath is the database root used when none is configured
	DefaultPath = "results"

	// FilesDir holds the inputs and outputs inside a run directory, apart
	// from the record and manifest.
	FilesDir = "files"

	indexFile  = "index.db"
	bucketRuns = "runs"
	bucketIDs  = "ids"
)

// Config selects where a Database lives.
type Config struct {
	Path string

	// LockTimeout bounds how long Open waits for another process holding
	// the index. Zero means one second.
	LockTimeout time.Duration

	Logger *log.Logger
}

// DefaultConfig stores runs under ./results.
func DefaultConfig() Config {
	return Config{Path: DefaultPath}
}

// Entry is the index record of one stored run.
type Entry struct {
	Seq    uint64    `json:"-"`
	ID     string    `json:"id"`
	Dir    string    `json:"dir"`
	Plugin string    `json:"plugin"`
	Name   string    `json:"name,omitempty"`
	Time   time.Time `json:"time"`
}

// Database is an append-only collection of Results.
type Database struct {
	root   string
	index  *bolt.DB
	logger *log.Logger
}

// Open creates the database root if needed and opens its index.
func Open(cfg Config) (*Database, error) {
	root := cfg.Path
	if root == "" {
		root = DefaultPath
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.NewStorageError("open", err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.NewStorageError("open", err)
	}

	timeout := cfg.LockTimeout
	if timeout == 0 {
		timeout = time.Second
	}
	index, err := bolt.Open(filepath.Join(root, indexFile), 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, errors.NewStorageError("open index", err)
	}
	err = index.Update(func(tx *bolt.Tx) error {
		for _, b := range []string{bucketRuns, bucketIDs} {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		index.Close()
		return nil, errors.NewStorageError("initialize index", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Database{root: root, index: index, logger: logger.With("database", root)}, nil
}

// Path returns the absolute database root.
func (db *Database) Path() string {
	return db.root
}

// Close releases the index.
func (db *Database) Close() error {
	return db.index.Close()
}

// Add stores r under a new run directory and returns the stored copy, whose
// inputs and outputs resolve inside the database. Nothing is indexed if any
// step fails, and the partially written directory is removed.
func (db *Database) Add(r *results.Results) (*results.Results, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.NewStorageError("allocate run id", err)
	}
	entry := Entry{
		ID:     id.String(),
		Dir:    fmt.Sprintf("%s_%s", r.Plugin(), id.String()),
		Plugin: r.Plugin(),
		Name:   r.Name(),
		Time:   r.Time(),
	}
	runDir := filepath.Join(db.root, entry.Dir)

	stored, err := db.writeRun(r, entry.ID, runDir)
	if err != nil {
		os.RemoveAll(runDir)
		return nil, errors.NewStorageError("append", err)
	}

	if err := db.appendIndex(entry); err != nil {
		os.RemoveAll(runDir)
		return nil, errors.NewStorageError("append index", err)
	}

	db.logger.Info("stored run", "id", entry.ID, "plugin", entry.Plugin, "dir", entry.Dir)
	return stored, nil
}

func (db *Database) writeRun(r *results.Results, id, runDir string) (*results.Results, error) {
	if err := os.Mkdir(runDir, 0755); err != nil {
		return nil, err
	}
	filesDir := filepath.Join(runDir, FilesDir)
	if err := os.Mkdir(filesDir, 0755); err != nil {
		return nil, err
	}

	info := r.ExecInfo()
	manifest := exec.CreateManifest(id, r.Plugin(), info.Command, info.ExitCode, info.Duration)

	copyAll := func(names []string, hash func(name, path string) error) error {
		for _, name := range names {
			dst := filepath.Join(filesDir, name)
			if err := copyFile(filepath.Join(r.BasePath(), name), dst); err != nil {
				return err
			}
			if err := hash(name, dst); err != nil {
				return err
			}
		}
		return nil
	}
	if err := copyAll(r.Inputs(), manifest.AddInputHash); err != nil {
		return nil, fmt.Errorf("copy inputs: %w", err)
	}
	if err := copyAll(r.Outputs(), manifest.AddOutputHash); err != nil {
		return nil, fmt.Errorf("copy outputs: %w", err)
	}

	stored := r.Stored(id, filesDir)
	if err := stored.Save(runDir); err != nil {
		return nil, err
	}
	if err := exec.SaveManifest(manifest, runDir); err != nil {
		return nil, err
	}
	return stored, nil
}

func (db *Database) appendIndex(e Entry) error {
	return db.index.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket([]byte(bucketRuns))
		seq, err := runs.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := runs.Put(marshalSeq(seq), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketIDs)).Put([]byte(e.ID), marshalSeq(seq))
	})
}

// Entries lists the index in append order without loading the records.
func (db *Database) Entries() ([]Entry, error) {
	var entries []Entry
	err := db.index.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketRuns)).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("index entry %d: %w", unmarshalSeq(k), err)
			}
			e.Seq = unmarshalSeq(k)
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, errors.NewStorageError("read index", err)
	}
	return entries, nil
}

// Len returns the number of stored runs.
func (db *Database) Len() (int, error) {
	var n int
	err := db.index.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bucketRuns)).Stats().KeyN
		return nil
	})
	return n, err
}

// Results loads every stored run in append order.
func (db *Database) Results() ([]*results.Results, error) {
	entries, err := db.Entries()
	if err != nil {
		return nil, err
	}
	out := make([]*results.Results, 0, len(entries))
	for _, e := range entries {
		r, err := db.load(e)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Get loads the run with the given ID.
func (db *Database) Get(id string) (*results.Results, error) {
	var e Entry
	var found bool
	err := db.index.View(func(tx *bolt.Tx) error {
		seq := tx.Bucket([]byte(bucketIDs)).Get([]byte(id))
		if seq == nil {
			return nil
		}
		v := tx.Bucket([]byte(bucketRuns)).Get(seq)
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &e)
	})
	if err != nil {
		return nil, errors.NewStorageError("read index", err)
	}
	if !found {
		return nil, errors.NewRunNotFoundError(id)
	}
	return db.load(e)
}

// Last loads the most recently appended run.
func (db *Database) Last() (*results.Results, error) {
	var e Entry
	var found bool
	err := db.index.View(func(tx *bolt.Tx) error {
		k, v := tx.Bucket([]byte(bucketRuns)).Cursor().Last()
		if k == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &e)
	})
	if err != nil {
		return nil, errors.NewStorageError("read index", err)
	}
	if !found {
		return nil, errors.NewRunNotFoundError("(last)")
	}
	return db.load(e)
}

// Clear removes every stored run and resets the index.
func (db *Database) Clear() error {
	entries, err := db.Entries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(db.root, e.Dir)); err != nil {
			return errors.NewStorageError("clear", err)
		}
	}
	err = db.index.Update(func(tx *bolt.Tx) error {
		for _, b := range []string{bucketRuns, bucketIDs} {
			if err := tx.DeleteBucket([]byte(b)); err != nil {
				return err
			}
			if _, err := tx.CreateBucket([]byte(b)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.NewStorageError("clear index", err)
	}
	db.logger.Info("cleared database", "runs", len(entries))
	return nil
}

// RunDir returns the directory of a stored run.
func (db *Database) RunDir(e Entry) string {
	return filepath.Join(db.root, e.Dir)
}

func (db *Database) load(e Entry) (*results.Results, error) {
	dir := db.RunDir(e)
	r, err := results.Load(dir)
	if err != nil {
		return nil, errors.NewStorageError("load run "+e.ID, err)
	}
	return r.Stored(r.ID(), filepath.Join(dir, FilesDir)), nil
}

// RunDirOf returns the run directory of a stored r, the parent of its files.
func (db *Database) RunDirOf(r *results.Results) string {
	return filepath.Dir(r.BasePath())
}

// Verify rehashes the stored files of r and returns the manifest together
// with the names of files that are missing or differ from it.
func (db *Database) Verify(r *results.Results) (*exec.RunManifest, []string, error) {
	m, err := exec.LoadManifest(db.RunDirOf(r))
	if err != nil {
		return nil, nil, errors.NewStorageError("load manifest", err)
	}
	return m, m.Verify(r.BasePath()), nil
}

func copyFile(src, dst string) error {
	if src == dst {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func marshalSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func unmarshalSeq(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}
