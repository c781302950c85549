package cattools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore is a Store that keeps one JSON document per record and one YAML
// member list per collection:
//
//	<dir>/records/<key>.json
//	<dir>/collections/<name>.yaml
type FileStore struct {
	dataDir     string
	nextOrdinal int64
	mutex       sync.Mutex
}

// collectionDocument is the YAML form of a collection.
type collectionDocument struct {
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

// NewFileStore opens a file store rooted at dataDir, creating it if needed.
// An empty dataDir selects ~/.cattools/records.
func NewFileStore(dataDir string) (*FileStore, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".cattools", "records")
	}
	for _, dir := range []string{"records", "collections"} {
		if err := os.MkdirAll(filepath.Join(dataDir, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
		}
	}
	s := &FileStore{dataDir: dataDir}

	records, err := s.Query(context.Background(), Filter{})
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.Ordinal > s.nextOrdinal {
			s.nextOrdinal = record.Ordinal
		}
	}
	return s, nil
}

// Dir returns the root directory of the store.
func (s *FileStore) Dir() string {
	return s.dataDir
}

func (s *FileStore) recordPath(key string) string {
	return filepath.Join(s.dataDir, "records", key+".json")
}

func (s *FileStore) collectionPath(name string) string {
	return filepath.Join(s.dataDir, "collections", name+".yaml")
}

func validateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name required", kind)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid %s name %q", kind, name)
	}
	return nil
}

// Put writes a record. A missing key or ordinal is assigned in place on the
// given record.
func (s *FileStore) Put(ctx context.Context, record *ExecutionRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if record.Key == NoRecord {
		record.Key = NewRecordKey()
	}
	if err := validateName("record", record.Key); err != nil {
		return err
	}
	if record.Ordinal == 0 {
		s.nextOrdinal++
		record.Ordinal = s.nextOrdinal
	} else if record.Ordinal > s.nextOrdinal {
		s.nextOrdinal = record.Ordinal
	}
	record.AssignBlobKeys()
	data, err := EncodeRecord(record)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.recordPath(record.Key), data)
}

// PutCollection writes a collection with the given members, replacing any
// previous member list.
func (s *FileStore) PutCollection(ctx context.Context, name string, keys ...string) error {
	if err := validateName("collection", name); err != nil {
		return err
	}
	data, err := yaml.Marshal(collectionDocument{Name: name, Members: keys})
	if err != nil {
		return fmt.Errorf("failed to marshal collection: %w", err)
	}
	return writeFileAtomic(s.collectionPath(name), data)
}

// AddToCollection appends keys to a named collection, creating it if needed.
func (s *FileStore) AddToCollection(ctx context.Context, collection string, keys ...string) error {
	if err := validateName("collection", collection); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, key := range keys {
		if _, err := s.Load(ctx, key); err != nil {
			return err
		}
	}
	doc, err := s.readCollection(collection)
	if errors.Is(err, ErrNotFound) {
		doc = &collectionDocument{Name: collection}
	} else if err != nil {
		return err
	}
	return s.PutCollection(ctx, collection, append(doc.Members, keys...)...)
}

func (s *FileStore) readCollection(collection string) (*collectionDocument, error) {
	data, err := os.ReadFile(s.collectionPath(collection))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("collection %q: %w", collection, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read collection file: %w", err)
	}
	var doc collectionDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal collection %q: %w", collection, err)
	}
	return &doc, nil
}

func (s *FileStore) Load(ctx context.Context, key string) (*ExecutionRecord, error) {
	if err := validateName("record", key); err != nil {
		return nil, NotFoundError(key)
	}
	data, err := os.ReadFile(s.recordPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NotFoundError(key)
		}
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}
	record, err := DecodeRecord(data)
	if err != nil {
		return nil, err
	}
	record.Key = key
	record.AssignBlobKeys()
	return record, nil
}

func (s *FileStore) Query(ctx context.Context, filter Filter) ([]*ExecutionRecord, error) {
	entries, err := os.ReadDir(filepath.Join(s.dataDir, "records"))
	if err != nil {
		return nil, fmt.Errorf("failed to read records directory: %w", err)
	}
	var records []*ExecutionRecord
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := s.Load(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		if filter.Matches(record) {
			records = append(records, record)
		}
	}
	SortByOrdinal(records)
	return records, nil
}

func (s *FileStore) Members(ctx context.Context, collection string) ([]Member, error) {
	if err := validateName("collection", collection); err != nil {
		return nil, err
	}
	doc, err := s.readCollection(collection)
	if err != nil {
		return nil, err
	}
	members := make([]Member, len(doc.Members))
	for i, key := range doc.Members {
		record, err := s.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("collection %q: %w", collection, err)
		}
		members[i] = Member{Key: key, Ordinal: record.Ordinal}
	}
	return members, nil
}

// writeFileAtomic writes data to a temporary file and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", path, err)
	}
	return nil
}
