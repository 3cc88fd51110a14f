package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"go.uber.org/zap"

	"github.com/ssargent/ipfdb/pkg/ipf"
)

// Key layout:
//
//	profile/<symbol>        -> envelope around a one-profile document
//	type/<type>\x00<symbol> -> empty, secondary index by TYPE
//	import/<nanos>/<ksuid>  -> JSON ImportResult
const (
	profilePrefix = "profile/"
	typePrefix    = "type/"
	importPrefix  = "import/"
	typeSeparator = "\x00"
)

// Store defines the catalog operations used by the API and the CLI
type Store interface {
	Get(symbol string) (*ipf.Profile, error)
	Put(p *ipf.Profile) error
	Delete(symbol string) error
	Scan(ctx context.Context, fn func(*ipf.Profile) error) error
	ScanType(ctx context.Context, typ string, fn func(*ipf.Profile) error) error
	Count(ctx context.Context) (int, error)
	Import(ctx context.Context, src ProfileSource, source string) (*ImportResult, error)
	ImportStream(ctx context.Context, r io.Reader, name string) (*ImportResult, error)
	Imports(ctx context.Context, limit int) ([]*ImportResult, error)
	Export(ctx context.Context, c *ipf.Composer) (int, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// CatalogStore keeps the latest profile of every symbol in pebble
type CatalogStore struct {
	db        *pebble.DB
	config    Config
	logger    *zap.Logger
	writeOpts *pebble.WriteOptions
	startTime time.Time

	mu      sync.RWMutex // held for reading by every operation, for writing by Close
	writeMu sync.Mutex   // serializes index maintenance
	closed  bool
}

var _ Store = (*CatalogStore)(nil)

// Open opens or creates a catalog store
func Open(config Config) (*CatalogStore, error) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := &pebble.Options{
		Logger: logger.Named("pebble").Sugar(),
	}
	dir := config.DataDir
	if config.InMemory {
		opts.FS = vfs.NewMem()
		dir = "catalog"
	} else {
		if dir == "" {
			return nil, fmt.Errorf("data directory is required")
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog at %s: %w", dir, err)
	}

	writeOpts := pebble.NoSync
	if config.Sync {
		writeOpts = pebble.Sync
	}

	logger.Info("catalog store opened",
		zap.String("dir", dir),
		zap.Bool("in_memory", config.InMemory))

	return &CatalogStore{
		db:        db,
		config:    config,
		logger:    logger,
		writeOpts: writeOpts,
		startTime: time.Now(),
	}, nil
}

// Close flushes and closes the store
func (s *CatalogStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *CatalogStore) acquire() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	return nil
}

func (s *CatalogStore) release() {
	s.mu.RUnlock()
}

// Get returns the stored profile of a symbol
func (s *CatalogStore) Get(symbol string) (*ipf.Profile, error) {
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	return s.get(symbol)
}

func (s *CatalogStore) get(symbol string) (*ipf.Profile, error) {
	data, closer, err := s.db.Get(profileKey(symbol))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	p, _, err := decodeProfile(data)
	if err != nil {
		return nil, fmt.Errorf("symbol %s: %w", symbol, err)
	}
	return p, nil
}

// Put stores p under its symbol, replacing what was there. A profile of
// type REMOVED deletes the symbol instead. Types that cannot be written
// back out (see ipf.ValidateType) return ErrInvalidType.
func (s *CatalogStore) Put(p *ipf.Profile) error {
	if p.Symbol() == "" {
		return ErrInvalidSymbol
	}
	if ipf.ValidateType(p.Type()) != nil {
		return ErrInvalidType
	}
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	b := s.db.NewIndexedBatch()
	defer b.Close()
	if _, err := s.apply(b, p); err != nil {
		return err
	}
	return b.Commit(s.writeOpts)
}

// Delete removes a symbol. Deleting a missing symbol returns
// ErrProfileNotFound.
func (s *CatalogStore) Delete(symbol string) error {
	if symbol == "" {
		return ErrInvalidSymbol
	}
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	b := s.db.NewIndexedBatch()
	defer b.Close()
	existed, err := s.remove(b, symbol)
	if err != nil {
		return err
	}
	if !existed {
		return ErrProfileNotFound
	}
	return b.Commit(s.writeOpts)
}

// apply writes p into b and reports whether it was a removal
func (s *CatalogStore) apply(b *pebble.Batch, p *ipf.Profile) (bool, error) {
	symbol := p.Symbol()
	if ipf.ValidateType(p.Type()) != nil {
		return false, ErrInvalidType
	}
	if p.IsRemoved() {
		_, err := s.remove(b, symbol)
		return true, err
	}

	oldType, _, err := s.storedType(b, symbol)
	if err != nil {
		return false, err
	}

	value, err := encodeProfile(p)
	if err != nil {
		return false, err
	}
	if err := b.Set(profileKey(symbol), value, nil); err != nil {
		return false, err
	}
	if oldType != p.Type() {
		if oldType != "" {
			if err := b.Delete(typeKey(oldType, symbol), nil); err != nil {
				return false, err
			}
		}
		if err := b.Set(typeKey(p.Type(), symbol), nil, nil); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (s *CatalogStore) remove(b *pebble.Batch, symbol string) (bool, error) {
	oldType, existed, err := s.storedType(b, symbol)
	if err != nil || !existed {
		return false, err
	}
	if err := b.Delete(profileKey(symbol), nil); err != nil {
		return false, err
	}
	if oldType != "" {
		if err := b.Delete(typeKey(oldType, symbol), nil); err != nil {
			return false, err
		}
	}
	return true, nil
}

// storedType reads the current type of symbol through b, so earlier writes
// in the same batch are visible. A corrupt value is treated as untyped.
func (s *CatalogStore) storedType(b *pebble.Batch, symbol string) (string, bool, error) {
	data, closer, err := b.Get(profileKey(symbol))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer closer.Close()

	p, _, err := decodeProfile(data)
	if err != nil {
		s.logger.Warn("replacing corrupt profile",
			zap.String("symbol", symbol),
			zap.Error(err))
		return "", true, nil
	}
	return p.Type(), true, nil
}

// Scan calls fn for every stored profile in symbol order
func (s *CatalogStore) Scan(ctx context.Context, fn func(*ipf.Profile) error) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	return s.scanPrefix(ctx, []byte(profilePrefix), func(key, value []byte) error {
		p, _, err := decodeProfile(value)
		if err != nil {
			return fmt.Errorf("symbol %s: %w", key[len(profilePrefix):], err)
		}
		return fn(p)
	})
}

// ScanType calls fn for every stored profile of the given type in symbol
// order
func (s *CatalogStore) ScanType(ctx context.Context, typ string, fn func(*ipf.Profile) error) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	prefix := []byte(typePrefix + typ + typeSeparator)
	return s.scanPrefix(ctx, prefix, func(key, _ []byte) error {
		p, err := s.get(string(key[len(prefix):]))
		if err != nil {
			return err
		}
		return fn(p)
	})
}

// Count returns the number of stored profiles
func (s *CatalogStore) Count(ctx context.Context) (int, error) {
	if err := s.acquire(); err != nil {
		return 0, err
	}
	defer s.release()

	n := 0
	err := s.scanPrefix(ctx, []byte(profilePrefix), func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

// Export composes every stored profile in symbol order and flushes c
func (s *CatalogStore) Export(ctx context.Context, c *ipf.Composer) (int, error) {
	n := 0
	err := s.Scan(ctx, func(p *ipf.Profile) error {
		if err := c.Compose(p); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	return n, c.Flush()
}

// Stats walks the catalog and reports its shape
func (s *CatalogStore) Stats(ctx context.Context) (*Stats, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	st := &Stats{
		ByType: make(map[string]int),
		Uptime: time.Since(s.startTime),
	}

	err := s.scanPrefix(ctx, []byte(profilePrefix), func(key, value []byte) error {
		st.Profiles++
		e, err := DecodeEnvelope(value)
		if err == nil {
			err = e.Validate()
		}
		if err != nil {
			st.CRCErrors++
			st.Warnings = append(st.Warnings, fmt.Sprintf("corrupt profile %s: %v", key[len(profilePrefix):], err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.scanPrefix(ctx, []byte(typePrefix), func(key, _ []byte) error {
		rest := key[len(typePrefix):]
		if i := bytes.Index(rest, []byte(typeSeparator)); i >= 0 {
			st.ByType[string(rest[:i])]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	imports, err := s.imports(ctx, 0)
	if err != nil {
		return nil, err
	}
	st.Imports = len(imports)
	if len(imports) > 0 {
		st.LastImport = imports[0]
	}

	st.DiskSizeMB = float64(s.db.Metrics().DiskSpaceUsage()) / (1024 * 1024)
	return st, nil
}

// scanPrefix iterates every key with the given prefix in order. The slices
// passed to fn are only valid for the duration of the call.
func (s *CatalogStore) scanPrefix(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}

	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			iter.Close()
			return err
		}
		if err := fn(iter.Key(), iter.Value()); err != nil {
			iter.Close()
			return err
		}
	}
	return iter.Close()
}

func profileKey(symbol string) []byte {
	return []byte(profilePrefix + symbol)
}

func typeKey(typ, symbol string) []byte {
	return []byte(typePrefix + typ + typeSeparator + symbol)
}

func prefixUpperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// encodeProfile stores a profile as a self-contained document: its format
// declaration followed by its row.
func encodeProfile(p *ipf.Profile) ([]byte, error) {
	var buf bytes.Buffer
	c := ipf.NewComposer(ipf.NewCSVWriter(&buf))
	if err := c.Compose(p); err != nil {
		return nil, err
	}
	if err := c.Flush(); err != nil {
		return nil, err
	}
	return NewEnvelope(buf.Bytes()).Encode(), nil
}

func decodeProfile(data []byte) (*ipf.Profile, time.Time, error) {
	e, err := DecodeEnvelope(data)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	if err := e.Validate(); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrCorruption, err)
	}

	p, err := ipf.NewParser(ipf.NewCSVReader(bytes.NewReader(e.Payload))).Next()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	return p, e.Time(), nil
}
