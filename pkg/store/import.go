package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/ssargent/ipfdb/pkg/ipf"
)

// importBatchSize caps the number of profiles per pebble batch
const importBatchSize = 1000

// ProfileSource yields profiles until io.EOF. *ipf.Parser and
// *ipf.StreamReader satisfy it.
type ProfileSource interface {
	Next() (*ipf.Profile, error)
}

// importer applies one stream of profiles to the store. A flush marker in
// the stream commits the pending batch.
type importer struct {
	store   *CatalogStore
	result  *ImportResult
	batch   *pebble.Batch
	pending int
	flush   bool
}

func (s *CatalogStore) newImport(source string) *importer {
	return &importer{
		store: s,
		result: &ImportResult{
			ID:        ksuid.New().String(),
			Source:    source,
			StartedAt: time.Now().UTC(),
			ByType:    make(map[string]int),
		},
	}
}

func (imp *importer) onFlush() {
	imp.result.Flushes++
	imp.flush = true
}

func (imp *importer) onComplete() {
	imp.result.Complete = true
}

func (imp *importer) onFormat(string, []string) {
	imp.result.Formats++
}

// Import applies every profile of src. Profiles of type REMOVED delete their
// symbol, profiles without a symbol are skipped. Profiles applied before a
// failure stay committed; the returned result describes what was applied
// and is recorded in the import history either way.
func (s *CatalogStore) Import(ctx context.Context, src ProfileSource, source string) (*ImportResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	return s.newImport(source).run(ctx, src)
}

// ImportStream reads a profile document from r, unwrapping the container
// selected by name, and imports it. Flush markers commit the pending batch.
func (s *CatalogStore) ImportStream(ctx context.Context, r io.Reader, name string) (*ImportResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	imp := s.newImport(name)
	sr, err := ipf.NewStreamReader(r, name,
		ipf.WithFlushHandler(imp.onFlush),
		ipf.WithCompleteHandler(imp.onComplete),
		ipf.WithFormatHandler(imp.onFormat),
		ipf.WithParserLogger(s.logger))
	if err != nil {
		return nil, err
	}
	defer sr.Close()

	return imp.run(ctx, sr)
}

func (imp *importer) run(ctx context.Context, src ProfileSource) (*ImportResult, error) {
	s := imp.store
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	logger := s.logger.With(
		zap.String("import_id", imp.result.ID),
		zap.String("source", imp.result.Source))
	logger.Info("import started")

	imp.batch = s.db.NewIndexedBatch()
	err := imp.apply(ctx, src, logger)
	if cerr := imp.commit(); err == nil {
		err = cerr
	}
	imp.batch.Close()

	imp.result.Duration = time.Since(imp.result.StartedAt)
	if err != nil {
		imp.result.Error = err.Error()
	}
	if serr := imp.save(); serr != nil {
		logger.Error("failed to record import", zap.Error(serr))
		if err == nil {
			err = serr
		}
	}

	if err != nil {
		logger.Error("import failed",
			zap.Int("profiles", imp.result.Profiles),
			zap.Error(err))
		return imp.result, err
	}
	logger.Info("import finished",
		zap.Int("profiles", imp.result.Profiles),
		zap.Int("upserted", imp.result.Upserted),
		zap.Int("removed", imp.result.Removed),
		zap.Int("skipped", imp.result.Skipped),
		zap.Duration("duration", imp.result.Duration))
	return imp.result, nil
}

func (imp *importer) apply(ctx context.Context, src ProfileSource, logger *zap.Logger) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		p, err := src.Next()
		if imp.flush {
			imp.flush = false
			if cerr := imp.commit(); cerr != nil {
				return cerr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		imp.result.Profiles++
		imp.result.ByType[p.Type()]++
		if p.Symbol() == "" {
			imp.result.Skipped++
			logger.Warn("skipping profile without symbol", zap.String("type", p.Type()))
			continue
		}

		removed, err := imp.store.apply(imp.batch, p)
		if err != nil {
			return fmt.Errorf("applying %s: %w", p, err)
		}
		if removed {
			imp.result.Removed++
		} else {
			imp.result.Upserted++
		}

		imp.pending++
		if imp.pending >= importBatchSize {
			if err := imp.commit(); err != nil {
				return err
			}
		}
	}
}

// commit writes the pending batch and starts a new one
func (imp *importer) commit() error {
	if imp.pending == 0 {
		return nil
	}
	if err := imp.batch.Commit(imp.store.writeOpts); err != nil {
		return err
	}
	imp.batch.Close()
	imp.batch = imp.store.db.NewIndexedBatch()
	imp.pending = 0
	return nil
}

func (imp *importer) save() error {
	data, err := json.Marshal(imp.result)
	if err != nil {
		return err
	}
	return imp.store.db.Set(importKey(imp.result), data, imp.store.writeOpts)
}

// importKey orders results by start time; ksuids alone only order by second
func importKey(r *ImportResult) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", importPrefix, r.StartedAt.UnixNano(), r.ID))
}

// Imports returns recorded import results, newest first. A limit of zero or
// less returns all of them.
func (s *CatalogStore) Imports(ctx context.Context, limit int) ([]*ImportResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	return s.imports(ctx, limit)
}

func (s *CatalogStore) imports(ctx context.Context, limit int) ([]*ImportResult, error) {
	prefix := []byte(importPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*ImportResult
	for iter.Last(); iter.Valid(); iter.Prev() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var r ImportResult
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, fmt.Errorf("%w: import %s: %v", ErrCorruption, iter.Key()[len(prefix):], err)
		}
		out = append(out, &r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
