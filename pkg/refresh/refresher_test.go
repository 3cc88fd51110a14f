package refresh

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/ipfdb/pkg/config"
	"github.com/ssargent/ipfdb/pkg/ipf"
	"github.com/ssargent/ipfdb/pkg/store"
)

func openStore(t *testing.T) *store.CatalogStore {
	t.Helper()
	s, err := store.Open(store.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func stock(symbol string) *ipf.Profile {
	p := ipf.NewProfile()
	p.SetType(ipf.TypeStock)
	p.SetSymbol(symbol)
	return p
}

func writeCatalog(t *testing.T, path string, symbols ...string) {
	t.Helper()
	var profiles []*ipf.Profile
	for _, sym := range symbols {
		profiles = append(profiles, stock(sym))
	}
	require.NoError(t, ipf.WriteFile(path, profiles))
}

func TestNew_Validation(t *testing.T) {
	s := openStore(t)

	_, err := New(s, config.Source{})
	assert.ErrorIs(t, err, ErrNoSource)

	_, err = New(s, config.Source{URL: "x.ipf", Schedule: "sometimes"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")

	_, err = New(s, config.Source{URL: "x.ipf", Schedule: "@every 1m"})
	assert.NoError(t, err)
}

func TestRefreshNow_LocalFile(t *testing.T) {
	s := openStore(t)
	path := filepath.Join(t.TempDir(), "catalog.ipf.gz")
	writeCatalog(t, path, "IBM", "AAPL")

	var handled int
	r, err := New(s, config.Source{URL: path, Timeout: time.Minute},
		WithResultHandler(func(*store.ImportResult, error) { handled++ }))
	require.NoError(t, err)
	assert.Nil(t, r.Last())

	res, err := r.RefreshNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Upserted)
	assert.Equal(t, path, res.Source)
	assert.Equal(t, res, r.Last())
	assert.Equal(t, 1, handled)

	_, err = s.Get("AAPL")
	assert.NoError(t, err)
}

func TestRefreshNow_HTTP(t *testing.T) {
	s := openStore(t)
	dir := t.TempDir()
	writeCatalog(t, filepath.Join(dir, "catalog.ipf.zip"), "MSFT")

	srv := httptest.NewServer(http.FileServer(http.Dir(dir)))
	defer srv.Close()

	r, err := New(s, config.Source{URL: srv.URL + "/catalog.ipf.zip"})
	require.NoError(t, err)

	res, err := r.RefreshNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Upserted)
	assert.Equal(t, "/catalog.ipf.zip", res.Source)
}

func TestRefreshNow_MissingSource(t *testing.T) {
	s := openStore(t)

	var gotErr error
	r, err := New(s, config.Source{URL: filepath.Join(t.TempDir(), "missing.ipf")},
		WithResultHandler(func(_ *store.ImportResult, err error) { gotErr = err }))
	require.NoError(t, err)

	_, err = r.RefreshNow(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorIs(t, gotErr, os.ErrNotExist)
	assert.Nil(t, r.Last())
}

type blockingImporter struct{}

func (blockingImporter) ImportStream(ctx context.Context, _ io.Reader, _ string) (*store.ImportResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRefreshNow_Timeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.ipf")
	writeCatalog(t, path, "IBM")

	r, err := New(blockingImporter{}, config.Source{URL: path, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = r.RefreshNow(context.Background())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestStart_WatchReimportsOnChange(t *testing.T) {
	s := openStore(t)
	path := filepath.Join(t.TempDir(), "catalog.ipf")
	writeCatalog(t, path, "IBM")

	results := make(chan *store.ImportResult, 16)
	r, err := New(s, config.Source{URL: path, Watch: true},
		WithDebounce(20*time.Millisecond),
		WithResultHandler(func(res *store.ImportResult, err error) {
			if err == nil {
				results <- res
			}
		}))
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	assert.Error(t, r.Start(context.Background()), "second start")

	writeCatalog(t, path, "IBM", "MSFT", "AAPL")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case res := <-results:
			if res.Upserted == 3 {
				_, err := s.Get("MSFT")
				assert.NoError(t, err)
				return
			}
		case <-deadline:
			t.Fatal("no refresh after source file changed")
		}
	}
}

// trackingImporter blocks until its context ends and counts imports
type trackingImporter struct {
	started  chan struct{}
	calls    atomic.Int32
	finished atomic.Int32
}

func (imp *trackingImporter) ImportStream(ctx context.Context, _ io.Reader, _ string) (*store.ImportResult, error) {
	imp.calls.Add(1)
	select {
	case imp.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	imp.finished.Add(1)
	return nil, ctx.Err()
}

func TestStop_WaitsForDebouncedRefresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.ipf")
	writeCatalog(t, path, "IBM")

	imp := &trackingImporter{started: make(chan struct{}, 1)}
	r, err := New(imp, config.Source{URL: path, Watch: true}, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))

	writeCatalog(t, path, "IBM", "MSFT")
	select {
	case <-imp.started:
	case <-time.After(5 * time.Second):
		r.Stop()
		t.Fatal("no refresh after source file changed")
	}

	r.Stop()
	assert.Equal(t, imp.calls.Load(), imp.finished.Load(), "every import returned before Stop")
}

func TestStop_DropsPendingDebouncedRefresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.ipf")
	writeCatalog(t, path, "IBM")

	imp := &trackingImporter{started: make(chan struct{}, 1)}
	r, err := New(imp, config.Source{URL: path, Watch: true}, WithDebounce(200*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))

	writeCatalog(t, path, "IBM", "MSFT")
	time.Sleep(50 * time.Millisecond)
	r.Stop()

	time.Sleep(400 * time.Millisecond)
	assert.Zero(t, imp.calls.Load())
}

func TestStart_Schedule(t *testing.T) {
	s := openStore(t)
	path := filepath.Join(t.TempDir(), "catalog.ipf")
	writeCatalog(t, path, "IBM")

	results := make(chan *store.ImportResult, 16)
	r, err := New(s, config.Source{URL: path, Schedule: "@every 1s"},
		WithResultHandler(func(res *store.ImportResult, err error) {
			if err == nil {
				results <- res
			}
		}))
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))

	select {
	case res := <-results:
		assert.Equal(t, 1, res.Upserted)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled refresh did not run")
	}

	r.Stop()
	r.Stop()
}

func TestStart_WatchRemoteIgnored(t *testing.T) {
	r, err := New(openStore(t), config.Source{URL: "https://example.com/catalog.ipf", Watch: true})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	r.Stop()
}

func TestLocalPath(t *testing.T) {
	abs, err := filepath.Abs("catalog.ipf")
	require.NoError(t, err)

	path, ok := localPath("catalog.ipf")
	assert.True(t, ok)
	assert.Equal(t, abs, path)

	path, ok = localPath("file:///srv/catalog.ipf")
	assert.True(t, ok)
	assert.Equal(t, "/srv/catalog.ipf", path)

	_, ok = localPath("https://example.com/catalog.ipf")
	assert.False(t, ok)
}
