package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/kevinaaaquil/grimoire/metrics"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errTranscode = errors.New("not an image")

// fakeEncoder prefixes the input so stored blobs are recognisable; input "bad" fails.
var fakeEncoder = EncoderFunc(func(raw []byte) ([]byte, error) {
	if string(raw) == "bad" {
		return nil, errTranscode
	}
	return append([]byte("webp:"), raw...), nil
})

// flakyBlobs wraps a BlobStore and can be told to fail writes or deletes.
type flakyBlobs struct {
	BlobStore
	mu         sync.Mutex
	failPut    bool
	failDelete bool
	deleted    []string
}

func (f *flakyBlobs) Put(ctx context.Context, name string, data []byte, ct string) error {
	f.mu.Lock()
	fail := f.failPut
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.BlobStore.Put(ctx, name, data, ct)
}

func (f *flakyBlobs) Delete(ctx context.Context, name string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, name)
	fail := f.failDelete
	f.mu.Unlock()
	if fail {
		return errors.New("blob store unavailable")
	}
	return f.BlobStore.Delete(ctx, name)
}

func newTestAssets(t *testing.T) (*AssetManager, *flakyBlobs, string) {
	t.Helper()
	dir := t.TempDir()
	local, err := NewLocalStore(dir)
	require.NoError(t, err)
	blobs := &flakyBlobs{BlobStore: local}
	return NewAssetManager(blobs, fakeEncoder, "http://test.local/", zaptest.NewLogger(t), metrics.New()), blobs, dir
}

func readBlob(t *testing.T, m *AssetManager, key string) ([]byte, error) {
	t.Helper()
	body, _, err := m.Open(context.Background(), key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	var buf bytes.Buffer
	_, err = io.Copy(&buf, body)
	return buf.Bytes(), err
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// counterValue reads a counter from the registry; result selects the "result" label when non-empty.
func counterValue(t *testing.T, m *metrics.Metrics, name, result string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if result == "" {
				return metric.GetCounter().GetValue()
			}
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "result" && lp.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
