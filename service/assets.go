package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kevinaaaquil/grimoire/metrics"
	"go.uber.org/zap"
)

const (
	assetExt         = ".webp"
	assetContentType = "image/webp"
	// ImagesPath is where stored assets are served from, outside the API prefix.
	ImagesPath = "/images/"
)

// Asset is an image blob bound to a book: Key names the blob, URL is what clients fetch.
type Asset struct {
	Key string
	URL string
}

// AssetManager keeps exactly one live image blob per book across create, replace and delete.
type AssetManager struct {
	blobs   BlobStore
	encoder Encoder
	baseURL string
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewAssetManager(blobs BlobStore, encoder Encoder, publicBaseURL string, logger *zap.Logger, m *metrics.Metrics) *AssetManager {
	return &AssetManager{
		blobs:   blobs,
		encoder: encoder,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// URL returns the public URL for a stored blob name.
func (m *AssetManager) URL(key string) string {
	return m.baseURL + ImagesPath + url.PathEscape(key)
}

// assetName builds "<original base>_<unix nanos>.webp", with spaces replaced by underscores.
func assetName(original string, at time.Time) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	base = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r == '/' || r == '\\' || r < 0x20:
			return -1
		}
		return r
	}, base)
	if base == "" || base == "." || base == ".." {
		base = uuid.NewString()
	}
	return base + "_" + strconv.FormatInt(at.UnixNano(), 10) + assetExt
}

// Store transcodes raw and writes the result under a fresh name. Transcoding happens before anything is
// written, so a bad image never leaves a blob behind.
func (m *AssetManager) Store(ctx context.Context, originalName string, raw []byte) (Asset, error) {
	encoded, err := m.encoder.Encode(raw)
	if err != nil {
		m.metrics.ObserveAsset("store", err)
		return Asset{}, fmt.Errorf("%w: transcode %q: %w", ErrAssetWrite, originalName, err)
	}
	name := assetName(originalName, m.now())
	if err := m.blobs.Put(ctx, name, encoded, assetContentType); err != nil {
		m.metrics.ObserveAsset("store", err)
		return Asset{}, fmt.Errorf("%w: write %s: %w", ErrAssetWrite, name, err)
	}
	m.metrics.ObserveAsset("store", nil)
	return Asset{Key: name, URL: m.URL(name)}, nil
}

// Replace stores raw as a new asset, hands it to commit, and releases old only once both succeeded.
// If commit fails the new blob is released instead and old stays bound.
func (m *AssetManager) Replace(ctx context.Context, old Asset, originalName string, raw []byte, commit func(Asset) error) (Asset, error) {
	next, err := m.Store(ctx, originalName, raw)
	if err != nil {
		return Asset{}, err
	}
	if err := commit(next); err != nil {
		m.Release(ctx, next)
		return Asset{}, err
	}
	m.Release(ctx, old)
	return next, nil
}

// Release deletes the blob on a best-effort basis. Failures are logged and counted, never returned.
func (m *AssetManager) Release(ctx context.Context, a Asset) {
	if a.Key == "" {
		return
	}
	err := m.blobs.Delete(ctx, a.Key)
	switch {
	case err == nil:
		m.metrics.ObserveAsset("release", nil)
	case errors.Is(err, ErrBlobNotFound):
		m.metrics.ObserveAsset("release", nil)
		m.logger.Debug("asset already gone", zap.String("key", a.Key))
	default:
		m.metrics.ObserveAsset("release", err)
		m.logger.Warn("asset release failed", zap.String("key", a.Key), zap.Error(err))
	}
}

// Open streams a stored blob by name. Unknown names yield ErrBlobNotFound.
func (m *AssetManager) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return m.blobs.Open(ctx, key)
}
