package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kevinaaaquil/grimoire/metrics"
	"github.com/kevinaaaquil/grimoire/middleware"
	"github.com/kevinaaaquil/grimoire/service"
	"github.com/kevinaaaquil/grimoire/store"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"
)

const testSecret = "test-secret"

type testApp struct {
	handler http.Handler
	mem     *store.Memory
}

// stubEncoder stands in for WebP so handler tests don't depend on cgo.
var stubEncoder = service.EncoderFunc(func(raw []byte) ([]byte, error) {
	return append([]byte("RIFF"), raw...), nil
})

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := zaptest.NewLogger(t)
	m := metrics.New()
	local, err := service.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	assets := service.NewAssetManager(local, stubEncoder, "http://test.local", logger, m)
	mem := store.NewMemory()
	books := service.NewBookService(mem, assets, logger, m, service.Options{
		BestRatingLimit: 3,
		MaxGrade:        5,
		Retry:           service.RetryPolicy{MaxAttempts: 10, BaseDelay: time.Millisecond},
	})
	h := NewRouter(RouterDeps{
		Books:       &BooksHandler{Books: books, Logger: logger, MaxBytes: 1 << 20},
		Auth:        &AuthHandler{Users: mem, JWTSecret: testSecret, TokenTTL: time.Hour, Logger: logger},
		Images:      &ImagesHandler{Assets: assets, Logger: logger},
		JWTSecret:   testSecret,
		Metrics:     m,
		AuthLimiter: middleware.NewRateLimiter(100, 100),
		Logger:      logger,
	})
	return &testApp{handler: h, mem: mem}
}

func tokenFor(t *testing.T, user primitive.ObjectID) string {
	t.Helper()
	claims := &middleware.Claims{
		UserID: user.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (a *testApp) do(t *testing.T, req *http.Request, user primitive.ObjectID) *httptest.ResponseRecorder {
	t.Helper()
	if !user.IsZero() {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, user))
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// multipartBody builds a form with an optional "book" JSON field and an optional "image" file.
func multipartBody(t *testing.T, book any, filename string, img []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if book != nil {
		raw, err := json.Marshal(book)
		require.NoError(t, err)
		require.NoError(t, mw.WriteField("book", string(raw)))
	}
	if img != nil {
		fw, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = fw.Write(img)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(raw)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// createBook posts a valid book and returns its id.
func (a *testApp) createBook(t *testing.T, owner primitive.ObjectID, title string) string {
	t.Helper()
	body, ct := multipartBody(t, map[string]any{"title": title, "author": "Frank Herbert", "year": 1965, "genre": "SF"}, "cover.png", pngBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/api/books", body)
	req.Header.Set("Content-Type", ct)
	rec := a.do(t, req, owner)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[messageResponse](t, rec).ID
}

func imagePath(t *testing.T, imageURL string) string {
	t.Helper()
	u, err := url.Parse(imageURL)
	require.NoError(t, err)
	return u.EscapedPath()
}
