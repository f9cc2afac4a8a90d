package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/kevinaaaquil/grimoire/service"
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// isMultipart reports whether the request body is multipart/form-data.
func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// parseBookForm reads a multipart request carrying a "book" JSON field and an optional "image" file.
// The JSON is decoded into dst when present. The returned image is nil when no file was sent.
func parseBookForm(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) (bookFieldSet bool, img *service.Image, err error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return false, nil, errors.New("failed to parse multipart form")
	}
	if raw := r.FormValue("book"); raw != "" {
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			return false, nil, errors.New("book field is not valid json")
		}
		bookFieldSet = true
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return bookFieldSet, nil, nil
	}
	if err != nil {
		return false, nil, errors.New("failed to read image")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return false, nil, errors.New("failed to read image")
	}
	if len(data) == 0 {
		return bookFieldSet, nil, nil
	}
	sniffed := http.DetectContentType(data)
	if !allowedImageTypes[strings.SplitN(sniffed, ";", 2)[0]] {
		return false, nil, errors.New("only jpeg, png, gif and webp images are allowed")
	}
	return bookFieldSet, &service.Image{Filename: header.Filename, Data: data}, nil
}
