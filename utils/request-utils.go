package utils

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// ErrNoDocument means the request carried neither an uploaded file nor a
// featureCollection form value nor a JSON body.
var ErrNoDocument = errors.New("no suitable files found")

// Upload is the GeoJSON document pulled out of a request.
type Upload struct {
	Body       []byte
	SourceName string
	Session    string
}

// ReadUpload extracts the document from a multipart form (the fileKey part, or
// a featureCollection value) or from a raw JSON body. maxBytes bounds what is
// read; zero means no limit.
func ReadUpload(w http.ResponseWriter, r *http.Request, fileKey string, maxBytes int64) (*Upload, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	upload := &Upload{Session: r.URL.Query().Get("session")}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, ErrNoDocument
		}
		upload.Body = body
		upload.SourceName = r.URL.Query().Get("name")
		if upload.SourceName == "" {
			upload.SourceName = "request-body"
		}
		return upload, nil
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, fmt.Errorf("failed to parse multipart form: %w", err)
	}
	if v := r.MultipartForm.Value["session"]; len(v) > 0 && v[0] != "" {
		upload.Session = v[0]
	}

	if headers := r.MultipartForm.File[fileKey]; len(headers) > 0 {
		file, err := headers[0].Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open uploaded file: %w", err)
		}
		defer file.Close()

		body, err := io.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read uploaded file: %w", err)
		}
		upload.Body = body
		upload.SourceName = headers[0].Filename
		return upload, nil
	}

	if v := r.MultipartForm.Value["featureCollection"]; len(v) > 0 && strings.TrimSpace(v[0]) != "" {
		upload.Body = []byte(v[0])
		upload.SourceName = "featureCollection"
		return upload, nil
	}

	return nil, ErrNoDocument
}
