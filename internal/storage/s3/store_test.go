package s3

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allergen-map/internal/common"
)

// fakeBucket answers path-style GetObject requests from memory.
type fakeBucket struct {
	bucket  string
	objects map[string][]byte
	paths   []string
}

func (f *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	f.paths = append(f.paths, req.URL.Path)
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	if req.Method != http.MethodGet || len(parts) != 2 || parts[0] != f.bucket {
		return respond(http.StatusNotImplemented, nil, ""), nil
	}
	body, ok := f.objects[parts[1]]
	if !ok {
		return respond(http.StatusNotFound, []byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`), "application/xml"), nil
	}
	return respond(http.StatusOK, body, "image/tiff"), nil
}

func respond(status int, body []byte, contentType string) *http.Response {
	h := http.Header{"Content-Length": {strconv.Itoa(len(body))}}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(bytes.NewReader(body)), ContentLength: int64(len(body))}
}

func newFakeStore(t *testing.T, prefix string, objects map[string][]byte) (*Store, *fakeBucket) {
	t.Helper()
	fb := &fakeBucket{bucket: "rasters", objects: objects}
	s, err := New(context.Background(), Config{
		Bucket:          "rasters",
		Region:          "eu-central-1",
		Endpoint:        "https://mock.s3.local",
		Prefix:          prefix,
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		HTTPClient:      &http.Client{Transport: fb},
	})
	require.NoError(t, err)
	return s, fb
}

func TestStoreOpen(t *testing.T) {
	s, fb := newFakeStore(t, "/allergen/", map[string][]byte{
		"allergen/Alnus.tif": []byte("tiff-bytes"),
	})
	assert.Equal(t, "rasters", s.Bucket())

	rc, err := s.Open(context.Background(), "Alnus.tif")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "tiff-bytes", string(data))
	assert.Equal(t, "/rasters/allergen/Alnus.tif", fb.paths[0])
}

func TestStoreOpenMissing(t *testing.T) {
	s, _ := newFakeStore(t, "", map[string][]byte{})
	_, err := s.Open(context.Background(), "Betula.tif")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.ErrorIs(t, err, common.ErrConfig)
}
