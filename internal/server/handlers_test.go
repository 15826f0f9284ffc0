package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"quicksand/internal/auth"
	"quicksand/internal/blobstore"
	"quicksand/internal/config"
	"quicksand/internal/store"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	blobs, err := blobstore.NewLocalDir(filepath.Join(dir, "files"))
	if err != nil {
		t.Fatalf("open blob dir: %v", err)
	}

	cfg := config.Default()
	cfg.FilesDir = filepath.Join(dir, "files")
	cfg.DBPath = filepath.Join(dir, "test.db")
	cfg.Maintenance.ReconcileChance = 0

	return New("127.0.0.1:0", st, blobs, &cfg, config.DefaultRetentionPolicy(), slog.Default())
}

func pngPayload(size int) []byte {
	return append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0xCD}, size-8)...)
}

// multipartUpload builds a multipart body with one file per entry plus
// optional plain form fields.
func multipartUpload(t *testing.T, files map[string][]byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := writer.CreateFormFile("images", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	return rec
}

func uploadOne(t *testing.T, s *Server, name string, content []byte) UploadResponse {
	t.Helper()
	body, contentType := multipartUpload(t, map[string][]byte{name: content}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/images", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(s, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t)
	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestUploadServeDeleteFlow(t *testing.T) {
	s := testServer(t)

	resp := uploadOne(t, s, "cat.png", pngPayload(512))
	if resp.IsGallery {
		t.Fatal("single upload must not form a gallery")
	}
	if resp.ID == "" || resp.OwnerToken == "" {
		t.Fatalf("incomplete upload response: %+v", resp)
	}
	if !strings.HasSuffix(resp.URL, "/v1/images/"+resp.ID+".png") {
		t.Fatalf("unexpected image url %q", resp.URL)
	}
	if resp.Filename != "cat.png" {
		t.Fatalf("expected the uploaded filename, got %q", resp.Filename)
	}

	// Serving returns the bytes with caching headers bounded by expiry.
	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/v1/images/"+resp.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("serve: expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "max-age=") {
		t.Fatalf("expected max-age in cache-control, got %q", cc)
	}
	if rec.Header().Get("Last-Modified") == "" {
		t.Fatal("expected Last-Modified header")
	}
	served, _ := io.ReadAll(rec.Body)
	if len(served) != 512 {
		t.Fatalf("expected 512 bytes, got %d", len(served))
	}

	// Extension-suffixed links resolve to the same blob.
	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/v1/images/"+resp.ID+".png", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("serve with extension: expected 200, got %d", rec.Code)
	}

	// Deleting without the owner token leaks nothing.
	rec = doRequest(s, httptest.NewRequest(http.MethodDelete, "/v1/images/"+resp.ID, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("tokenless delete: expected 404, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, "/v1/images/"+resp.ID, nil)
	req.Header.Set(ownerHeaderName, resp.OwnerToken)
	rec = doRequest(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/v1/images/"+resp.ID, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.ErrorCode != ErrCodeImageNotFound {
		t.Fatalf("expected error code %d, got %d", ErrCodeImageNotFound, errResp.ErrorCode)
	}
}

func TestUploadSetsOwnerCookie(t *testing.T) {
	s := testServer(t)

	body, contentType := multipartUpload(t, map[string][]byte{"cat.png": pngPayload(64)}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/images", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(s, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var found bool
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == ownerCookieName && cookie.Value != "" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected owner cookie to be set")
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	s := testServer(t)

	body, contentType := multipartUpload(t, map[string][]byte{"note.txt": []byte("plain text, not pixels")}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/images", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(s, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.ErrorCode != ErrCodeNotAnImage {
		t.Fatalf("expected error code %d, got %d", ErrCodeNotAnImage, errResp.ErrorCode)
	}
}

func TestUploadWithoutFiles(t *testing.T) {
	s := testServer(t)

	body, contentType := multipartUpload(t, nil, map[string]string{"ttl": "60"})
	req := httptest.NewRequest(http.MethodPost, "/v1/images", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(s, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGalleryFlow(t *testing.T) {
	s := testServer(t)

	body, contentType := multipartUpload(t, map[string][]byte{
		"a.png": pngPayload(64),
		"b.png": pngPayload(64),
	}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/images", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(s, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.IsGallery || resp.GalleryID == "" {
		t.Fatalf("expected gallery response, got %+v", resp)
	}
	if len(resp.Images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(resp.Images))
	}

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/v1/galleries/"+resp.GalleryID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get gallery: expected 200, got %d", rec.Code)
	}
	var gallery GalleryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &gallery); err != nil {
		t.Fatalf("decode gallery: %v", err)
	}
	if gallery.ImageCount != 2 {
		t.Fatalf("expected 2 members, got %d", gallery.ImageCount)
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/galleries/"+resp.GalleryID, nil)
	req.Header.Set(ownerHeaderName, "some-other-token")
	rec = doRequest(s, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign delete: expected 404, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/galleries/"+resp.GalleryID, nil)
	req.Header.Set(ownerHeaderName, resp.OwnerToken)
	rec = doRequest(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete gallery: expected 200, got %d", rec.Code)
	}

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/v1/galleries/"+resp.GalleryID, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestListUploadsEndpoint(t *testing.T) {
	s := testServer(t)

	resp := uploadOne(t, s, "cat.png", pngPayload(64))

	req := httptest.NewRequest(http.MethodGet, "/v1/uploads", nil)
	req.Header.Set(ownerHeaderName, resp.OwnerToken)
	rec := doRequest(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list UploadsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Images) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(list.Images))
	}

	// No token means an empty listing, not an error.
	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/v1/uploads", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Images) != 0 || len(list.Galleries) != 0 {
		t.Fatalf("expected empty listing, got %+v", list)
	}
}

func TestInfoEndpoint(t *testing.T) {
	s := testServer(t)
	uploadOne(t, s, "cat.png", pngPayload(64))

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/v1/info", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var info InfoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.ImageCount != 1 {
		t.Fatalf("expected 1 image, got %d", info.ImageCount)
	}
	if info.UsedBytes != 64 {
		t.Fatalf("expected 64 used bytes, got %d", info.UsedBytes)
	}
}

func TestAdminEndpoints(t *testing.T) {
	s := testServer(t)

	// Without a configured hash the endpoints stay closed.
	rec := doRequest(s, httptest.NewRequest(http.MethodPost, "/v1/admin/sweep", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with no admin hash, got %d", rec.Code)
	}

	hash, err := auth.HashToken("admin-secret-1")
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	s.adminTokenHash = hash

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/sweep", nil)
	req.Header.Set(adminTokenHeader, "wrong-secret-1")
	rec = doRequest(s, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/admin/sweep", nil)
	req.Header.Set(adminTokenHeader, "admin-secret-1")
	rec = doRequest(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid token, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/admin/reconcile", nil)
	req.Header.Set("Authorization", "Bearer admin-secret-1")
	rec = doRequest(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for bearer token, got %d", rec.Code)
	}
}

func TestBrowserPages(t *testing.T) {
	s := testServer(t)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("index: expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("expected html index, got %q", ct)
	}

	// The short route serves the bytes directly.
	resp := uploadOne(t, s, "cat.png", pngPayload(64))
	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/i/"+resp.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("short image route: expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png on short route, got %q", ct)
	}

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/i/nosuchid1", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", rec.Code)
	}

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/g/nosuchgal", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 gallery page, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Fatal("expected html gone page for unknown gallery")
	}

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("favicon: expected 200, got %d", rec.Code)
	}
}

func TestRequestSizeLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.MaxFileBytes = 8 << 20
	cfg.Storage.MaxFilesPerUpload = 10
	if got, want := requestSizeLimit(&cfg), int64(10*(8<<20)+(1<<20)); got != want {
		t.Fatalf("expected limit %d, got %d", want, got)
	}

	// Without a per-file cap the pool size bounds one request.
	cfg.Storage.MaxFileBytes = 0
	cfg.Storage.MaxStorageBytes = 5000
	cfg.Storage.MaxFilesPerUpload = 0
	if got, want := requestSizeLimit(&cfg), int64(5000+(1<<20)); got != want {
		t.Fatalf("expected limit %d, got %d", want, got)
	}

	// Both caps disabled means no request body limit at all.
	cfg.Storage.MaxStorageBytes = 0
	if got := requestSizeLimit(&cfg); got != 0 {
		t.Fatalf("expected unlimited body with both caps disabled, got %d", got)
	}
}

func TestInvalidIDRejected(t *testing.T) {
	s := testServer(t)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/v1/images/bad%2Fid", nil))
	if rec.Code != http.StatusBadRequest && rec.Code != http.StatusNotFound {
		t.Fatalf("expected rejection, got %d", rec.Code)
	}
}
