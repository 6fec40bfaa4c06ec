package clients

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HuongNV13/moodle/common/logger"
	"github.com/HuongNV13/moodle/common/models"
)

func testBlob(t *testing.T) *models.PackagedResource {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backup.mbz")
	require.NoError(t, os.WriteFile(path, []byte("archive-bytes"), 0o600))
	return &models.PackagedResource{
		Path:     path,
		Filename: "backup-hist101.mbz",
		MimeType: "application/vnd.moodle.backup",
		Size:     13,
	}
}

func testMoodleNetClient(t *testing.T) *MoodleNetClient {
	t.Helper()
	log := logger.New("error", "text")
	return NewMoodleNetClient(NewHTTPClient(&http.Client{}, log), log)
}

type capturedUpload struct {
	path          string
	authorization string
	metaName      string
	metaJSON      []byte
	fileName      string
	fileFilename  string
	fileEncoding  string
	fileBytes     []byte
}

// captureServer records the upload request and answers 201 with a homepage
func captureServer(t *testing.T, captured *capturedUpload) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.authorization = r.Header.Get("Authorization")

		mr, err := r.MultipartReader()
		assert.NoError(t, err)

		meta, err := mr.NextPart()
		require.NoError(t, err)
		captured.metaName = meta.FormName()
		captured.metaJSON, err = io.ReadAll(meta)
		require.NoError(t, err)

		file, err := mr.NextPart()
		require.NoError(t, err)
		captured.fileName = file.FormName()
		captured.fileFilename = file.FileName()
		captured.fileEncoding = file.Header.Get("Content-Transfer-Encoding")
		captured.fileBytes, err = io.ReadAll(file)
		require.NoError(t, err)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"homepage": "https://moodle.net/resource/55"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateResource_Created(t *testing.T) {
	var captured capturedUpload
	srv := captureServer(t, &captured)

	client := testMoodleNetClient(t)
	issuer := &models.Issuer{ID: 1, BaseURL: srv.URL + "/"}
	meta := ResourceMetadata{Name: "History 101", Description: "About"}

	result, err := client.CreateResource(context.Background(), issuer, testBlob(t), meta, "tok-123")
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, result.Outcome)
	assert.Equal(t, http.StatusCreated, result.Status)
	assert.Equal(t, "https://moodle.net/resource/55", result.ResourceURL)

	// Request shape
	assert.Equal(t, APICreateResourceURI, captured.path)
	assert.Equal(t, "Bearer tok-123", captured.authorization)

	assert.Equal(t, ".", captured.metaName)
	var gotMeta ResourceMetadata
	require.NoError(t, json.Unmarshal(captured.metaJSON, &gotMeta))
	assert.Equal(t, meta, gotMeta)

	assert.Equal(t, ".resource", captured.fileName)
	assert.Equal(t, "backup-hist101.mbz", captured.fileFilename)
	assert.Equal(t, "binary", captured.fileEncoding)
	assert.Equal(t, []byte("archive-bytes"), captured.fileBytes)
}

func TestCreateResource_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	client := testMoodleNetClient(t)
	issuer := &models.Issuer{ID: 1, BaseURL: srv.URL}

	result, err := client.CreateResource(context.Background(), issuer, testBlob(t), ResourceMetadata{}, "expired")
	require.NoError(t, err)

	assert.Equal(t, OutcomeRejected, result.Outcome)
	assert.Equal(t, http.StatusUnauthorized, result.Status)
	assert.Empty(t, result.ResourceURL)
}

func TestCreateResource_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // unreachable endpoint

	client := testMoodleNetClient(t)
	issuer := &models.Issuer{ID: 1, BaseURL: srv.URL}

	result, err := client.CreateResource(context.Background(), issuer, testBlob(t), ResourceMetadata{}, "tok")
	require.NoError(t, err)

	assert.Equal(t, OutcomeTransportFailure, result.Outcome)
	assert.Error(t, result.Err)
}

func TestCreateResource_UnparseableSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("not json"))
	}))
	t.Cleanup(srv.Close)

	client := testMoodleNetClient(t)
	issuer := &models.Issuer{ID: 1, BaseURL: srv.URL}

	result, err := client.CreateResource(context.Background(), issuer, testBlob(t), ResourceMetadata{}, "tok")
	require.NoError(t, err)

	assert.Equal(t, OutcomeTransportFailure, result.Outcome)
}

func TestCreateResource_MissingBlob(t *testing.T) {
	client := testMoodleNetClient(t)
	issuer := &models.Issuer{ID: 1, BaseURL: "https://moodle.net"}
	blob := &models.PackagedResource{Path: filepath.Join(t.TempDir(), "gone.mbz")}

	_, err := client.CreateResource(context.Background(), issuer, blob, ResourceMetadata{}, "tok")
	assert.Error(t, err)
}
