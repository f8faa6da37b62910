package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenReadFileRoundTrips(t *testing.T) {
	e := newTestEcho(t)
	id := createSandboxViaAPI(t, e)

	rec := doJSON(t, e, http.MethodPost, "/v1/sandboxes/"+id+"/fs/write", writeFileRequest{
		Path:          "a.txt",
		ContentBase64: base64.StdEncoding.EncodeToString([]byte("hello")),
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, e, http.MethodPost, "/v1/sandboxes/"+id+"/fs/read", pathRequest{Path: "a.txt"})
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	decoded, err := base64.StdEncoding.DecodeString(body["content_base64"])
	require.NoError(t, err)
	assert.Equal(t, "hello", string(decoded))
}

func TestReadFileRejectsPathTraversal(t *testing.T) {
	e := newTestEcho(t)
	id := createSandboxViaAPI(t, e)

	rec := doJSON(t, e, http.MethodPost, "/v1/sandboxes/"+id+"/fs/read", pathRequest{Path: "../etc/passwd"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteFileRejectsInvalidBase64(t *testing.T) {
	e := newTestEcho(t)
	id := createSandboxViaAPI(t, e)

	rec := doJSON(t, e, http.MethodPost, "/v1/sandboxes/"+id+"/fs/write", writeFileRequest{Path: "a.txt", ContentBase64: "not-base64!!"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadAndDownloadFileRawBody(t *testing.T) {
	e := newTestEcho(t)
	id := createSandboxViaAPI(t, e)

	req := httptest.NewRequest(http.MethodPost, "/v1/sandboxes/"+id+"/fs/upload?path=b.bin", strings.NewReader("raw-bytes"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/sandboxes/"+id+"/fs/download?path=b.bin", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
}
