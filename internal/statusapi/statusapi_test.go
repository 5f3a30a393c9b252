package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logentries/s3archiver/test/testutil"
)

func newTestServer(t *testing.T, snap Snapshot) *Server {
	return NewServer(":0", func() Snapshot { return snap }, testutil.NewArchiverLogger(t))
}

func TestServer_HandleHealth(t *testing.T) {
	s := newTestServer(t, Snapshot{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.httpSrv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_HandleStatus(t *testing.T) {
	ts := int64(1419249757000)
	snap := Snapshot{
		QueueDepth:         5,
		QueueCapacity:      100000,
		CompressionPending: 1,
		UploadPending:      2,
		Logs: map[string]Log{
			"app.log": {StagingPath: "/tmp/x", Token: "tok1", Size: 123, FirstMsgTS: &ts},
		},
	}
	s := newTestServer(t, snap)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var got Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, snap.QueueDepth, got.QueueDepth)
	assert.Equal(t, snap.Logs["app.log"].Token, got.Logs["app.log"].Token)
	require.NotNil(t, got.Logs["app.log"].FirstMsgTS)
	assert.Equal(t, ts, *got.Logs["app.log"].FirstMsgTS)
}
