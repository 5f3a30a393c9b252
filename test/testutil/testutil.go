package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	applogger "github.com/logentries/s3archiver/internal/logger"
)

// NewArchiverLogger builds a logger.Logger for pipeline tests: console-only,
// no file output or async buffering, so it neither touches disk nor needs a
// shutdown call.
func NewArchiverLogger(t *testing.T) applogger.Logger {
	cfg := applogger.DefaultConfig()
	cfg.Console.Enabled = true
	cfg.File.Enabled = false
	cfg.Async.Enabled = false

	factory, err := applogger.NewFactory(cfg)
	require.NoError(t, err)

	log, err := factory.Create(t.Name())
	require.NoError(t, err)
	return log
}

// CreateTempConfigFile creates a temporary config file for testing.
func CreateTempConfigFile(t *testing.T, content string) string {
	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	require.NoError(t, err)

	_, err = tmpFile.WriteString(content)
	require.NoError(t, err)

	err = tmpFile.Close()
	require.NoError(t, err)

	t.Cleanup(func() {
		os.Remove(tmpFile.Name())
	})

	return tmpFile.Name()
}

// MockObjectStore is a minimal in-memory object-store endpoint for
// UploadStage/integration tests. It accepts PUT under /<bucket>/<key>,
// records the bytes received, and answers HEAD at the bucket root for
// login probes.
type MockObjectStore struct {
	t      *testing.T
	server *httptest.Server

	Bucket string

	// ForcedStatus, if non-zero, is returned for every request (HEAD login
	// probes as well as PUTs) instead of the normal response.
	ForcedStatus int

	received map[string][]byte
}

// NewMockObjectStore starts a mock object-store server for bucket.
func NewMockObjectStore(t *testing.T, bucket string) *MockObjectStore {
	m := &MockObjectStore{t: t, Bucket: bucket, received: make(map[string][]byte)}

	mux := http.NewServeMux()
	mux.HandleFunc("/", m.handle)
	m.server = httptest.NewServer(mux)

	t.Cleanup(m.server.Close)
	return m
}

// URL is the server's base endpoint, suitable as Credentials.Endpoint.
func (m *MockObjectStore) URL() string {
	return m.server.URL
}

// Received returns the bytes last PUT at the request path key (of the form
// "/<bucket>/<object key>"), and whether any were received at all.
func (m *MockObjectStore) Received(key string) ([]byte, bool) {
	b, ok := m.received[key]
	return b, ok
}

func (m *MockObjectStore) handle(w http.ResponseWriter, r *http.Request) {
	if m.ForcedStatus != 0 {
		w.WriteHeader(m.ForcedStatus)
		return
	}

	switch r.Method {
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		m.received[r.URL.Path] = body
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
