package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// HTTPClient is a generic HTTPS-PUT object store client: it uploads a
// file's bytes to "<endpoint>/<bucket>/<key>" and treats the destination
// as logged-in once a login probe succeeds. It makes no assumption about
// a specific vendor's wire protocol beyond "PUT bytes at a key, read the
// status code back"; anything richer belongs in another Client
// implementation.
type HTTPClient struct {
	creds      Credentials
	httpClient *http.Client

	mu         sync.Mutex
	loggedIn   bool
	enabled    bool
}

// NewHTTPClient builds a client for creds. transportAvailable folds in
// whatever availability check the caller has already performed (e.g. a
// build tag or a feature flag); the client additionally disables itself
// when credentials or bucket name are empty, so Enabled() is
// has-credentials AND transport-available in one place.
func NewHTTPClient(creds Credentials, tlsCfg TLSConfig, timeout time.Duration, transportAvailable bool) (*HTTPClient, error) {
	hasCredentials := creds.AccountID != "" && creds.SecretKey != "" && creds.BucketName != ""

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	if strings.HasPrefix(creds.Endpoint, "https://") {
		tc, err := buildTLSConfig(tlsCfg)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tc
	}

	return &HTTPClient{
		creds:   creds,
		enabled: hasCredentials && transportAvailable,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}, nil
}

// Enabled implements Client.
func (c *HTTPClient) Enabled() bool {
	return c.enabled
}

// Login implements Client. It is a best-effort HEAD against the bucket
// root; once it succeeds the session is considered established until the
// client is recreated.
func (c *HTTPClient) Login(ctx context.Context) error {
	if !c.enabled {
		return errors.New("objectstore: client disabled")
	}

	c.mu.Lock()
	if c.loggedIn {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.bucketURL(), nil)
	if err != nil {
		return fmt.Errorf("objectstore: build login request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("objectstore: login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.mu.Lock()
		c.loggedIn = true
		c.mu.Unlock()
		return nil
	}
	return &statusError{code: resp.StatusCode}
}

// Upload implements Client.
func (c *HTTPClient) Upload(ctx context.Context, sourcePath, destinationKey string) (bool, int64, error) {
	if !c.enabled {
		return false, 0, errors.New("objectstore: client disabled")
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return false, 0, fmt.Errorf("objectstore: stat %s: %w", sourcePath, err)
	}

	f, err := os.Open(sourcePath)
	if err != nil {
		return false, 0, fmt.Errorf("objectstore: open %s: %w", sourcePath, err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.objectURL(destinationKey), f)
	if err != nil {
		return false, 0, fmt.Errorf("objectstore: build upload request: %w", err)
	}
	req.ContentLength = info.Size()
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, 0, fmt.Errorf("objectstore: upload %s: %w", sourcePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, 0, &statusError{code: resp.StatusCode}
	}

	// A PUT response body carries nothing useful; drain it so the
	// connection can be reused. Success + local size is the byte count.
	io.Copy(io.Discard, resp.Body)
	return true, info.Size(), nil
}

// DecodeError implements Client.
func (c *HTTPClient) DecodeError(err error) ErrorClass {
	var se *statusError
	if !errors.As(err, &se) {
		return ErrUnknown
	}
	switch se.code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusForbidden, http.StatusUnauthorized:
		return ErrAccessDenied
	default:
		return ErrOther
	}
}

func (c *HTTPClient) bucketURL() string {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(c.creds.Endpoint, "/"), c.creds.BucketName)
}

func (c *HTTPClient) objectURL(key string) string {
	return fmt.Sprintf("%s/%s", c.bucketURL(), strings.TrimPrefix(key, "/"))
}

func (c *HTTPClient) authorize(req *http.Request) {
	req.SetBasicAuth(c.creds.AccountID, c.creds.SecretKey)
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("objectstore: unexpected status %d", e.code)
}
