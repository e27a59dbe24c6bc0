package http

import (
	"bytes"
	"fmt"
	"github.com/ValentinKolb/dProof/rpc/common"
	"github.com/ValentinKolb/dProof/rpc/transport"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

type httpClientTransport struct {
	serverURLs []*url.URL
	client     *http.Client
	counter    uint32
	retryCount int
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	parsedURLs := make([]*url.URL, len(config.Transport.Endpoints))
	for i, server := range config.Transport.Endpoints {
		// endpoints without scheme are plain host:port addresses
		if !strings.Contains(server, "://") {
			server = "http://" + server
		}
		parsedURL, err := url.Parse(strings.TrimSuffix(server, "/"))
		if err != nil {
			return fmt.Errorf("invalid endpoint %q: %w", config.Transport.Endpoints[i], err)
		}
		parsedURLs[i] = parsedURL
	}

	connsPerHost := config.Transport.ConnectionsPerEndpoint
	if connsPerHost <= 0 {
		connsPerHost = 10
	}

	t.client = &http.Client{
		Timeout: time.Duration(config.TimeoutSecond) * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: connsPerHost,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	t.serverURLs = parsedURLs
	t.counter = 0
	t.retryCount = max(config.Transport.RetryCount, 1)

	return nil
}

func (t *httpClientTransport) Send(shardId uint64, req []byte) (resp []byte, err error) {
	if t.client == nil {
		return nil, fmt.Errorf("http transport not initialized")
	}

	var lastErr error
	for i := 0; i < t.retryCount; i++ {
		// Select the next server via round-robin
		idx := atomic.AddUint32(&t.counter, 1) % uint32(len(t.serverURLs))
		requestURL := fmt.Sprintf("%s/%d", t.serverURLs[idx].String(), shardId)

		resp, err := t.post(requestURL, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, t.retryCount, err)
	}

	return nil, fmt.Errorf("failed to send request after %d attempts: %w", t.retryCount, lastErr)
}

func (t *httpClientTransport) Close() error {
	if t.client != nil {
		t.client.CloseIdleConnections()
	}

	t.client = nil
	t.serverURLs = nil

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// post sends one request and reads the complete response body
func (t *httpClientTransport) post(requestURL string, body []byte) ([]byte, error) {
	httpResponse, err := t.client.Post(requestURL, "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := httpResponse.Body.Close(); err != nil {
			Logger.Errorf("Failed to close response body: %v", err)
		}
	}()

	if httpResponse.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http error: %s", httpResponse.Status)
	}

	return io.ReadAll(httpResponse.Body)
}
