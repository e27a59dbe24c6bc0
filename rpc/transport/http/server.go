package http

import (
	"context"
	"errors"
	"github.com/ValentinKolb/dProof/rpc/common"
	"github.com/ValentinKolb/dProof/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

func NewHttpServerTransport() transport.IRPCServerTransport {
	return &httpServerTransport{}
}

type httpServerTransport struct {
	handler  transport.ServerHandleFunc
	config   common.ServerConfig
	server   *http.Server
	serverMu sync.Mutex
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *httpServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *httpServerTransport) Listen(config common.ServerConfig) error {
	t.config = config

	mux := http.NewServeMux()
	if t.config.LogLevel == "debug" {
		mux.HandleFunc("POST /{shardId}", loggerMiddleware(t.handleRequest))
	} else {
		mux.HandleFunc("POST /{shardId}", t.handleRequest)
	}

	server := &http.Server{
		Addr:    t.config.Transport.Endpoint,
		Handler: mux,
	}
	if t.config.TimeoutSecond > 0 {
		server.ReadTimeout = time.Duration(t.config.TimeoutSecond) * time.Second
	}

	t.serverMu.Lock()
	t.server = server
	t.serverMu.Unlock()

	Logger.Infof("Starting HTTP server on %s", t.config.Transport.Endpoint)

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (t *httpServerTransport) Close() error {
	t.serverMu.Lock()
	defer t.serverMu.Unlock()
	if t.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.server.Shutdown(ctx)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleRequest handles incoming HTTP requests and writes the response to the writer
func (t *httpServerTransport) handleRequest(w http.ResponseWriter, r *http.Request) {
	shardId, err := strconv.ParseUint(r.PathValue("shardId"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid shardId", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)
		return
	}

	resp := t.handler(shardId, body)

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err = w.Write(resp); err != nil {
		Logger.Errorf("Failed to write response: %v", err)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	}
}
