// Package server provides the HTTP and WebSocket surface of the agent:
// scan control, offline NDEF decoding, and live session broadcasts.
package server

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"

	"github.com/dotside-studios/ndefscan/buildinfo"
	"github.com/dotside-studios/ndefscan/nfc"
	"github.com/dotside-studios/ndefscan/protocol"
)

// ErrSessionBusy is returned by a Scanner while another session runs.
var ErrSessionBusy = errors.New("a scan session is already running")

// Scanner starts and cancels read sessions on the agent's radio.
type Scanner interface {
	// StartScan starts a session and returns without waiting for its result.
	// The session outlives the request that started it.
	StartScan(req protocol.ScanRequest) (protocol.ScanResponse, error)

	// CancelScan cancels the running session, if any.
	CancelScan() bool

	// ActiveSession returns the ID of the running session, or "".
	ActiveSession() string

	// RadioName names the radio backend in health reports.
	RadioName() string
}

// Config holds the server configuration
type Config struct {
	Port      int
	APISecret string // Optional secret for scan requests and client WebSockets

	// TLSConfig serves HTTPS and WSS when set
	TLSConfig *tls.Config

	Scanner Scanner

	// DeviceHandler serves remote NFC devices on /ws/device when set
	DeviceHandler http.Handler
	DeviceCount   func() int

	// MDNS advertises the agent on the local network
	MDNS bool
}

// Server manages the HTTP and WebSocket server
type Server struct {
	config     Config
	clients    *WebsocketClientManager
	handlers   *HandlerRegistry
	upgrader   websocket.Upgrader
	mdnsServer *zeroconf.Server

	mu         sync.Mutex
	httpServer *http.Server
}

// New creates a new server instance
func New(config Config) *Server {
	s := &Server{
		config:   config,
		clients:  NewClientManager(),
		handlers: NewHandlerRegistry(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
	}
	if config.Scanner != nil {
		s.handlers.Handle(WSRequestTypeScan, s.handleScanRequest)
		s.handlers.Handle(WSRequestTypeCancel, s.handleCancelRequest)
	}
	return s
}

// Clients returns the display client manager.
func (s *Server) Clients() *WebsocketClientManager {
	return s.clients
}

// BroadcastSessionStarted announces a new session to display clients.
func (s *Server) BroadcastSessionStarted(payload protocol.SessionStartedPayload) {
	s.clients.BroadcastSessionStarted(payload)
}

// BroadcastState sends a state change of a running session to display clients.
func (s *Server) BroadcastState(sessionID string, state nfc.State) {
	s.clients.BroadcastState(sessionID, state)
}

// BroadcastResult sends the result of a session to display clients.
func (s *Server) BroadcastResult(r nfc.Result) {
	s.clients.BroadcastResult(r)
}

// Handler builds the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(routeHealth, enableCORS(s.handleHealthCheck))
	mux.HandleFunc(routeScan, enableCORS(s.handleScan))
	mux.HandleFunc(routeDecode, enableCORS(s.handleDecode))
	mux.HandleFunc(routeEncode, enableCORS(s.handleEncode))
	mux.HandleFunc(routeClients, s.handleWebSocket)
	if s.config.DeviceHandler != nil {
		mux.Handle(routeDevices, s.requireSecret(s.config.DeviceHandler))
	}

	mux.HandleFunc("/", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(buildinfo.DisplayName + " Running"))
	}))
	return mux
}

// enableCORS is a middleware that adds CORS headers to responses
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", CORSAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", CORSAllowHeaders)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// requireSecret rejects requests to next that fail the secret check.
func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			log.Printf("Rejected %s: invalid API secret", r.URL.Path)
			http.Error(w, "Unauthorized: Invalid API secret", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorized checks the API secret, passed either as a bearer token or as
// the "secret" query parameter.
func (s *Server) authorized(r *http.Request) bool {
	if s.config.APISecret == "" {
		return true
	}
	secret := r.URL.Query().Get("secret")
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		secret = strings.TrimPrefix(auth, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(s.config.APISecret)) == 1
}

// Start serves requests until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:      fmt.Sprintf(":%d", s.config.Port),
		Handler:   s.Handler(),
		TLSConfig: s.config.TLSConfig,
	}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	errc := make(chan error, 1)
	go func() {
		var err error
		if httpServer.TLSConfig != nil {
			log.Printf("Starting server on %s (TLS)", httpServer.Addr)
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			log.Printf("Starting server on %s", httpServer.Addr)
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	if s.config.MDNS {
		// Register mDNS service for auto-discovery
		if err := s.startMDNS(); err != nil {
			log.Printf("Warning: Failed to start mDNS service: %v", err)
			log.Printf("Auto-discovery will not be available, but server will continue normally")
		}
	}

	select {
	case <-ctx.Done():
		log.Println("Server context cancelled, initiating shutdown...")
		s.Stop()
		return nil
	case err := <-errc:
		s.Stop()
		return fmt.Errorf("http server: %w", err)
	}
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mdnsServer != nil {
		s.mdnsServer.Shutdown()
		s.mdnsServer = nil
		log.Printf("mDNS service stopped")
	}

	s.clients.CloseAll()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		s.httpServer = nil
	}
}

// mdnsTXTRecords describes the agent's endpoints to discovering clients.
func (s *Server) mdnsTXTRecords() []string {
	scheme := "ws"
	if s.config.TLSConfig != nil {
		scheme = "wss"
	}
	records := []string{
		"version=" + buildinfo.Version,
		"protocol=" + scheme,
		"path=" + routeClients,
	}
	if s.config.DeviceHandler != nil {
		records = append(records, "device_path="+routeDevices)
	}
	return records
}

// startMDNS registers the agent as an mDNS service so phones running the
// companion app can find it.
func (s *Server) startMDNS() error {
	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, s.config.Port, s.mdnsTXTRecords(), nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mu.Lock()
	s.mdnsServer = server
	s.mu.Unlock()
	log.Printf("mDNS service registered: %s on port %d", MDNSServiceName, s.config.Port)
	return nil
}
