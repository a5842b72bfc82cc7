package certs

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/dotside-studios/ndefscan/buildinfo"
)

// BootstrapServer serves the CA certificate over plain HTTP so phones can
// trust the agent before connecting to its WSS endpoint.
type BootstrapServer struct {
	manager    *Manager
	port       int
	httpServer *http.Server
	logger     *log.Logger
}

// NewBootstrapServer creates a new bootstrap server for CA distribution.
func NewBootstrapServer(manager *Manager, port int) *BootstrapServer {
	return &BootstrapServer{
		manager: manager,
		port:    port,
		logger:  log.New(os.Stderr, "[bootstrap] ", log.LstdFlags),
	}
}

// Handler returns the bootstrap routes.
func (s *BootstrapServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ca.pem", s.handleCACert)
	mux.HandleFunc("/ca.crt", s.handleCACert)
	mux.HandleFunc("/", s.handleInstructions)
	return mux
}

// Start serves in the background until ctx is done or Stop is called.
func (s *BootstrapServer) Start(ctx context.Context) {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	s.logger.Printf("CA bootstrap server running on http://localhost:%d", s.port)
	for _, link := range downloadLinks(s.port) {
		s.logger.Printf("  %s", link)
	}
	if fingerprint, err := s.manager.CAFingerprint(); err == nil {
		s.logger.Printf("CA Fingerprint (SHA256): %s", fingerprint)
	}

	httpServer := s.httpServer
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Bootstrap server error: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop stops the bootstrap server.
func (s *BootstrapServer) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.httpServer.Shutdown(ctx)
}

func (s *BootstrapServer) handleCACert(w http.ResponseWriter, r *http.Request) {
	caCert, err := s.manager.ReadCACert()
	if err != nil {
		http.Error(w, "CA certificate not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/x-pem-file")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", buildinfo.DirName+"-ca.pem"))
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Write(caCert)

	s.logger.Printf("CA certificate downloaded by %s", r.RemoteAddr)
}

var instructionsTemplate = template.Must(template.New("instructions").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.App}} - Install CA Certificate</title>
</head>
<body>
<h1>Install CA Certificate</h1>
<p>To connect securely to {{.App}}, install this certificate authority on your phone.</p>
<p><a href="/ca.pem">Download CA Certificate</a></p>
<p>Verify that the fingerprint matches the one in the {{.App}} logs before trusting it.</p>
<pre>{{.Fingerprint}}</pre>
<h2>iOS</h2>
<ol>
<li>Download the certificate and open Settings, Profile Downloaded.</li>
<li>Install it, then enable full trust under General, About, Certificate Trust Settings.</li>
</ol>
<h2>Android</h2>
<ol>
<li>Download the certificate.</li>
<li>Open Settings, Security, Encryption &amp; credentials, Install a certificate, CA certificate.</li>
</ol>
<h2>Download URLs</h2>
<ul>{{range .Links}}<li>{{.}}</li>{{end}}</ul>
</body>
</html>
`))

func (s *BootstrapServer) handleInstructions(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	fingerprint, err := s.manager.CAFingerprint()
	if err != nil {
		fingerprint = "unavailable: " + err.Error()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = instructionsTemplate.Execute(w, struct {
		App         string
		Fingerprint string
		Links       []string
	}{
		App:         buildinfo.DisplayName,
		Fingerprint: fingerprint,
		Links:       append([]string{fmt.Sprintf("http://localhost:%d/ca.pem", s.port)}, downloadLinks(s.port)...),
	})
	if err != nil {
		s.logger.Printf("Failed to render instructions: %v", err)
	}
}

// downloadLinks lists the CA URL on every LAN address.
func downloadLinks(port int) []string {
	ips, _ := LANIPs()
	links := make([]string, 0, len(ips))
	for _, ip := range ips {
		if net.ParseIP(ip) != nil {
			links = append(links, fmt.Sprintf("http://%s:%d/ca.pem", ip, port))
		}
	}
	return links
}
