package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/handlers"

	"github.com/s3mockd/s3mockd/pkg/accesslog"
	"github.com/s3mockd/s3mockd/pkg/auth"
	"github.com/s3mockd/s3mockd/pkg/server"
	"github.com/s3mockd/s3mockd/pkg/storage"
)

// Config holds the server configuration
type Config struct {
	Addr        string
	DataDir     string
	Credentials string
}

// parseCredentials parses comma-separated credentials and adds them to the authenticator
func parseCredentials(credString string, authenticator *auth.AWS4Authenticator) error {
	if credString == "" {
		return nil
	}

	credList := strings.Split(credString, ",")
	for _, cred := range credList {
		parts := strings.SplitN(strings.TrimSpace(cred), ":", 2)
		if len(parts) == 2 {
			authenticator.AddCredentials(parts[0], parts[1])
			log.Printf("Added credentials for access key: %s", parts[0])
		}
	}
	return nil
}

// createServer creates and configures the S3 server
func createServer(cfg *Config) (http.Handler, error) {
	// Create storage
	store, err := storage.NewStorage(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	logger := accesslog.NewLogger(store)
	s := server.NewS3Handler(store, server.WithAccessLog(logger))

	var h http.Handler = s
	if cfg.Credentials != "" {
		authenticator := auth.NewAWS4Authenticator()
		if err := parseCredentials(cfg.Credentials, authenticator); err != nil {
			return nil, err
		}
		h = authenticator.AuthMiddleware(s)
	} else {
		log.Printf("WARNING: Running without authentication (no credentials configured)")
	}

	h = handlers.RecoveryHandler()(h)
	h = handlers.CombinedLoggingHandler(os.Stdout, h)
	return h, nil
}

func main() {
	addr := flag.String("addr", ":8080", "Server address")
	dataDir := flag.String("data", "./data", "Data directory for storage")
	credentials := flag.String("credentials", "", "Credentials in format accessKeyID:secretAccessKey (can specify multiple separated by comma)")
	flag.Parse()

	cfg := &Config{
		Addr:        *addr,
		DataDir:     *dataDir,
		Credentials: *credentials,
	}

	handler, err := createServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Start server
	log.Printf("Starting S3-compatible server on %s", cfg.Addr)
	log.Printf("Data directory: %s", cfg.DataDir)

	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
