// Command fixtureserver serves the test pages the scenario checks load.
// Usage: go run ./cmd/fixtureserver [-port 8888] [-https-port 8889] [-cert-dir dir]
// The HTTPS listener uses a leaf signed by the netmon CA in cert-dir.
package main

import (
	"crypto/tls"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/raysh454/netmon/internal/cert"
	"github.com/raysh454/netmon/internal/fixtures"
	"github.com/raysh454/netmon/internal/logging"
)

func main() {
	cfg := fixtures.DefaultConfig()

	home, _ := os.UserHomeDir()
	port := flag.Int("port", cfg.Port, "plain HTTP port")
	httpsPort := flag.Int("https-port", cfg.HTTPSPort, "HTTPS port (0 disables TLS)")
	certDir := flag.String("cert-dir", filepath.Join(home, ".config", "netmon", "certs"), "directory holding the netmon CA")
	flag.Parse()

	cfg.Port = *port
	cfg.HTTPSPort = *httpsPort
	logger := logging.NewStdoutLogger("fixtureserver")

	srv := fixtures.NewServer(cfg, logger)

	var tlsCfg *tls.Config
	if cfg.HTTPSPort != 0 {
		mgr, err := cert.NewManager(*certDir, logger)
		if err != nil {
			log.Fatalf("Certificate authority error: %v", err)
		}
		logger.Info("trust this CA to load the https pages", logging.F("ca", mgr.CAPath()))
		tlsCfg = mgr.TLSConfig("localhost")
	}

	if err := srv.Start(tlsCfg); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
