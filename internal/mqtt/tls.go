package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"mqttbench/internal/core"
)

// NewTLSConfig builds the client TLS settings from the CA, certificate and
// key files in opts. It returns nil when opts asks for no TLS customisation.
func NewTLSConfig(opts core.ClientOptions) (*tls.Config, error) {
	if opts.CAFile == "" && opts.CertFile == "" && opts.KeyFile == "" && !opts.Insecure {
		return nil, nil
	}

	cfg := &tls.Config{InsecureSkipVerify: opts.Insecure}

	if opts.CAFile != "" {
		pem, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", opts.CAFile)
		}
		cfg.RootCAs = pool
	}

	if opts.CertFile != "" || opts.KeyFile != "" {
		if opts.CertFile == "" || opts.KeyFile == "" {
			return nil, fmt.Errorf("cert file and key file must be given together")
		}
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
