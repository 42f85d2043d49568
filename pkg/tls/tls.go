package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"google.golang.org/grpc/credentials"
)

// Files locates the PEM material for a server
type Files struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// ServerConfig creates a TLS config for servers. With requireClientCert the
// CA bundle is loaded and clients must present a certificate it signed.
func ServerConfig(files Files, requireClientCert bool) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(files.CertFile, files.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	config := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if !requireClientCert {
		return config, nil
	}
	if files.CAFile == "" {
		return nil, fmt.Errorf("client certificates required but no CA file configured")
	}

	caCert, err := os.ReadFile(files.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	config.ClientCAs = caCertPool
	config.ClientAuth = tls.RequireAndVerifyClientCert

	return config, nil
}

// GRPCServerCredentials wraps ServerConfig for grpc.Creds
func GRPCServerCredentials(files Files) (credentials.TransportCredentials, error) {
	config, err := ServerConfig(files, true)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(config), nil
}
