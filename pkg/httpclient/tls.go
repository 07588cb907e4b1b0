package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
)

// TLSConfig holds TLS settings for outbound API connections.
type TLSConfig struct {
	// InsecureSkipVerify disables certificate verification. Only for
	// local development against self-signed endpoints.
	InsecureSkipVerify bool

	// CACertificate is a path to a PEM file appended to the system
	// root pool.
	CACertificate string
}

// ConfigureTLS builds an http.Transport from the given TLS settings.
func ConfigureTLS(config *TLSConfig) (*http.Transport, error) {
	if config == nil {
		return http.DefaultTransport.(*http.Transport).Clone(), nil
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: config.InsecureSkipVerify,
	}

	if config.CACertificate != "" {
		caCert, err := os.ReadFile(config.CACertificate)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caCertPool, err := x509.SystemCertPool()
		if err != nil {
			caCertPool = x509.NewCertPool()
		}
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %s", config.CACertificate)
		}
		tlsConfig.RootCAs = caCertPool
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	return transport, nil
}

// WithTLSConfig applies TLS settings to the client's underlying
// transport. A failure to load the CA certificate keeps the default
// transport rather than failing client construction.
func WithTLSConfig(tlsConfig *TLSConfig) Option {
	return func(c *Client) {
		transport, err := ConfigureTLS(tlsConfig)
		if err != nil {
			slog.Warn("Failed to configure TLS, using default transport", "error", err)
			return
		}
		c.client.Transport = transport
	}
}
