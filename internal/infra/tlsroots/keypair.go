package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// KeyPair serves a certificate and key loaded from disk, replaceable at
// runtime. It is safe for concurrent use.
type KeyPair struct {
	certFile string
	keyFile  string
	logger   *slog.Logger

	cert atomic.Pointer[tls.Certificate]
}

// LoadKeyPair loads certFile and keyFile.
func LoadKeyPair(certFile, keyFile string, logger *slog.Logger) (*KeyPair, error) {
	if logger == nil {
		logger = slog.Default()
	}
	k := &KeyPair{certFile: certFile, keyFile: keyFile, logger: logger}
	if err := k.Reload(); err != nil {
		return nil, err
	}
	return k, nil
}

// Reload re-reads the files. On failure the current certificate stays.
func (k *KeyPair) Reload() error {
	cert, err := tls.LoadX509KeyPair(k.certFile, k.keyFile)
	if err != nil {
		return fmt.Errorf("tlsroots: load key pair: %w", err)
	}
	if cert.Leaf == nil && len(cert.Certificate) > 0 {
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return fmt.Errorf("tlsroots: parse leaf: %w", err)
		}
		cert.Leaf = leaf
	}

	k.cert.Store(&cert)
	k.logger.Info("certificate loaded",
		"cert_file", k.certFile,
		"subject", cert.Leaf.Subject.String(),
		"not_after", cert.Leaf.NotAfter.Format(time.RFC3339),
	)
	return nil
}

// Files returns the certificate and key paths.
func (k *KeyPair) Files() []string {
	return []string{k.certFile, k.keyFile}
}

// NotAfter returns the expiry of the current certificate.
func (k *KeyPair) NotAfter() time.Time {
	return k.cert.Load().Leaf.NotAfter
}

// GetCertificate implements tls.Config.GetCertificate.
func (k *KeyPair) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return k.cert.Load(), nil
}

// ServerConfig returns a server TLS configuration that always presents the
// current certificate.
func (k *KeyPair) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: k.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}
