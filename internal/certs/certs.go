// Package certs manages the TLS material used by local functional testing: a
// private root CA and the astronomer-tls and astronomer-private-ca
// certificates it signs.
package certs

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	certmanagerv1 "github.com/cert-manager/cert-manager/pkg/apis/certmanager/v1"
	"github.com/cert-manager/cert-manager/pkg/util/pki"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/astronomer/astronomer/internal/logging"
)

const (
	TLSCertFile       = "astronomer-tls.pem"
	TLSKeyFile        = "astronomer-tls.key"
	PrivateCACertFile = "astronomer-private-ca.pem"
	PrivateCAKeyFile  = "astronomer-private-ca.key"
	RootCACertFile    = "rootCA.pem"
	RootCAKeyFile     = "rootCA-key.pem"

	// DefaultDomain and its subdomains resolve to 127.0.0.1 from any DNS server.
	DefaultDomain = "localtest.me"
	// PrivateCAHost is the name the astronomer-private-ca certificate is issued for.
	PrivateCAHost = "server.example.org"

	// DefaultWindow is how close to expiry a certificate may get before
	// CleanupOld removes it.
	DefaultWindow = 4 * 7 * 24 * time.Hour

	rootDuration = 10 * 365 * 24 * time.Hour
	leafDuration = 825 * 24 * time.Hour
)

var (
	ErrExpired     = errors.New("certificate expired")
	ErrNotYetValid = errors.New("certificate not yet valid")
)

// DefaultDir is ~/.local/share/astronomer-software/certs.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "astronomer-software", "certs"), nil
}

// Validate checks that the first certificate in the PEM file at path is
// currently valid.
func Validate(path string) error {
	return ValidateAt(path, time.Now())
}

// ValidateAt checks the certificate at path against now.
func ValidateAt(path string, now time.Time) error {
	cert, err := readCertificate(path)
	if err != nil {
		return fmt.Errorf("certificate validation failed: %w", err)
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("%w on %s", ErrExpired, cert.NotAfter.UTC())
	}
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("%w until %s", ErrNotYetValid, cert.NotBefore.UTC())
	}
	return nil
}

func readCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return pki.DecodeX509CertificateBytes(data)
}

// CleanupOld removes the astronomer-tls and astronomer-private-ca
// certificates in dir, along with their keys, when they expire within window
// or cannot be parsed. dir is created when missing. The removed files are
// returned.
func CleanupOld(ctx context.Context, dir string, window time.Duration) ([]string, error) {
	log := logging.FromContext(ctx)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(window)
	var removed []string
	for _, pair := range [][2]string{{TLSCertFile, TLSKeyFile}, {PrivateCACertFile, PrivateCAKeyFile}} {
		certPath := filepath.Join(dir, pair[0])
		if _, err := os.Stat(certPath); err != nil {
			continue
		}

		reason := "expiring"
		cert, err := readCertificate(certPath)
		if err != nil {
			reason = "invalid"
		} else if cert.NotAfter.After(deadline) {
			continue
		}

		for _, name := range pair {
			path := filepath.Join(dir, name)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return removed, err
			}
			log.Info("removed certificate file", "path", path, "reason", reason)
			removed = append(removed, path)
		}
	}
	return removed, nil
}

// GenerateTLS writes the astronomer-tls certificate for domain and
// *.domain, with the root CA appended so the file holds the full chain.
// Existing certificates are kept.
func GenerateTLS(ctx context.Context, dir, domain string) error {
	if domain == "" {
		domain = DefaultDomain
	}
	return generateLeaf(ctx, dir, TLSCertFile, TLSKeyFile, []string{domain, "*." + domain}, true)
}

// GeneratePrivateCA writes the astronomer-private-ca certificate after
// removing expiring ones. Existing certificates are kept.
func GeneratePrivateCA(ctx context.Context, dir string) error {
	if _, err := CleanupOld(ctx, dir, DefaultWindow); err != nil {
		return err
	}
	return generateLeaf(ctx, dir, PrivateCACertFile, PrivateCAKeyFile, []string{PrivateCAHost}, false)
}

func generateLeaf(ctx context.Context, dir, certFile, keyFile string, dnsNames []string, withChain bool) error {
	log := logging.FromContext(ctx)
	certPath := filepath.Join(dir, certFile)
	keyPath := filepath.Join(dir, keyFile)
	if exists(certPath) && exists(keyPath) {
		log.Info("using existing certificates", "cert", certPath)
		return nil
	}

	rootCert, rootKey, err := LoadOrCreateRoot(dir)
	if err != nil {
		return err
	}

	crt := &certmanagerv1.Certificate{
		Spec: certmanagerv1.CertificateSpec{
			CommonName: dnsNames[0],
			DNSNames:   dnsNames,
			Duration:   &metav1.Duration{Duration: leafDuration},
			Subject:    &certmanagerv1.X509Subject{Organizations: []string{"astronomer development certificate"}},
			PrivateKey: &certmanagerv1.CertificatePrivateKey{
				Algorithm: certmanagerv1.ECDSAKeyAlgorithm,
				Size:      256,
				Encoding:  certmanagerv1.PKCS8,
			},
			Usages: []certmanagerv1.KeyUsage{
				certmanagerv1.UsageDigitalSignature,
				certmanagerv1.UsageKeyEncipherment,
				certmanagerv1.UsageServerAuth,
			},
		},
	}
	certPEM, keyPEM, err := issue(crt, rootCert, rootKey)
	if err != nil {
		return err
	}
	if withChain {
		rootPEM, err := pki.EncodeX509(rootCert)
		if err != nil {
			return err
		}
		certPEM = append(certPEM, rootPEM...)
	}

	if err := writeFiles(certPath, certPEM, keyPath, keyPEM); err != nil {
		return err
	}
	if err := Validate(certPath); err != nil {
		return fmt.Errorf("generated certificate is invalid: %w", err)
	}
	log.Info("certificate and key generated", "cert", certPath, "key", keyPath)
	return nil
}

// LoadOrCreateRoot returns the root CA kept in dir, creating it first when
// missing.
func LoadOrCreateRoot(dir string) (*x509.Certificate, crypto.Signer, error) {
	certPath := filepath.Join(dir, RootCACertFile)
	keyPath := filepath.Join(dir, RootCAKeyFile)

	if exists(certPath) && exists(keyPath) {
		cert, err := readCertificate(certPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read root CA: %w", err)
		}
		keyPEM, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, nil, err
		}
		key, err := pki.DecodePrivateKeyBytes(keyPEM)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read root CA key: %w", err)
		}
		return cert, key, nil
	}

	crt := &certmanagerv1.Certificate{
		Spec: certmanagerv1.CertificateSpec{
			CommonName: "astronomer development CA",
			IsCA:       true,
			Duration:   &metav1.Duration{Duration: rootDuration},
			Subject:    &certmanagerv1.X509Subject{Organizations: []string{"astronomer development CA"}},
			PrivateKey: &certmanagerv1.CertificatePrivateKey{
				Algorithm: certmanagerv1.ECDSAKeyAlgorithm,
				Size:      256,
				Encoding:  certmanagerv1.PKCS8,
			},
			Usages: []certmanagerv1.KeyUsage{
				certmanagerv1.UsageCertSign,
				certmanagerv1.UsageDigitalSignature,
			},
		},
	}
	certPEM, keyPEM, err := issue(crt, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	if err := writeFiles(certPath, certPEM, keyPath, keyPEM); err != nil {
		return nil, nil, err
	}
	return LoadOrCreateRoot(dir)
}

// issue signs crt with the issuer, or self-signs it when issuer is nil.
func issue(crt *certmanagerv1.Certificate, issuer *x509.Certificate, issuerKey crypto.Signer) ([]byte, []byte, error) {
	key, err := pki.GeneratePrivateKeyForCertificate(crt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}
	tmpl, err := pki.CertificateTemplateFromCertificate(crt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build certificate template: %w", err)
	}

	if issuer == nil {
		issuer, issuerKey = tmpl, key
	}
	certPEM, _, err := pki.SignCertificate(tmpl, issuer, key.Public(), issuerKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign certificate: %w", err)
	}
	keyPEM, err := pki.EncodePrivateKey(key, crt.Spec.PrivateKey.Encoding)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode key: %w", err)
	}
	return certPEM, keyPEM, nil
}

func writeFiles(certPath string, certPEM []byte, keyPath string, keyPEM []byte) error {
	if err := os.MkdirAll(filepath.Dir(certPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return err
	}
	return os.WriteFile(keyPath, keyPEM, 0o600)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
