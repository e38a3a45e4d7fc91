package certs

import (
	"context"
	"crypto/x509"
	"os"
	"path/filepath"
	"time"

	certmanagerv1 "github.com/cert-manager/cert-manager/pkg/apis/certmanager/v1"
	"github.com/cert-manager/cert-manager/pkg/util/pki"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// writeCert writes a self-signed certificate valid between notBefore and notAfter.
func writeCert(path string, notBefore, notAfter time.Time) {
	crt := &certmanagerv1.Certificate{
		Spec: certmanagerv1.CertificateSpec{
			CommonName: "test.example.com",
			DNSNames:   []string{"test.example.com"},
			PrivateKey: &certmanagerv1.CertificatePrivateKey{Algorithm: certmanagerv1.ECDSAKeyAlgorithm, Size: 256},
		},
	}
	key, err := pki.GeneratePrivateKeyForCertificate(crt)
	Expect(err).NotTo(HaveOccurred())
	tmpl, err := pki.CertificateTemplateFromCertificate(crt)
	Expect(err).NotTo(HaveOccurred())
	tmpl.NotBefore = notBefore
	tmpl.NotAfter = notAfter

	certPEM, _, err := pki.SignCertificate(tmpl, tmpl, key.Public(), key)
	Expect(err).NotTo(HaveOccurred())
	Expect(os.WriteFile(path, certPEM, 0o644)).To(Succeed())
}

var _ = Describe("Validate", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("should accept a current certificate", func() {
		path := filepath.Join(dir, "ok.pem")
		writeCert(path, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
		Expect(Validate(path)).To(Succeed())
	})

	It("should reject an expired certificate", func() {
		path := filepath.Join(dir, "old.pem")
		writeCert(path, time.Now().Add(-48*time.Hour), time.Now().Add(-24*time.Hour))
		err := Validate(path)
		Expect(err).To(MatchError(ErrExpired))
		Expect(err.Error()).To(HavePrefix("certificate expired on "))
	})

	It("should reject a certificate that is not valid yet", func() {
		path := filepath.Join(dir, "future.pem")
		writeCert(path, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
		Expect(ValidateAt(path, time.Now().Add(-24*time.Hour))).To(MatchError(ErrNotYetValid))
	})

	It("should report unreadable certificates", func() {
		path := filepath.Join(dir, "garbage.pem")
		Expect(os.WriteFile(path, []byte("not a certificate"), 0o644)).To(Succeed())
		Expect(Validate(path)).To(MatchError(HavePrefix("certificate validation failed")))
	})
})

var _ = Describe("CleanupOld", func() {
	var (
		ctx context.Context
		dir string
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
	})

	touch := func(name string) {
		Expect(os.WriteFile(filepath.Join(dir, name), []byte("key"), 0o600)).To(Succeed())
	}

	It("should create a missing directory", func() {
		missing := filepath.Join(dir, "nested", "certs")
		removed, err := CleanupOld(ctx, missing, DefaultWindow)
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(BeEmpty())
		Expect(missing).To(BeADirectory())
	})

	It("should remove certificates expiring within the window with their keys", func() {
		writeCert(filepath.Join(dir, TLSCertFile), time.Now().Add(-time.Hour), time.Now().Add(7*24*time.Hour))
		touch(TLSKeyFile)
		writeCert(filepath.Join(dir, PrivateCACertFile), time.Now().Add(-time.Hour), time.Now().Add(365*24*time.Hour))
		touch(PrivateCAKeyFile)

		removed, err := CleanupOld(ctx, dir, DefaultWindow)
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(ConsistOf(filepath.Join(dir, TLSCertFile), filepath.Join(dir, TLSKeyFile)))
		Expect(filepath.Join(dir, TLSCertFile)).NotTo(BeAnExistingFile())
		Expect(filepath.Join(dir, PrivateCACertFile)).To(BeAnExistingFile())
		Expect(filepath.Join(dir, PrivateCAKeyFile)).To(BeAnExistingFile())
	})

	It("should remove unparsable certificates", func() {
		Expect(os.WriteFile(filepath.Join(dir, PrivateCACertFile), []byte("junk"), 0o644)).To(Succeed())

		removed, err := CleanupOld(ctx, dir, DefaultWindow)
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(ContainElement(filepath.Join(dir, PrivateCACertFile)))
		Expect(filepath.Join(dir, PrivateCACertFile)).NotTo(BeAnExistingFile())
	})
})

var _ = Describe("generation", func() {
	var (
		ctx context.Context
		dir string
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
	})

	It("should issue a wildcard certificate chained to the root CA", func() {
		Expect(GenerateTLS(ctx, dir, "")).To(Succeed())

		data, err := os.ReadFile(filepath.Join(dir, TLSCertFile))
		Expect(err).NotTo(HaveOccurred())
		chain, err := pki.DecodeX509CertificateChainBytes(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(chain).To(HaveLen(2))

		leaf := chain[0]
		Expect(leaf.DNSNames).To(ConsistOf("localtest.me", "*.localtest.me"))
		Expect(leaf.IsCA).To(BeFalse())

		root, _, err := LoadOrCreateRoot(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(root.IsCA).To(BeTrue())
		Expect(chain[1].Equal(root)).To(BeTrue())

		pool := x509.NewCertPool()
		pool.AddCert(root)
		_, err = leaf.Verify(x509.VerifyOptions{
			DNSName:   "houston.localtest.me",
			Roots:     pool,
			KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(filepath.Join(dir, TLSKeyFile)).To(BeAnExistingFile())
	})

	It("should keep existing certificates", func() {
		Expect(GenerateTLS(ctx, dir, "example.test")).To(Succeed())
		before, err := os.ReadFile(filepath.Join(dir, TLSCertFile))
		Expect(err).NotTo(HaveOccurred())

		Expect(GenerateTLS(ctx, dir, "example.test")).To(Succeed())
		after, err := os.ReadFile(filepath.Join(dir, TLSCertFile))
		Expect(err).NotTo(HaveOccurred())
		Expect(after).To(Equal(before))
	})

	It("should sign the private CA certificate with the same root", func() {
		Expect(GenerateTLS(ctx, dir, "")).To(Succeed())
		Expect(GeneratePrivateCA(ctx, dir)).To(Succeed())

		data, err := os.ReadFile(filepath.Join(dir, PrivateCACertFile))
		Expect(err).NotTo(HaveOccurred())
		cert, err := pki.DecodeX509CertificateBytes(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(cert.DNSNames).To(ConsistOf(PrivateCAHost))

		root, _, err := LoadOrCreateRoot(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(cert.CheckSignatureFrom(root)).To(Succeed())
	})
})
