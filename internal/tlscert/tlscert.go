// Package tlscert builds the certificate material for Global Secure
// Access TLS inspection onboarding: a self-signed root CA and a leaf
// certificate signed against a CSR.
package tlscert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// SignedChain is the outcome of signing: both PEMs are ready for the
// Graph certificate upload.
type SignedChain struct {
	// CertificatePEM is the signed leaf certificate.
	CertificatePEM string
	// RootCAPEM is the self-signed CA that issued the leaf.
	RootCAPEM string
}

// SignCSR creates a fresh self-signed root CA and uses it to sign csr.
// csr may be PEM, raw base64 DER, or empty; when empty a local 2048-bit
// key and CSR are generated with the given subject fields.
func SignCSR(csr, commonName, organizationName string) (*SignedChain, error) {
	caKey, err := rsa.GenerateKey(rand.Reader, 4096)
	if err != nil {
		return nil, fmt.Errorf("generate CA key: %w", err)
	}

	caTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixMilli()),
		Subject: pkix.Name{
			Country:      []string{"US"},
			Organization: []string{"Self Signed"},
			CommonName:   "Self Signed Root CA",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}

	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("create CA certificate: %w", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		return nil, fmt.Errorf("parse CA certificate: %w", err)
	}

	req, err := parseOrGenerateCSR(csr, commonName, organizationName)
	if err != nil {
		return nil, err
	}

	leafTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixMilli()),
		Subject:               req.Subject,
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:              req.DNSNames,
		IPAddresses:           req.IPAddresses,
	}

	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, caCert, req.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("sign leaf certificate: %w", err)
	}

	return &SignedChain{
		CertificatePEM: encodePEM(leafDER),
		RootCAPEM:      encodePEM(caDER),
	}, nil
}

// parseOrGenerateCSR accepts a PEM or base64 DER certificate request,
// or builds one locally when csr is empty.
func parseOrGenerateCSR(csr, commonName, organizationName string) (*x509.CertificateRequest, error) {
	if csr == "" {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("generate leaf key: %w", err)
		}
		template := &x509.CertificateRequest{
			Subject: pkix.Name{
				Country:      []string{"US"},
				Organization: []string{organizationName},
				CommonName:   commonName,
			},
			DNSNames: []string{"*.example.com", "example.com"},
		}
		der, err := x509.CreateCertificateRequest(rand.Reader, template, key)
		if err != nil {
			return nil, fmt.Errorf("create certificate request: %w", err)
		}
		return x509.ParseCertificateRequest(der)
	}

	normalized := strings.ReplaceAll(strings.ReplaceAll(csr, "\r\n", "\n"), "\r", "\n")
	if strings.Contains(normalized, "BEGIN CERTIFICATE REQUEST") {
		block, _ := pem.Decode([]byte(normalized))
		if block == nil {
			return nil, errors.New("could not decode CSR PEM")
		}
		return x509.ParseCertificateRequest(block.Bytes)
	}

	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(normalized))
	if err != nil {
		return nil, errors.New("could not decode CSR")
	}
	return x509.ParseCertificateRequest(der)
}

func encodePEM(der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}
