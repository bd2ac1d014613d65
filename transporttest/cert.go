package transporttest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"time"
)

// subjectAltNameOID identifies the X.509 subjectAltName extension
// (RFC 5280 §4.2.1.6).
var subjectAltNameOID = asn1.ObjectIdentifier{2, 5, 29, 17}

// certLifetime is how long a generated test certificate stays valid. Long
// enough that no test run ever has to worry about expiry.
const certLifetime = 100 * 365 * 24 * time.Hour

// GenX509KeyPair builds a throwaway self-signed ECDSA certificate/key pair
// for domain, suitable as a TLS server certificate in nettransport tests.
func GenX509KeyPair(domain string) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	san, err := subjectAltNameExtension(domain)
	if err != nil {
		return tls.Certificate{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   domain,
			Organization: []string{"transporttest"},
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(certLifetime),
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:              []string{domain},
		ExtraExtensions:       []pkix.Extension{san},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}, nil
}

func subjectAltNameExtension(domain string) (pkix.Extension, error) {
	value, err := asn1.Marshal([]string{"dns:" + domain})
	if err != nil {
		return pkix.Extension{}, err
	}
	return pkix.Extension{Id: subjectAltNameOID, Value: value}, nil
}
