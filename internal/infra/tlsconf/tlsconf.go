package tlsconf

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io/fs"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

type Config struct {
	CertFile string
	KeyFile  string
	// Generate creates a self-signed pair when CertFile or KeyFile is missing.
	Generate bool
}

// LoadServerConfig loads the certificate pair, generating a development one first when allowed.
func LoadServerConfig(log logrus.FieldLogger, config ...Config) (*tls.Config, error) {
	var opt Config
	for _, cfg := range config {
		opt = cfg
	}
	if opt.CertFile == "" || opt.KeyFile == "" {
		return nil, errors.New("tls certificate and key files must be set")
	}

	if opt.Generate && (missing(opt.CertFile) || missing(opt.KeyFile)) {
		log.WithFields(logrus.Fields{"cert": opt.CertFile, "key": opt.KeyFile}).Info("Generating self-signed certificate")
		if err := GenerateSelfSigned(opt.CertFile, opt.KeyFile, localHosts()); err != nil {
			return nil, err
		}
	}

	cert, err := tls.LoadX509KeyPair(opt.CertFile, opt.KeyFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientConfig returns the client side TLS settings. insecure skips certificate verification,
// which a self-signed development server needs.
func ClientConfig(serverName string, insecure bool) *tls.Config {
	return &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: insecure,
		MinVersion:         tls.VersionTLS12,
	}
}

func missing(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}

// localHosts lists the names a development certificate should cover.
func localHosts() []string {
	hosts := []string{"localhost", "127.0.0.1"}
	if name, err := os.Hostname(); err == nil && name != "" {
		hosts = append(hosts, name)
		if addrs, err := net.LookupHost(name); err == nil {
			for _, addr := range addrs {
				if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil && !ip.IsLoopback() {
					hosts = append(hosts, addr)
				}
			}
		}
	}

	return hosts
}

// GenerateSelfSigned writes a one year RSA-2048 certificate for hosts and its private key as PEM files.
func GenerateSelfSigned(certFile, keyFile string, hosts []string) error {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return err
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return err
	}

	notBefore := time.Now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Country:            []string{"US"},
			Organization:       []string{"ByteBeats"},
			OrganizationalUnit: []string{"Development"},
			CommonName:         "localhost",
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return err
	}

	if err := writePEM(certFile, 0o644, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes}); err != nil {
		return err
	}

	return writePEM(keyFile, 0o600, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
}

func writePEM(path string, perm os.FileMode, block *pem.Block) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if err := pem.Encode(out, block); err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}
