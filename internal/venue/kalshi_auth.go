package venue

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// kalshi_auth.go - подпись запросов Kalshi (RSA-PSS + SHA-256)
//
// Grounded on Agentchow-HFTKalshiGo/internal/adapters/kalshi_auth/signer.go.
// Отличие: ключ приходит расшифрованным PEM-блоком из конфигурации (AES-256-GCM
// через pkg/crypto, ключ хранится в KALSHI_PRIVATE_KEY как ciphertext), а не
// читается с диска.

type kalshiSigner struct {
	keyID      string
	privateKey *rsa.PrivateKey
}

// newKalshiSigner parses an RSA private key from decrypted PEM bytes.
// Returns (nil, nil) when keyID or pemData is empty, allowing the venue to
// run in market-discovery-only mode without trading credentials.
func newKalshiSigner(keyID string, pemData []byte) (*kalshiSigner, error) {
	if keyID == "" || len(pemData) == 0 {
		return nil, nil
	}

	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("kalshi: no PEM block found in private key")
	}

	var rsaKey *rsa.PrivateKey
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		ok := false
		rsaKey, ok = parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("kalshi: key is not RSA (got %T)", parsed)
		}
	} else if pk1, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		rsaKey = pk1
	} else {
		return nil, fmt.Errorf("kalshi: private key is not PKCS#8 or PKCS#1")
	}

	return &kalshiSigner{keyID: keyID, privateKey: rsaKey}, nil
}

// SignRequest sets the KALSHI-ACCESS-* headers on req. No-op when s is nil.
func (s *kalshiSigner) SignRequest(req *http.Request) error {
	if s == nil {
		return nil
	}
	ts, sig, err := s.sign(req.Method, req.URL.Path)
	if err != nil {
		return err
	}
	req.Header.Set("KALSHI-ACCESS-KEY", s.keyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", sig)
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

// Headers returns auth headers for a WebSocket dial. Returns nil when s is
// nil.
func (s *kalshiSigner) Headers(method, path string) http.Header {
	if s == nil {
		return nil
	}
	ts, sig, err := s.sign(method, path)
	if err != nil {
		return nil
	}
	h := http.Header{}
	h.Set("KALSHI-ACCESS-KEY", s.keyID)
	h.Set("KALSHI-ACCESS-SIGNATURE", sig)
	h.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return h
}

// Enabled reports whether this signer has credentials loaded.
func (s *kalshiSigner) Enabled() bool {
	return s != nil && s.keyID != ""
}

func (s *kalshiSigner) sign(method, path string) (timestamp, signature string, err error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	message := ts + method + path

	hash := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPSS(rand.Reader, s.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", "", fmt.Errorf("rsa sign pss: %w", err)
	}
	return ts, base64.StdEncoding.EncodeToString(sig), nil
}
