package proto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/Tnze/go-mc/net/CFB8"
)

// SharedSecretSize is the AES key length for the login stream cipher.
const SharedSecretSize = 16

// NewSharedSecret returns a fresh 16-byte login shared secret.
func NewSharedSecret() ([]byte, error) {
	secret := make([]byte, SharedSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate shared secret: %w", err)
	}
	return secret, nil
}

// CipherStreams returns the encrypt and decrypt AES/CFB8 streams for a
// shared secret. This protocol revision uses the secret as the IV as well.
func CipherStreams(secret []byte) (encrypt, decrypt cipher.Stream, err error) {
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, nil, fmt.Errorf("aes cipher: %w", err)
	}
	return CFB8.NewCFB8Encrypt(block, secret), CFB8.NewCFB8Decrypt(block, secret), nil
}

// AuthDigest computes the session-server hash of the encryption handshake:
// SHA-1 over serverID || secret || publicKey rendered as signed
// two's-complement hex with leading zeroes stripped.
func AuthDigest(serverID string, secret, publicKey []byte) string {
	h := sha1.New()
	io.WriteString(h, serverID)
	h.Write(secret)
	h.Write(publicKey)
	sum := h.Sum(nil)

	negative := sum[0]&0x80 != 0
	if negative {
		// Two's complement of the big-endian integer.
		carry := true
		for i := len(sum) - 1; i >= 0; i-- {
			sum[i] = ^sum[i]
			if carry {
				sum[i]++
				carry = sum[i] == 0
			}
		}
	}
	digest := strings.TrimLeft(hex.EncodeToString(sum), "0")
	if digest == "" {
		digest = "0"
	}
	if negative {
		digest = "-" + digest
	}
	return digest
}

// EncryptLoginPayload encrypts the shared secret and verify token with the
// server's DER-encoded public key for the EncryptionResponse packet.
func EncryptLoginPayload(publicKeyDER, secret, verifyToken []byte) (encSecret, encToken []byte, err error) {
	key, err := x509.ParsePKIXPublicKey(publicKeyDER)
	if err != nil {
		return nil, nil, fmt.Errorf("parse server public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("server public key is %T, not RSA", key)
	}
	encSecret, err = rsa.EncryptPKCS1v15(rand.Reader, rsaKey, secret)
	if err != nil {
		return nil, nil, fmt.Errorf("encrypt shared secret: %w", err)
	}
	encToken, err = rsa.EncryptPKCS1v15(rand.Reader, rsaKey, verifyToken)
	if err != nil {
		return nil, nil, fmt.Errorf("encrypt verify token: %w", err)
	}
	return encSecret, encToken, nil
}

// ServerKeyPair is the RSA key the downstream listener presents during its
// own encryption handshake.
type ServerKeyPair struct {
	Private *rsa.PrivateKey
	Public  []byte // PKIX DER
}

// NewServerKeyPair generates the listener keypair. 1024 bits matches what
// vanilla servers of this revision present.
func NewServerKeyPair() (*ServerKeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return &ServerKeyPair{Private: key, Public: der}, nil
}

// Decrypt opens an RSA-encrypted login payload (shared secret or verify
// token) sent by a downstream client.
func (k *ServerKeyPair) Decrypt(payload []byte) ([]byte, error) {
	out, err := rsa.DecryptPKCS1v15(rand.Reader, k.Private, payload)
	if err != nil {
		return nil, fmt.Errorf("rsa decrypt: %w", err)
	}
	return out, nil
}
