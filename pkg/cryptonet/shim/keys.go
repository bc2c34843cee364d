package shim

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cloudflare/circl/hpke"
	"github.com/cloudflare/circl/kem"
	"golang.org/x/crypto/hkdf"
)

const seedSize = 32

var (
	suite     = hpke.NewSuite(hpke.KEM_X25519_HKDF_SHA256, hpke.KDF_HKDF_SHA256, hpke.AEAD_ChaCha20Poly1305)
	kemScheme = hpke.KEM_X25519_HKDF_SHA256.Scheme()

	embeddingInfo = []byte("privid-shim embedding v1")
	payloadInfo   = []byte("privid-shim payload v1")
)

var errSealed = errors.New("shim: sealed value is malformed")

// keyring holds the library key pair embeddings are sealed under. It is
// derived from a seed kept in the working directory so embeddings survive a
// restart.
type keyring struct {
	pub  kem.PublicKey
	priv kem.PrivateKey
}

func loadKeyring(workDir string) (*keyring, error) {
	dir := filepath.Join(workDir, "shim")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "seed")
	seed, err := os.ReadFile(path)
	switch {
	case err == nil && len(seed) != seedSize:
		return nil, fmt.Errorf("shim: seed file %s has %d bytes, want %d", path, len(seed), seedSize)
	case os.IsNotExist(err):
		seed = make([]byte, seedSize)
		if _, err := io.ReadFull(rand.Reader, seed); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, seed, 0o600); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	ikm := make([]byte, kemScheme.SeedSize())
	if _, err := io.ReadFull(hkdf.New(sha256.New, seed, nil, embeddingInfo), ikm); err != nil {
		return nil, err
	}
	pub, priv := kemScheme.DeriveKeyPair(ikm)
	return &keyring{pub: pub, priv: priv}, nil
}

// seal encrypts plaintext to pub and returns base64(enc || ciphertext).
func seal(pub kem.PublicKey, info, plaintext []byte) (enc, ct []byte, err error) {
	sender, err := suite.NewSender(pub, info)
	if err != nil {
		return nil, nil, err
	}
	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	ct, err = sealer.Seal(plaintext, nil)
	if err != nil {
		return nil, nil, err
	}
	return enc, ct, nil
}

func open(priv kem.PrivateKey, info, enc, ct []byte) ([]byte, error) {
	receiver, err := suite.NewReceiver(priv, info)
	if err != nil {
		return nil, err
	}
	opener, err := receiver.Setup(enc)
	if err != nil {
		return nil, errSealed
	}
	pt, err := opener.Open(ct, nil)
	if err != nil {
		return nil, errSealed
	}
	return pt, nil
}

func (k *keyring) sealEmbedding(plaintext []byte) (string, error) {
	enc, ct, err := seal(k.pub, embeddingInfo, plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(append(enc, ct...)), nil
}

func (k *keyring) openEmbedding(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errSealed
	}
	n := kemScheme.CiphertextSize()
	if len(raw) <= n {
		return nil, errSealed
	}
	return open(k.priv, embeddingInfo, raw[:n], raw[n:])
}

// payloadKey is the per-session key pair encrypt_payload seals under.
type payloadKey struct {
	pub  kem.PublicKey
	priv kem.PrivateKey
}

func newPayloadKey() (*payloadKey, error) {
	pub, priv, err := kemScheme.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &payloadKey{pub: pub, priv: priv}, nil
}

func (p *payloadKey) publicBytes() ([]byte, error) {
	return p.pub.MarshalBinary()
}
