// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// SignerOptions - crypto data location
type SignerOptions struct {
	KeyFilePath string
}

// Signer signs messages with a P-256 key. Signatures are the fixed-size concatenation r || s
// of two 32 byte big-endian scalars over the SHA-256 digest of the message.
type Signer interface {
	Sign(msgBytes []byte) ([]byte, error)
	PublicKey() *ecdsa.PublicKey
	// PublicKeyDER returns the DER SubjectPublicKeyInfo of the signing key.
	PublicKeyDER() ([]byte, error)
}

type signer struct {
	key *ecdsa.PrivateKey
}

// KeyLoader load private keys from given file path
type KeyLoader struct {
}

// Load key and returns instance, supports SEC1 EC and PKCS#8
// Based on crypto/tls/tls.go
func (k *KeyLoader) Load(keyPEMBlock []byte) (*ecdsa.PrivateKey, error) {
	var keyDERBlock *pem.Block
	for {
		keyDERBlock, keyPEMBlock = pem.Decode(keyPEMBlock)
		if keyDERBlock == nil {
			return nil, errors.New("failed to find private key block in pem file")
		}
		if keyDERBlock.Type == "PRIVATE KEY" || strings.HasSuffix(keyDERBlock.Type, " PRIVATE KEY") {
			break
		}
	}

	var key *ecdsa.PrivateKey
	if parsed, err := x509.ParsePKCS8PrivateKey(keyDERBlock.Bytes); err == nil {
		ecKey, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.Errorf("found unknown private key type (%T) in PKCS#8 wrapping", parsed)
		}
		key = ecKey
	} else {
		ecKey, err := x509.ParseECPrivateKey(keyDERBlock.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse private key")
		}
		key = ecKey
	}

	if key.Curve != elliptic.P256() {
		return nil, errors.Errorf("private key is on curve %s, only P-256 is supported", key.Curve.Params().Name)
	}
	return key, nil
}

func NewSigner(opt *SignerOptions) (Signer, error) {
	keyPEMBlock, err := os.ReadFile(opt.KeyFilePath)
	if err != nil {
		return nil, err
	}

	keyLoader := KeyLoader{}
	key, err := keyLoader.Load(keyPEMBlock)
	if err != nil {
		return nil, err
	}
	return NewSignerFromKey(key)
}

func NewSignerFromKey(key *ecdsa.PrivateKey) (Signer, error) {
	if key == nil || key.Curve != elliptic.P256() {
		return nil, errors.New("a P-256 private key is required")
	}
	return &signer{key: key}, nil
}

// GenerateKey creates a fresh P-256 key and returns it with its PEM encoding.
func GenerateKey() (*ecdsa.PrivateKey, []byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, err
	}
	return key, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

func (s *signer) Sign(msgBytes []byte) ([]byte, error) {
	h, err := ComputeSHA256Hash(msgBytes)
	if err != nil {
		return nil, err
	}

	r, sc, err := ecdsa.Sign(rand.Reader, s.key, h)
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	sc.FillBytes(sig[32:])
	return sig, nil
}

func (s *signer) PublicKey() *ecdsa.PublicKey {
	return &s.key.PublicKey
}

func (s *signer) PublicKeyDER() ([]byte, error) {
	return x509.MarshalPKIXPublicKey(&s.key.PublicKey)
}
