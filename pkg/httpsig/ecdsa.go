// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package httpsig

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"math/big"

	"github.com/pkg/errors"
)

// SignatureLength is the length of a fixed-size r || s P-256 signature.
const SignatureLength = 64

// ParsePublicKey decodes a P-256 public key given as an uncompressed SEC1 point, a compressed
// SEC1 point or a DER SubjectPublicKeyInfo.
func ParsePublicKey(b []byte) (*ecdsa.PublicKey, error) {
	curve := elliptic.P256()
	byteLen := (curve.Params().BitSize + 7) / 8

	switch {
	case len(b) == 1+2*byteLen && b[0] == 0x04:
		x, y := elliptic.Unmarshal(curve, b)
		if x == nil {
			return nil, newError(MalformedPublicKey, "uncompressed point is not on the P-256 curve")
		}
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil

	case len(b) == 1+byteLen && (b[0] == 0x02 || b[0] == 0x03):
		x, y := elliptic.UnmarshalCompressed(curve, b)
		if x == nil {
			return nil, newError(MalformedPublicKey, "compressed point is not on the P-256 curve")
		}
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
	}

	key, err := x509.ParsePKIXPublicKey(b)
	if err != nil {
		return nil, &Error{Kind: MalformedPublicKey, Detail: "public key is neither a SEC1 point nor DER encoded", Cause: err}
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, newError(MalformedPublicKey, "public key is not an ECDSA key")
	}
	if pub.Curve != elliptic.P256() {
		return nil, newError(MalformedPublicKey, "public key is not on the P-256 curve")
	}
	return pub, nil
}

// PublicKeyDER returns the DER SubjectPublicKeyInfo encoding of the key, from which the
// identity of a direct signer is derived.
func PublicKeyDER(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, errors.Wrap(err, "error while encoding public key")
	}
	return der, nil
}

// VerifyECDSA checks a fixed-size r || s signature over SHA-256(payload).
func VerifyECDSA(payload, signature []byte, pub *ecdsa.PublicKey) error {
	if len(signature) != SignatureLength {
		return newError(MalformedSignatureEncoding, "signature must be 64 bytes long")
	}

	n := pub.Curve.Params().N
	r := new(big.Int).SetBytes(signature[:SignatureLength/2])
	s := new(big.Int).SetBytes(signature[SignatureLength/2:])
	if r.Sign() == 0 || s.Sign() == 0 || r.Cmp(n) >= 0 || s.Cmp(n) >= 0 {
		return newError(MalformedSignatureEncoding, "signature scalars are out of range")
	}

	digest := sha256.Sum256(payload)
	if !ecdsa.Verify(pub, digest[:], r, s) {
		return newError(SignatureVerificationFailed, "signature does not match the request")
	}
	return nil
}
