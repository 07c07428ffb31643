// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package certification

import (
	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/pkg/errors"
)

// DST is the domain separation tag used to hash messages onto G1.
const DST = "BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_NUL_"

// VerifyBLS checks a BLS12-381 signature in G1 (48 compressed bytes) over msg against a
// public key in G2 (96 compressed bytes).
func VerifyBLS(signature, publicKey, msg []byte) error {
	if len(signature) != bls12381.SizeOfG1AffineCompressed {
		return errors.Errorf("BLS signature is %d bytes long, expected %d", len(signature), bls12381.SizeOfG1AffineCompressed)
	}
	if len(publicKey) != bls12381.SizeOfG2AffineCompressed {
		return errors.Errorf("BLS public key is %d bytes long, expected %d", len(publicKey), bls12381.SizeOfG2AffineCompressed)
	}

	var sig bls12381.G1Affine
	if _, err := sig.SetBytes(signature); err != nil {
		return errors.Wrap(err, "error while decoding BLS signature")
	}
	var pk bls12381.G2Affine
	if _, err := pk.SetBytes(publicKey); err != nil {
		return errors.Wrap(err, "error while decoding BLS public key")
	}
	if pk.IsInfinity() {
		return errors.New("BLS public key is the point at infinity")
	}

	h, err := bls12381.HashToG1(msg, []byte(DST))
	if err != nil {
		return errors.Wrap(err, "error while hashing message to G1")
	}
	var negH bls12381.G1Affine
	negH.Neg(&h)

	_, _, _, g2Gen := bls12381.Generators()

	// e(sig, g2) * e(-H(m), pk) == 1
	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{sig, negH},
		[]bls12381.G2Affine{g2Gen, pk},
	)
	if err != nil {
		return errors.Wrap(err, "error while computing pairing")
	}
	if !ok {
		return errors.New("BLS signature verification failed")
	}
	return nil
}
