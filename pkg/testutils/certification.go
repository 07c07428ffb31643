// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package testutils

import (
	"crypto/rand"
	"crypto/sha256"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/fxamacker/cbor/v2"
	"github.com/hyperledger-labs/orion-httpauth/pkg/certification"
	"github.com/hyperledger-labs/orion-httpauth/pkg/principal"
	"github.com/hyperledger-labs/orion-httpauth/pkg/rootkey"
	"github.com/pkg/errors"
)

// BLSKey is a BLS12-381 key pair signing in G1 with public keys in G2, the scheme used to
// sign certificates.
type BLSKey struct {
	secret    *big.Int
	publicKey []byte
}

func GenerateBLSKey() (*BLSKey, error) {
	var secret *big.Int
	for secret == nil || secret.Sign() == 0 {
		s, err := rand.Int(rand.Reader, fr.Modulus())
		if err != nil {
			return nil, err
		}
		secret = s
	}

	_, _, _, g2 := bls12381.Generators()
	var pk bls12381.G2Affine
	pk.ScalarMultiplication(&g2, secret)
	pkBytes := pk.Bytes()

	return &BLSKey{secret: secret, publicKey: pkBytes[:]}, nil
}

// PublicKey returns the raw 96 byte public key.
func (k *BLSKey) PublicKey() rootkey.RootKey {
	return append(rootkey.RootKey{}, k.publicKey...)
}

// DER returns the public key in the DER envelope used for root and subnet keys.
func (k *BLSKey) DER() []byte {
	der, err := rootkey.Envelope(k.publicKey)
	if err != nil {
		panic(err)
	}
	return der
}

// Sign returns the 48 byte compressed G1 signature over msg.
func (k *BLSKey) Sign(msg []byte) ([]byte, error) {
	h, err := bls12381.HashToG1(msg, []byte(certification.DST))
	if err != nil {
		return nil, err
	}
	var sig bls12381.G1Affine
	sig.ScalarMultiplication(&h, k.secret)
	b := sig.Bytes()
	return b[:], nil
}

// SignCertificate builds a CBOR certificate over tree signed by k.
func (k *BLSKey) SignCertificate(tree *certification.HashTree, delegation *certification.Delegation) ([]byte, error) {
	root := tree.Digest()
	msg := append([]byte{byte(len("ic-state-root"))}, "ic-state-root"...)
	msg = append(msg, root[:]...)

	sig, err := k.Sign(msg)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(&certification.Certificate{
		Tree:       *tree,
		Signature:  sig,
		Delegation: delegation,
	})
}

// CanisterSigner produces canister signatures the way a canister certifying data would.
// When Subnet is set, certificates are signed by the subnet and carry a delegation from Root.
type CanisterSigner struct {
	Root       *BLSKey
	Subnet     *BLSKey
	SubnetID   []byte
	CanisterID principal.Principal
	Seed       []byte
	// CanisterRanges overrides the ranges the subnet delegation covers. By default the
	// range holds only the signing canister.
	CanisterRanges [][2][]byte
}

// PublicKey returns the canister signature public key of the signer.
func (s *CanisterSigner) PublicKey() *certification.CanisterSigPublicKey {
	return &certification.CanisterSigPublicKey{
		CanisterID: s.CanisterID,
		Seed:       s.Seed,
	}
}

// PublicKeyDER returns the DER encoding of the canister signature public key.
func (s *CanisterSigner) PublicKeyDER() []byte {
	der, err := s.PublicKey().DER()
	if err != nil {
		panic(err)
	}
	return der
}

type canisterSignature struct {
	Certificate []byte                  `cbor:"certificate"`
	Tree        *certification.HashTree `cbor:"tree"`
}

// Sign certifies message and returns the CBOR encoded canister signature, prefixed with the
// self-describing CBOR tag.
func (s *CanisterSigner) Sign(message []byte) ([]byte, error) {
	seedHash := sha256.Sum256(s.Seed)
	msgHash := sha256.Sum256(message)
	sigTree := certification.NewLabeled([]byte("sig"),
		certification.NewLabeled(seedHash[:],
			certification.NewLabeled(msgHash[:], certification.NewLeaf([]byte{}))))

	certified := sigTree.Digest()
	certTree := certification.NewFork(
		certification.NewLabeled([]byte("canister"),
			certification.NewLabeled(s.CanisterID.Bytes(),
				certification.NewLabeled([]byte("certified_data"), certification.NewLeaf(certified[:])))),
		certification.NewLabeled([]byte("time"), certification.NewLeaf([]byte{0x01})),
	)

	var cert []byte
	var err error
	if s.Subnet == nil {
		cert, err = s.Root.SignCertificate(certTree, nil)
	} else {
		var delegation *certification.Delegation
		delegation, err = s.subnetDelegation()
		if err != nil {
			return nil, err
		}
		cert, err = s.Subnet.SignCertificate(certTree, delegation)
	}
	if err != nil {
		return nil, err
	}

	body, err := cbor.Marshal(&canisterSignature{Certificate: cert, Tree: sigTree})
	if err != nil {
		return nil, err
	}
	return append([]byte{0xd9, 0xd9, 0xf7}, body...), nil
}

func (s *CanisterSigner) subnetDelegation() (*certification.Delegation, error) {
	if len(s.SubnetID) == 0 {
		return nil, errors.New("subnet id is not set")
	}

	ranges := s.CanisterRanges
	if ranges == nil {
		id := s.CanisterID.Bytes()
		ranges = [][2][]byte{{id, id}}
	}
	encodedRanges, err := cbor.Marshal(ranges)
	if err != nil {
		return nil, err
	}

	tree := certification.NewLabeled([]byte("subnet"),
		certification.NewLabeled(s.SubnetID,
			certification.NewFork(
				certification.NewLabeled([]byte("canister_ranges"), certification.NewLeaf(encodedRanges)),
				certification.NewLabeled([]byte("public_key"), certification.NewLeaf(s.Subnet.DER())),
			)))

	cert, err := s.Root.SignCertificate(tree, nil)
	if err != nil {
		return nil, err
	}
	return &certification.Delegation{SubnetID: s.SubnetID, Certificate: cert}, nil
}
