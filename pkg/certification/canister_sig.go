// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package certification

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509/pkix"
	"encoding/asn1"

	"github.com/hyperledger-labs/orion-httpauth/pkg/principal"
	"github.com/hyperledger-labs/orion-httpauth/pkg/rootkey"
	"github.com/pkg/errors"
)

// CanisterSigOID identifies canister signature public keys.
var CanisterSigOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 56387, 1, 2}

type subjectPublicKeyInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

// CanisterSigPublicKey is the public key of a signature produced by a canister through
// certified data. It names the canister and the seed the canister signs under.
type CanisterSigPublicKey struct {
	CanisterID principal.Principal
	Seed       []byte
}

// ParseCanisterSigPublicKey decodes a DER SubjectPublicKeyInfo carrying a canister
// signature public key.
func ParseCanisterSigPublicKey(der []byte) (*CanisterSigPublicKey, error) {
	var spki subjectPublicKeyInfo
	rest, err := asn1.Unmarshal(der, &spki)
	if err != nil {
		return nil, errors.Wrap(err, "canister signature public key is not a DER SubjectPublicKeyInfo")
	}
	if len(rest) > 0 {
		return nil, errors.Errorf("canister signature public key has %d trailing bytes", len(rest))
	}
	if !spki.Algorithm.Algorithm.Equal(CanisterSigOID) {
		return nil, errors.Errorf("unexpected public key algorithm %s, expected %s", spki.Algorithm.Algorithm, CanisterSigOID)
	}
	if spki.PublicKey.BitLength%8 != 0 {
		return nil, errors.New("canister signature public key is not a whole number of bytes")
	}

	body := spki.PublicKey.Bytes
	if len(body) == 0 {
		return nil, errors.New("canister signature public key is empty")
	}
	idLen := int(body[0])
	if len(body) < 1+idLen {
		return nil, errors.Errorf("canister id length %d exceeds the public key length", idLen)
	}

	id, err := principal.FromBytes(body[1 : 1+idLen])
	if err != nil {
		return nil, errors.WithMessage(err, "invalid canister id")
	}
	return &CanisterSigPublicKey{
		CanisterID: id,
		Seed:       append([]byte{}, body[1+idLen:]...),
	}, nil
}

// DER encodes the key as a SubjectPublicKeyInfo.
func (k *CanisterSigPublicKey) DER() ([]byte, error) {
	id := k.CanisterID.Bytes()
	body := make([]byte, 0, 1+len(id)+len(k.Seed))
	body = append(body, byte(len(id)))
	body = append(body, id...)
	body = append(body, k.Seed...)

	return asn1.Marshal(subjectPublicKeyInfo{
		Algorithm: pkix.AlgorithmIdentifier{Algorithm: CanisterSigOID},
		PublicKey: asn1.BitString{Bytes: body, BitLength: 8 * len(body)},
	})
}

type canisterSignature struct {
	Certificate []byte   `cbor:"certificate"`
	Tree        HashTree `cbor:"tree"`
}

// VerifyCanisterSig checks that the canister named by the public key certified the message
// under the key's seed, with the certificate chaining up to the root key.
func VerifyCanisterSig(message, signature []byte, publicKey *CanisterSigPublicKey, rootKey rootkey.RootKey) error {
	var sig canisterSignature
	if err := decMode.Unmarshal(bytes.TrimPrefix(signature, selfDescribingTag), &sig); err != nil {
		return errors.Wrap(err, "error while decoding canister signature")
	}

	cert, err := ParseCertificate(sig.Certificate)
	if err != nil {
		return err
	}
	if err := cert.Verify(rootKey, publicKey.CanisterID); err != nil {
		return err
	}

	certified, status := cert.Lookup([]byte("canister"), publicKey.CanisterID.Bytes(), []byte("certified_data"))
	if status != Found {
		return errors.Errorf("certified data of canister %s is %s in the certificate", publicKey.CanisterID, status)
	}
	digest := sig.Tree.Digest()
	if !bytes.Equal(certified, digest[:]) {
		return errors.New("signature tree does not match the certified data of the canister")
	}

	seedHash := sha256.Sum256(publicKey.Seed)
	msgHash := sha256.Sum256(message)
	if _, status := sig.Tree.Lookup([]byte("sig"), seedHash[:], msgHash[:]); status != Found {
		return errors.Errorf("message signature is %s in the signature tree", status)
	}
	return nil
}
