// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package principal

import (
	"bytes"
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"hash/crc32"
	"strings"

	"github.com/pkg/errors"
)

const (
	// MaxLength is the maximum number of bytes in a principal.
	MaxLength = 29

	selfAuthenticatingTag = 0x02
	anonymousTag          = 0x04
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Principal is an opaque identifier of a caller or of a canister.
type Principal struct {
	raw []byte
}

// SelfAuthenticating derives the principal of the holder of the private key matching
// the given DER encoded public key.
func SelfAuthenticating(publicKeyDER []byte) Principal {
	h := sha256.Sum224(publicKeyDER)
	raw := make([]byte, 0, len(h)+1)
	raw = append(raw, h[:]...)
	raw = append(raw, selfAuthenticatingTag)
	return Principal{raw: raw}
}

// Anonymous returns the principal used by callers that do not sign.
func Anonymous() Principal {
	return Principal{raw: []byte{anonymousTag}}
}

// FromBytes wraps raw principal bytes.
func FromBytes(raw []byte) (Principal, error) {
	if len(raw) > MaxLength {
		return Principal{}, errors.Errorf("principal is %d bytes long, the maximum is %d", len(raw), MaxLength)
	}
	return Principal{raw: append([]byte(nil), raw...)}, nil
}

// FromText decodes the textual representation, validating its checksum and grouping.
func FromText(text string) (Principal, error) {
	ungrouped := strings.ReplaceAll(text, "-", "")
	decoded, err := encoding.DecodeString(strings.ToUpper(ungrouped))
	if err != nil {
		return Principal{}, errors.Wrapf(err, "principal [%s] is not base32 encoded", text)
	}
	if len(decoded) < crc32.Size {
		return Principal{}, errors.Errorf("principal [%s] is too short", text)
	}

	p, err := FromBytes(decoded[crc32.Size:])
	if err != nil {
		return Principal{}, err
	}
	if binary.BigEndian.Uint32(decoded[:crc32.Size]) != crc32.ChecksumIEEE(p.raw) {
		return Principal{}, errors.Errorf("principal [%s] has an invalid checksum", text)
	}
	if p.String() != text {
		return Principal{}, errors.Errorf("principal [%s] is not in its canonical textual form", text)
	}
	return p, nil
}

// MustFromText is FromText for well-known constants. It panics on error.
func MustFromText(text string) Principal {
	p, err := FromText(text)
	if err != nil {
		panic(err)
	}
	return p
}

// Bytes returns a copy of the raw principal bytes.
func (p Principal) Bytes() []byte {
	out := make([]byte, len(p.raw))
	copy(out, p.raw)
	return out
}

// Equal reports whether both principals have the same bytes.
func (p Principal) Equal(other Principal) bool {
	return bytes.Equal(p.raw, other.raw)
}

// IsSelfAuthenticating reports whether p was derived from a public key.
func (p Principal) IsSelfAuthenticating() bool {
	return len(p.raw) == sha256.Size224+1 && p.raw[len(p.raw)-1] == selfAuthenticatingTag
}

// String returns the textual form: base32 of checksum and bytes, lowercased and
// split in groups of five characters.
func (p Principal) String() string {
	buf := make([]byte, crc32.Size, crc32.Size+len(p.raw))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE(p.raw))
	buf = append(buf, p.raw...)

	enc := strings.ToLower(encoding.EncodeToString(buf))

	var sb strings.Builder
	for i, c := range enc {
		if i > 0 && i%5 == 0 {
			sb.WriteByte('-')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

// MarshalText implements encoding.TextMarshaler so principals serialize as text in JSON.
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Principal) UnmarshalText(text []byte) error {
	decoded, err := FromText(string(text))
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}
