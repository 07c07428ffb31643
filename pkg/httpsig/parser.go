// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package httpsig

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperledger-labs/orion-httpauth/pkg/delegation"
	"github.com/pkg/errors"
)

const (
	SignatureHeader      = "signature"
	SignatureInputHeader = "signature-input"
	SignatureKeyHeader   = "signature-key"
)

// Signature is the decoded value of the signature header.
type Signature struct {
	Label string
	Bytes []byte
}

// SignatureInput is the decoded value of the signature-input header.
type SignatureInput struct {
	Label string
	// Raw is the whole header value. It is signed verbatim.
	Raw string
	// Components lists the covered components in signing order.
	Components []string
	// Params holds the parameters that follow the component list, starting with ';'.
	// They are not interpreted.
	Params string
}

// KeyHeader is the JSON document carried by the signature-key header.
type KeyHeader struct {
	PubKey          delegation.Blob   `json:"pubKey"`
	DelegationChain *delegation.Chain `json:"delegationChain,omitempty"`
}

// SignatureKey is the decoded value of the signature-key header.
type SignatureKey struct {
	Label string
	KeyHeader
}

// ParseSignature decodes a value shaped label=:base64:.
func ParseSignature(value string) (*Signature, error) {
	label, body, err := parseByteSequence(value)
	if err != nil {
		return nil, malformed(MalformedSignature, StageGrammar, err.Error(), nil)
	}
	sig, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, malformed(MalformedSignature, StageBase64, "signature is not unpadded URL-safe base64", err)
	}
	return &Signature{Label: label, Bytes: sig}, nil
}

// ParseSignatureKey decodes a value shaped label=:base64: whose body is a JSON KeyHeader.
func ParseSignatureKey(value string) (*SignatureKey, error) {
	label, body, err := parseByteSequence(value)
	if err != nil {
		return nil, malformed(MalformedSignatureKey, StageGrammar, err.Error(), nil)
	}
	doc, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, malformed(MalformedSignatureKey, StageBase64, "signature key is not unpadded URL-safe base64", err)
	}

	key := &SignatureKey{Label: label}
	if err := json.Unmarshal(doc, &key.KeyHeader); err != nil {
		return nil, malformed(MalformedSignatureKey, StageJSON, "signature key is not a valid JSON document", err)
	}
	return key, nil
}

// ParseSignatureInput decodes a value shaped label=("c1" "c2" ...)params.
func ParseSignatureInput(value string) (*SignatureInput, error) {
	fail := func(format string, args ...interface{}) (*SignatureInput, error) {
		return nil, malformed(MalformedSignatureInput, StageGrammar, fmt.Sprintf(format, args...), nil)
	}

	s := &scanner{in: value}
	s.skipWhitespace()
	label := s.key()
	if label == "" {
		return fail("expected a label at offset %d", s.pos)
	}
	if !s.consume('=') {
		return fail("expected '=' after label %q", label)
	}
	s.skipWhitespace()
	if !s.consume('(') {
		return fail("expected '(' at offset %d", s.pos)
	}

	var components []string
	for {
		s.skipWhitespace()
		if s.consume(')') {
			break
		}
		if s.done() {
			return fail("component list is not terminated by ')'")
		}
		if !s.consume('"') {
			return fail("expected a quoted component at offset %d", s.pos)
		}
		quoted, ok := s.until('"')
		if !ok {
			return fail("component starting at offset %d is not terminated by '\"'", s.pos)
		}
		component := strings.TrimSpace(quoted)
		if component == "" {
			return fail("empty component in the component list")
		}
		components = append(components, component)

		if !s.done() && !s.atWhitespace() && s.peek() != ')' {
			return fail("expected whitespace or ')' after component %q", component)
		}
	}

	params := s.rest()
	if strings.TrimSpace(params) != "" && !strings.HasPrefix(params, ";") {
		return fail("unexpected %q after the component list", params)
	}

	return &SignatureInput{
		Label:      label,
		Raw:        value,
		Components: components,
		Params:     params,
	}, nil
}

func parseByteSequence(value string) (label, body string, err error) {
	s := &scanner{in: value}
	s.skipWhitespace()
	label = s.key()
	if label == "" {
		return "", "", errors.Errorf("expected a label at offset %d", s.pos)
	}
	if !s.consume('=') {
		return "", "", errors.Errorf("expected '=' after label %q", label)
	}
	s.skipWhitespace()
	if !s.consume(':') {
		return "", "", errors.Errorf("expected ':' at offset %d", s.pos)
	}
	body, ok := s.until(':')
	if !ok {
		return "", "", errors.New("byte sequence is not terminated by ':'")
	}
	if rest := s.rest(); strings.TrimSpace(rest) != "" {
		return "", "", errors.Errorf("unexpected %q after the byte sequence", rest)
	}
	return label, body, nil
}

type scanner struct {
	in  string
	pos int
}

func (s *scanner) done() bool {
	return s.pos >= len(s.in)
}

func (s *scanner) peek() byte {
	return s.in[s.pos]
}

func (s *scanner) atWhitespace() bool {
	switch s.peek() {
	case ' ', '\t', '\r', '\n':
		return true
	}
	return false
}

func (s *scanner) skipWhitespace() {
	for !s.done() && s.atWhitespace() {
		s.pos++
	}
}

func (s *scanner) consume(c byte) bool {
	if s.done() || s.peek() != c {
		return false
	}
	s.pos++
	return true
}

// key reads a structured field key: a lowercase letter or '*' followed by lowercase letters,
// digits, '_', '-', '.' and '*'.
func (s *scanner) key() string {
	start := s.pos
	for !s.done() {
		c := s.peek()
		first := s.pos == start
		switch {
		case c >= 'a' && c <= 'z', c == '*':
		case !first && (c >= '0' && c <= '9' || c == '_' || c == '-' || c == '.'):
		default:
			return s.in[start:s.pos]
		}
		s.pos++
	}
	return s.in[start:s.pos]
}

// until reads up to the next c and consumes it.
func (s *scanner) until(c byte) (string, bool) {
	i := strings.IndexByte(s.in[s.pos:], c)
	if i < 0 {
		return "", false
	}
	out := s.in[s.pos : s.pos+i]
	s.pos += i + 1
	return out, true
}

func (s *scanner) rest() string {
	out := s.in[s.pos:]
	s.pos = len(s.in)
	return out
}
