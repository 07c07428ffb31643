// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package httpsig

import (
	"fmt"
	"strings"
)

// Kind enumerates every reason a request can fail authentication.
type Kind int

const (
	MissingSignatureHeader Kind = iota + 1
	MissingSignatureInputHeader
	MissingSignatureKeyHeader
	MissingHeaderField
	MalformedSignature
	MalformedSignatureInput
	MalformedSignatureKey
	MalformedPublicKey
	MalformedSignatureEncoding
	SignatureVerificationFailed
	DelegationChainLength
	MalformedDelegation
	DelegationIssuerMismatch
	DelegationSessionKeyMismatch
	DelegationExpired
	DelegationSignatureInvalid
	RootKeyFormat
)

var kindNames = map[Kind]string{
	MissingSignatureHeader:       "MissingSignatureHeader",
	MissingSignatureInputHeader:  "MissingSignatureInputHeader",
	MissingSignatureKeyHeader:    "MissingSignatureKeyHeader",
	MissingHeaderField:           "MissingHeaderField",
	MalformedSignature:           "MalformedSignature",
	MalformedSignatureInput:      "MalformedSignatureInput",
	MalformedSignatureKey:        "MalformedSignatureKey",
	MalformedPublicKey:           "MalformedPublicKey",
	MalformedSignatureEncoding:   "MalformedSignatureEncoding",
	SignatureVerificationFailed:  "SignatureVerificationFailed",
	DelegationChainLength:        "DelegationChainLength",
	MalformedDelegation:          "MalformedDelegation",
	DelegationIssuerMismatch:     "DelegationIssuerMismatch",
	DelegationSessionKeyMismatch: "DelegationSessionKeyMismatch",
	DelegationExpired:            "DelegationExpired",
	DelegationSignatureInvalid:   "DelegationSignatureInvalid",
	RootKeyFormat:                "RootKeyFormat",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Stage names the step at which a header value could not be decoded.
type Stage int

const (
	NoStage Stage = iota
	StageGrammar
	StageBase64
	StageJSON
)

func (s Stage) String() string {
	switch s {
	case StageGrammar:
		return "grammar"
	case StageBase64:
		return "base64"
	case StageJSON:
		return "json"
	default:
		return ""
	}
}

// Error is the only error type Verify returns.
type Error struct {
	Kind Kind
	// Stage is set for the malformed header kinds.
	Stage Stage
	// Detail carries the missing field name for MissingHeaderField and a diagnostic otherwise.
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Stage != NoStage {
		sb.WriteString(" (")
		sb.WriteString(e.Stage.String())
		sb.WriteString(")")
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors of the same kind, so that callers can compare against a bare
// &Error{Kind: k}.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && (t.Stage == NoStage || t.Stage == e.Stage)
}

func newError(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func malformed(kind Kind, stage Stage, detail string, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Detail: detail, Cause: cause}
}
