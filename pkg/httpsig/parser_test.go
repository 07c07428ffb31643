// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package httpsig

import (
	"encoding/base64"
	"testing"

	"github.com/hyperledger-labs/orion-httpauth/pkg/delegation"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func requireKind(t *testing.T, err error, kind Kind, stage Stage) {
	require.Error(t, err)
	var e *Error
	require.True(t, errors.As(err, &e), "unexpected error type %T", err)
	require.Equal(t, kind, e.Kind, e.Error())
	require.Equal(t, stage, e.Stage, e.Error())
}

func TestParseSignature(t *testing.T) {
	t.Parallel()

	sig, err := ParseSignature("sig1=:" + b64("raw signature") + ":")
	require.NoError(t, err)
	require.Equal(t, "sig1", sig.Label)
	require.Equal(t, []byte("raw signature"), sig.Bytes)

	sig, err = ParseSignature("  sig-2.a=:" + b64("x") + ":  ")
	require.NoError(t, err)
	require.Equal(t, "sig-2.a", sig.Label)

	tests := []struct {
		name  string
		value string
		stage Stage
	}{
		{name: "empty", value: "", stage: StageGrammar},
		{name: "no label", value: "=:AAAA:", stage: StageGrammar},
		{name: "uppercase label", value: "Sig1=:AAAA:", stage: StageGrammar},
		{name: "no equals", value: "sig1:AAAA:", stage: StageGrammar},
		{name: "no opening colon", value: "sig1=AAAA:", stage: StageGrammar},
		{name: "not terminated", value: "sig1=:AAAA", stage: StageGrammar},
		{name: "trailing data", value: "sig1=:AAAA:x", stage: StageGrammar},
		{name: "padded", value: "sig1=:AA==:", stage: StageBase64},
		{name: "standard alphabet", value: "sig1=:+/+/:", stage: StageBase64},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseSignature(tt.value)
			requireKind(t, err, MalformedSignature, tt.stage)
		})
	}
}

func TestParseSignatureInput(t *testing.T) {
	t.Parallel()

	t.Run("components and params", func(t *testing.T) {
		value := `sig1=("@method" "@path" "content-type");created=1618884475;keyid="k"`
		in, err := ParseSignatureInput(value)
		require.NoError(t, err)
		require.Equal(t, "sig1", in.Label)
		require.Equal(t, value, in.Raw)
		require.Equal(t, []string{"@method", "@path", "content-type"}, in.Components)
		require.Equal(t, `;created=1618884475;keyid="k"`, in.Params)
	})

	t.Run("empty component list", func(t *testing.T) {
		in, err := ParseSignatureInput(`sig1=()`)
		require.NoError(t, err)
		require.Empty(t, in.Components)
		require.Empty(t, in.Params)
	})

	t.Run("whitespace is kept in the raw value", func(t *testing.T) {
		value := `sig1=(  "@method"   "@path" )`
		in, err := ParseSignatureInput(value)
		require.NoError(t, err)
		require.Equal(t, []string{"@method", "@path"}, in.Components)
		require.Equal(t, value, in.Raw)
	})

	tests := []struct {
		name  string
		value string
	}{
		{name: "empty", value: ""},
		{name: "no label", value: `=("@method")`},
		{name: "no equals", value: `sig1("@method")`},
		{name: "no list", value: `sig1="@method"`},
		{name: "unterminated list", value: `sig1=("@method"`},
		{name: "unquoted component", value: `sig1=(@method)`},
		{name: "unterminated component", value: `sig1=("@method)`},
		{name: "empty component", value: `sig1=("" "@path")`},
		{name: "components not separated", value: `sig1=("@method""@path")`},
		{name: "garbage after list", value: `sig1=("@method") extra`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseSignatureInput(tt.value)
			requireKind(t, err, MalformedSignatureInput, StageGrammar)
		})
	}
}

func TestParseSignatureKey(t *testing.T) {
	t.Parallel()

	key, err := ParseSignatureKey("sig1=:" + b64(`{"pubKey":"AQID"}`) + ":")
	require.NoError(t, err)
	require.Equal(t, "sig1", key.Label)
	require.Equal(t, delegation.Blob{1, 2, 3}, key.PubKey)
	require.Nil(t, key.DelegationChain)

	key, err = ParseSignatureKey("sig1=:" + b64(`{"pubKey":[1,2,3],"delegationChain":{"pubKey":"BAU","delegations":[]}}`) + ":")
	require.NoError(t, err)
	require.Equal(t, delegation.Blob{1, 2, 3}, key.PubKey)
	require.NotNil(t, key.DelegationChain)
	require.Equal(t, delegation.Blob{4, 5}, key.DelegationChain.PubKey)

	_, err = ParseSignatureKey("sig1:" + b64(`{}`) + ":")
	requireKind(t, err, MalformedSignatureKey, StageGrammar)

	_, err = ParseSignatureKey("sig1=:{}:")
	requireKind(t, err, MalformedSignatureKey, StageBase64)

	_, err = ParseSignatureKey("sig1=:" + b64(`{"pubKey":`) + ":")
	requireKind(t, err, MalformedSignatureKey, StageJSON)

	_, err = ParseSignatureKey("sig1=:" + b64(`{"pubKey":"AQ=="}`) + ":")
	requireKind(t, err, MalformedSignatureKey, StageJSON)
}

func TestSignatureBase(t *testing.T) {
	t.Parallel()

	query := "a=1&b=2"
	r := NewMessage("get", "/items", &query,
		HeaderField{Name: "Content-Type", Value: "application/json"},
		HeaderField{Name: "x-dup", Value: "first"},
		HeaderField{Name: "x-dup", Value: "second"},
	)

	base, err := SignatureBase(r, []string{"@method", "@path", "@query", "content-type", "x-dup"}, `sig1=("@method")`)
	require.NoError(t, err)
	require.Equal(t, "\"@method\": GET\n"+
		"\"@path\": /items\n"+
		"\"@query\": ?a=1&b=2\n"+
		"\"content-type\": application/json\n"+
		"\"x-dup\": first\n"+
		"\"@signature-params\": sig1=(\"@method\")\n", string(base))

	base, err = SignatureBase(NewMessage("POST", "/", nil), []string{"@query"}, "p")
	require.NoError(t, err)
	require.Equal(t, "\"@query\": \n\"@signature-params\": p\n", string(base))

	empty := ""
	base, err = SignatureBase(NewMessage("POST", "/", &empty), []string{"@query"}, "p")
	require.NoError(t, err)
	require.Equal(t, "\"@query\": ?\n\"@signature-params\": p\n", string(base))

	_, err = SignatureBase(r, []string{"@method", "authorization"}, "p")
	requireKind(t, err, MissingHeaderField, NoStage)
	require.Equal(t, "authorization", err.(*Error).Detail)
}

func TestErrorIs(t *testing.T) {
	t.Parallel()

	err := error(malformed(MalformedSignatureKey, StageJSON, "bad", errors.New("eof")))
	require.True(t, errors.Is(err, &Error{Kind: MalformedSignatureKey}))
	require.True(t, errors.Is(err, &Error{Kind: MalformedSignatureKey, Stage: StageJSON}))
	require.False(t, errors.Is(err, &Error{Kind: MalformedSignatureKey, Stage: StageBase64}))
	require.False(t, errors.Is(err, &Error{Kind: MalformedSignature}))
	require.Equal(t, "MalformedSignatureKey (json): bad: eof", err.Error())
	require.Equal(t, "Kind(99)", Kind(99).String())
}
