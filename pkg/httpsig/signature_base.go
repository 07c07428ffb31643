// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package httpsig

import (
	"strings"
)

// Derived component identifiers.
const (
	ComponentMethod = "@method"
	ComponentPath   = "@path"
	ComponentQuery  = "@query"

	signatureParams = "@signature-params"
)

// SignatureBase rebuilds the exact bytes covered by a signature: one line per component in
// order, followed by the signature parameters line carrying rawParams verbatim.
func SignatureBase(r Request, components []string, rawParams string) ([]byte, error) {
	var sb strings.Builder
	for _, c := range components {
		value, err := componentValue(r, c)
		if err != nil {
			return nil, err
		}
		writeLine(&sb, c, value)
	}
	writeLine(&sb, signatureParams, rawParams)
	return []byte(sb.String()), nil
}

func componentValue(r Request, component string) (string, error) {
	switch component {
	case ComponentMethod:
		return strings.ToUpper(r.Method()), nil
	case ComponentPath:
		return r.Path(), nil
	case ComponentQuery:
		if q, ok := r.Query(); ok {
			return "?" + q, nil
		}
		return "", nil
	default:
		v, ok := LookupHeader(r, component)
		if !ok {
			return "", newError(MissingHeaderField, component)
		}
		return v, nil
	}
}

func writeLine(sb *strings.Builder, id, value string) {
	sb.WriteByte('"')
	sb.WriteString(id)
	sb.WriteString(`": `)
	sb.WriteString(value)
	sb.WriteByte('\n')
}
