// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/hyperledger-labs/orion-httpauth/pkg/crypto"
	"github.com/hyperledger-labs/orion-httpauth/pkg/httpsig"
	"github.com/pkg/errors"
)

var help = "the -privatekey and -path flags must be set. An example command is shown below: \n\n" +
	"  signer -privatekey=user.key -method=GET -path=/api/todos -header='host:localhost:8080'\n"

// headerFlags collects repeated -header name:value flags
type headerFlags []httpsig.HeaderField

func (h *headerFlags) String() string {
	var fields []string
	for _, f := range *h {
		fields = append(fields, f.Name+":"+f.Value)
	}
	return strings.Join(fields, ",")
}

func (h *headerFlags) Set(value string) error {
	name, v, ok := strings.Cut(value, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return errors.Errorf("header [%s] is not in the name:value form", value)
	}
	*h = append(*h, httpsig.HeaderField{Name: strings.ToLower(name), Value: strings.TrimSpace(v)})
	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("signer", flag.ContinueOnError)
	fs.SetOutput(out)

	pKey := fs.String("privatekey", "", "path to the P-256 private key used to sign the request")
	method := fs.String("method", "GET", "request method")
	path := fs.String("path", "", "request path, for example /api/todos")
	query := fs.String("query", "", "request query without the leading '?'; covered only when the flag is set")
	label := fs.String("label", "sig1", "signature label")
	var headers headerFlags
	fs.Var(&headers, "header", "a name:value request header to cover, may be repeated")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *pKey == "" || *path == "" {
		fmt.Fprintln(out, help)
		fs.PrintDefaults()
		return nil
	}

	var q *string
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "query" {
			q = query
		}
	})

	signer, err := crypto.NewSigner(
		&crypto.SignerOptions{
			KeyFilePath: *pKey,
		},
	)
	if err != nil {
		return err
	}
	rs, err := httpsig.NewRequestSigner(signer, httpsig.WithLabel(*label))
	if err != nil {
		return err
	}

	components := []string{httpsig.ComponentMethod, httpsig.ComponentPath}
	if q != nil {
		components = append(components, httpsig.ComponentQuery)
	}
	for _, h := range headers {
		components = append(components, h.Name)
	}

	fields, err := rs.Sign(httpsig.NewMessage(strings.ToUpper(*method), *path, q, headers...), components)
	if err != nil {
		return err
	}
	for _, f := range fields {
		fmt.Fprintf(out, "%s: %s\n", f.Name, f.Value)
	}
	return nil
}
