// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package httputils

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
)

// ResponseOk carries the data of a successful response.
type ResponseOk struct {
	Data interface{} `json:"data"`
}

// ResponseErr carries the status code and message of a failed response.
type ResponseErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ResponseErr) Error() string {
	return e.Message
}

// Envelope is the body of every API response. Exactly one of Ok and Err is set.
type Envelope struct {
	Ok  *ResponseOk  `json:"ok,omitempty"`
	Err *ResponseErr `json:"err,omitempty"`
}

// securityHeaders are set on every API response.
var securityHeaders = [][2]string{
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "no-referrer"},
	{"Cache-Control", "no-store, max-age=0"},
	{"Pragma", "no-cache"},
}

// SetSecurityHeaders adds the security headers API responses carry.
func SetSecurityHeaders(h http.Header) {
	for _, kv := range securityHeaders {
		h.Set(kv[0], kv[1])
	}
}

// SendHTTPResponse writes data wrapped in an ok envelope with the given status code.
func SendHTTPResponse(w http.ResponseWriter, code int, data interface{}) {
	send(w, code, &Envelope{Ok: &ResponseOk{Data: data}})
}

// SendHTTPError writes an err envelope carrying the status code and message.
func SendHTTPError(w http.ResponseWriter, code int, message string) {
	send(w, code, &Envelope{Err: &ResponseErr{Code: code, Message: message}})
}

func send(w http.ResponseWriter, code int, envelope *Envelope) {
	response, err := json.Marshal(envelope)
	if err != nil {
		code = http.StatusInternalServerError
		response, _ = json.Marshal(&Envelope{Err: &ResponseErr{Code: code, Message: "failed to encode the response"}})
	}

	SetSecurityHeaders(w.Header())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Printf("Warning: failed to write response [%v] to the response writer\n", w)
	}
}

// GetUint32Param parses the named route parameter.
func GetUint32Param(key string, params map[string]string) (uint32, error) {
	valStr, ok := params[key]
	if !ok {
		return 0, &ResponseErr{
			Code:    http.StatusBadRequest,
			Message: "missing parameter: " + key,
		}
	}
	val, err := strconv.ParseUint(valStr, 10, 32)
	if err != nil {
		return 0, &ResponseErr{
			Code:    http.StatusBadRequest,
			Message: "invalid parameter " + key + ": " + valStr,
		}
	}
	return uint32(val), nil
}

// DecodeJSONBody decodes the request body into v, rejecting unknown fields.
func DecodeJSONBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errors.New("request body is empty")
	}
	d := json.NewDecoder(r.Body)
	d.DisallowUnknownFields()
	if err := d.Decode(v); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}
