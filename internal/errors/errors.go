// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package errors

// NotFoundErr denotes a todo item the owner does not have.
type NotFoundErr struct {
	Message string
}

func (e *NotFoundErr) Error() string {
	return e.Message
}

// BadRequestErr denotes a request whose parameters or body cannot be used.
type BadRequestErr struct {
	ErrMsg string
}

func (e *BadRequestErr) Error() string {
	return e.ErrMsg
}
