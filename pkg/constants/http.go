// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package constants

import (
	"path"
	"strconv"
)

const (
	RequestIDHeader = "X-Request-Id"

	APIPrefix = "/api"

	TodosEndpoint = "/api/todos"
	// GetTodo also serves PUT, PATCH and DELETE on a single item.
	GetTodo     = "/api/todos/{id}"
	GetWhoAmI   = "/api/whoami"
	GetHealth   = "/health"
	GetMetrics  = "/metrics"
	StaticFiles = "/"
)

// URLForTodo returns the path of a single todo item.
func URLForTodo(id uint32) string {
	return path.Join(TodosEndpoint, strconv.FormatUint(uint64(id), 10))
}
