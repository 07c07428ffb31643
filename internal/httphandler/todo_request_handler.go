// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package httphandler

import (
	"net/http"

	"github.com/gorilla/mux"
	ierrors "github.com/hyperledger-labs/orion-httpauth/internal/errors"
	"github.com/hyperledger-labs/orion-httpauth/internal/httputils"
	"github.com/hyperledger-labs/orion-httpauth/internal/todo"
	"github.com/hyperledger-labs/orion-httpauth/internal/utils"
	"github.com/hyperledger-labs/orion-httpauth/pkg/constants"
	"github.com/hyperledger-labs/orion-httpauth/pkg/httpsig"
	"github.com/hyperledger-labs/orion-httpauth/pkg/logger"
	"github.com/hyperledger-labs/orion-httpauth/pkg/principal"
)

// CreateTodoRequest is the body of POST /api/todos.
type CreateTodoRequest struct {
	Title string `json:"title"`
}

// ListTodosResponse is the data of GET /api/todos.
type ListTodosResponse struct {
	Todos         []*todo.Item        `json:"todos"`
	UserPrincipal principal.Principal `json:"userPrincipal"`
}

// WhoAmIResponse is the data of GET /api/whoami.
type WhoAmIResponse struct {
	Principal principal.Principal `json:"principal"`
	Delegated bool                `json:"delegated"`
}

// todoRequestHandler serves the todo items of the authenticated caller
type todoRequestHandler struct {
	store   todo.Store
	router  *mux.Router
	metrics *utils.TodoMetrics
	logger  *logger.SugarLogger
}

// NewTodoRequestHandler returns the handler of the todo and whoami routes. It expects every
// request to carry an identity, see NewAuthMiddleware.
func NewTodoRequestHandler(store todo.Store, metrics *utils.TodoMetrics, logger *logger.SugarLogger) http.Handler {
	if metrics == nil {
		metrics = utils.NewTodoMetrics(nil)
	}
	handler := &todoRequestHandler{
		store:   store,
		router:  mux.NewRouter(),
		metrics: metrics,
		logger:  logger,
	}

	handler.router.HandleFunc(constants.TodosEndpoint, handler.listTodos).Methods(http.MethodGet)
	handler.router.HandleFunc(constants.TodosEndpoint, handler.createTodo).Methods(http.MethodPost)
	handler.router.HandleFunc(constants.GetTodo, handler.getTodo).Methods(http.MethodGet)
	handler.router.HandleFunc(constants.GetTodo, handler.updateTodo).Methods(http.MethodPut, http.MethodPatch)
	handler.router.HandleFunc(constants.GetTodo, handler.deleteTodo).Methods(http.MethodDelete)
	handler.router.HandleFunc(constants.GetWhoAmI, handler.whoAmI).Methods(http.MethodGet)

	handler.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputils.SendHTTPError(w, http.StatusNotFound, "Not found")
	})
	handler.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputils.SendHTTPError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return handler
}

func (h *todoRequestHandler) ServeHTTP(response http.ResponseWriter, request *http.Request) {
	if request.Method == http.MethodOptions {
		h.preflight(response, request)
		return
	}
	h.router.ServeHTTP(response, request)
}

// caller returns the identity of the request or responds 401 when it has none.
func (h *todoRequestHandler) caller(response http.ResponseWriter, request *http.Request) (*httpsig.Identity, bool) {
	id, ok := IdentityFromContext(request.Context())
	if !ok {
		httputils.SendHTTPError(response, http.StatusUnauthorized, "request is not authenticated")
		return nil, false
	}
	return id, true
}

func (h *todoRequestHandler) respond(response http.ResponseWriter, operation string, code int, data interface{}) {
	h.metrics.IncrementOperation(operation, code)
	httputils.SendHTTPResponse(response, code, data)
}

func (h *todoRequestHandler) fail(response http.ResponseWriter, request *http.Request, operation string, err error) {
	code := http.StatusInternalServerError
	message := "error while processing '" + request.Method + " " + request.URL.Path + "'"

	switch e := err.(type) {
	case *ierrors.NotFoundErr:
		code = http.StatusNotFound
		message = "Todo item not found"
	case *ierrors.BadRequestErr:
		code = http.StatusBadRequest
		message = e.ErrMsg
	case *httputils.ResponseErr:
		code = e.Code
		message = e.Message
	default:
		h.logger.Errorf("%s because %s", message, err)
	}

	h.metrics.IncrementOperation(operation, code)
	httputils.SendHTTPError(response, code, message)
}

// itemID parses the {id} path variable of the request.
func (h *todoRequestHandler) itemID(request *http.Request) (uint32, error) {
	id, err := httputils.GetUint32Param("id", mux.Vars(request))
	if err != nil {
		h.logger.Debugf("%s %s: %s", request.Method, request.URL.Path, err)
		return 0, &ierrors.BadRequestErr{ErrMsg: "Invalid ID format"}
	}
	return id, nil
}

func (h *todoRequestHandler) listTodos(response http.ResponseWriter, request *http.Request) {
	id, ok := h.caller(response, request)
	if !ok {
		return
	}

	items, err := h.store.List(request.Context(), id.Principal.String())
	if err != nil {
		h.fail(response, request, "list", err)
		return
	}

	h.respond(response, "list", http.StatusOK, &ListTodosResponse{
		Todos:         items,
		UserPrincipal: id.Principal,
	})
}

func (h *todoRequestHandler) createTodo(response http.ResponseWriter, request *http.Request) {
	id, ok := h.caller(response, request)
	if !ok {
		return
	}

	body := &CreateTodoRequest{}
	if err := httputils.DecodeJSONBody(request, body); err != nil {
		h.fail(response, request, "create", &ierrors.BadRequestErr{ErrMsg: err.Error()})
		return
	}

	timer := h.metrics.NewLatencyTimer("create")
	item, err := h.store.Create(request.Context(), id.Principal.String(), body.Title)
	timer.Observe()
	if err != nil {
		h.fail(response, request, "create", err)
		return
	}

	h.logger.Debugf("todo item %d created for %s", item.ID, id.Principal)
	h.respond(response, "create", http.StatusCreated, item)
}

func (h *todoRequestHandler) getTodo(response http.ResponseWriter, request *http.Request) {
	id, ok := h.caller(response, request)
	if !ok {
		return
	}
	itemID, err := h.itemID(request)
	if err != nil {
		h.fail(response, request, "get", err)
		return
	}

	item, err := h.store.Get(request.Context(), id.Principal.String(), itemID)
	if err != nil {
		h.fail(response, request, "get", err)
		return
	}
	h.respond(response, "get", http.StatusOK, item)
}

func (h *todoRequestHandler) updateTodo(response http.ResponseWriter, request *http.Request) {
	id, ok := h.caller(response, request)
	if !ok {
		return
	}
	itemID, err := h.itemID(request)
	if err != nil {
		h.fail(response, request, "update", err)
		return
	}

	body := &todo.Update{}
	if err := httputils.DecodeJSONBody(request, body); err != nil {
		h.fail(response, request, "update", &ierrors.BadRequestErr{ErrMsg: err.Error()})
		return
	}

	item, err := h.store.Update(request.Context(), id.Principal.String(), itemID, body)
	if err != nil {
		h.fail(response, request, "update", err)
		return
	}
	h.respond(response, "update", http.StatusOK, item)
}

func (h *todoRequestHandler) deleteTodo(response http.ResponseWriter, request *http.Request) {
	id, ok := h.caller(response, request)
	if !ok {
		return
	}
	itemID, err := h.itemID(request)
	if err != nil {
		h.fail(response, request, "delete", err)
		return
	}

	if err := h.store.Delete(request.Context(), id.Principal.String(), itemID); err != nil {
		h.fail(response, request, "delete", err)
		return
	}
	h.respond(response, "delete", http.StatusOK, nil)
}

func (h *todoRequestHandler) whoAmI(response http.ResponseWriter, request *http.Request) {
	id, ok := h.caller(response, request)
	if !ok {
		return
	}
	httputils.SendHTTPResponse(response, http.StatusOK, &WhoAmIResponse{
		Principal: id.Principal,
		Delegated: id.Delegated,
	})
}

func (h *todoRequestHandler) preflight(response http.ResponseWriter, _ *http.Request) {
	response.Header().Set("Allow", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	httputils.SetSecurityHeaders(response.Header())
	response.WriteHeader(http.StatusNoContent)
}
