package api

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/meshgate/pkg/errs"
)

// DetailError is the REST error shape (spec §6.1 "{detail}") used by every
// resource endpoint outside /tasks/* and /sse/*.
type DetailError struct {
	Detail string `json:"detail"`
}

// rpcErrorBody is the JSON-RPC 2.0 error envelope returned by /tasks/* and
// /sse/* paths so A2A clients can consume it directly (spec §6.1).
type rpcErrorBody struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      string       `json:"id"`
	Error   *rpcErrorObj `json:"error"`
}

type rpcErrorObj struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// statusFor maps an errs.Kind to its HTTP status, the single point of
// truth for the Kind → status translation (spec §7).
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.BadRequest:
		return http.StatusBadRequest
	case errs.Unauthenticated:
		return http.StatusUnauthorized
	case errs.Forbidden:
		return http.StatusForbidden
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Conflict:
		return http.StatusConflict
	case errs.UpstreamTimeout:
		return http.StatusGatewayTimeout
	case errs.UpstreamUnavailable, errs.TransientBackend:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// rpcCodeFor maps an errs.Kind to a JSON-RPC error code, following the
// A2A convention of reserving -32000..-32099 for server-defined errors.
func rpcCodeFor(kind errs.Kind) int {
	switch kind {
	case errs.BadRequest:
		return -32602 // invalid params
	case errs.NotFound:
		return -32001
	case errs.Conflict:
		return -32002
	case errs.UpstreamTimeout:
		return -32003
	case errs.UpstreamUnavailable, errs.TransientBackend:
		return -32004
	case errs.Unauthenticated:
		return -32005
	case errs.Forbidden:
		return -32006
	default:
		return -32000
	}
}

// writeError translates err into the REST `{detail}` shape at the outermost
// adapter boundary (spec §9 "let the outermost HTTP adapter translate to
// status + body"). Internal-kind errors are logged server-side; their
// message is never echoed to the caller.
func writeError(c *echo.Context, err error) error {
	kind := errs.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if kind == errs.Internal {
		slog.Error("api: unhandled internal error", "error", err, "path", c.Request().URL.Path)
		msg = "internal server error"
	}
	return c.JSON(status, &DetailError{Detail: msg})
}

// writeRPCError translates err into the JSON-RPC error envelope used by
// /tasks/* and /sse/* (spec §6.1), keyed to the A2A request id.
func writeRPCError(c *echo.Context, id string, err error) error {
	kind := errs.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if kind == errs.Internal {
		slog.Error("api: unhandled internal error", "error", err, "path", c.Request().URL.Path)
		msg = "internal server error"
	}
	return c.JSON(status, &rpcErrorBody{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcErrorObj{Code: rpcCodeFor(kind), Message: msg},
	})
}
