package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/filemesh/node/internal/errs"
	"github.com/filemesh/node/internal/wire"
)

// writeError maps a sentinel error kind (spec.md §7) onto a status code and
// the structured error body every failing operation returns.
func writeError(c *gin.Context, err error) {
	status, kind := http.StatusInternalServerError, "Internal"
	switch {
	case errors.Is(err, errs.ErrNotFound):
		status, kind = http.StatusNotFound, "NotFound"
	case errors.Is(err, errs.ErrCorruptData):
		status, kind = http.StatusUnprocessableEntity, "CorruptData"
	case errors.Is(err, errs.ErrPeerUnreachable):
		status, kind = http.StatusBadGateway, "PeerUnreachable"
	case errors.Is(err, errs.ErrBadRequest):
		status, kind = http.StatusBadRequest, "BadRequest"
	case errors.Is(err, errs.ErrUnauthorized):
		status, kind = http.StatusForbidden, "Unauthorized"
	case errors.Is(err, errs.ErrTransferFailed):
		status, kind = http.StatusBadGateway, "TransferFailed"
	}
	c.JSON(status, wire.ErrorResponse{Error: err.Error(), Kind: kind})
}
