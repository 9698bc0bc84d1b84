package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/orderkit/cost-engine/pkg/errors"
	"github.com/orderkit/cost-engine/pkg/logging"
)

// APIErrorResponse is the JSON error envelope returned by all endpoints
type APIErrorResponse struct {
	Error struct {
		Code      string            `json:"code"`
		Message   string            `json:"message"`
		Details   map[string]any    `json:"details,omitempty"`
		Fields    map[string]string `json:"fields,omitempty"`
		RequestID string            `json:"requestId,omitempty"`
	} `json:"error"`
}

// ErrorResponder writes consistent error responses for a request
type ErrorResponder struct {
	ctx    *gin.Context
	logger *logging.Logger
}

// NewErrorResponder creates an ErrorResponder bound to the request
func NewErrorResponder(ctx *gin.Context, logger *logging.Logger) *ErrorResponder {
	return &ErrorResponder{ctx: ctx, logger: logger}
}

// RespondWithError maps any error to an API response
func (r *ErrorResponder) RespondWithError(err error) {
	r.RespondWithAppError(errors.AsAppError(err))
}

// RespondWithAppError writes an AppError response
func (r *ErrorResponder) RespondWithAppError(appErr *errors.AppError) {
	requestID := GetRequestID(r.ctx)

	if appErr.HTTPStatus >= 500 {
		r.logger.WithContext(r.ctx.Request.Context()).WithError(appErr).Error("Request failed",
			"code", string(appErr.Code),
			"path", r.ctx.Request.URL.Path,
		)
	} else {
		r.logger.WithContext(r.ctx.Request.Context()).Warn("Request rejected",
			"code", string(appErr.Code),
			"message", appErr.Message,
			"path", r.ctx.Request.URL.Path,
		)
	}

	var resp APIErrorResponse
	resp.Error.Code = string(appErr.Code)
	resp.Error.Message = appErr.Message
	resp.Error.Details = appErr.Details
	resp.Error.RequestID = requestID

	r.ctx.JSON(appErr.HTTPStatus, resp)
}

// RespondNotFound writes a 404 response
func (r *ErrorResponder) RespondNotFound(resource, id string) {
	r.RespondWithAppError(errors.ErrNotFound(resource, id))
}

// RespondBadRequest writes a 400 response
func (r *ErrorResponder) RespondBadRequest(message string) {
	r.RespondWithAppError(errors.ErrBadRequest(message))
}

// RespondValidationError writes a 400 response with field errors
func (r *ErrorResponder) RespondValidationError(message string, fields map[string]string) {
	var resp APIErrorResponse
	resp.Error.Code = string(errors.CodeValidation)
	resp.Error.Message = message
	resp.Error.Fields = fields
	resp.Error.RequestID = GetRequestID(r.ctx)
	r.ctx.JSON(400, resp)
}

// RespondInternalError writes a 500 response
func (r *ErrorResponder) RespondInternalError(err error) {
	r.RespondWithAppError(errors.ErrInternal("internal server error", err))
}

// RespondConflict writes a 409 response
func (r *ErrorResponder) RespondConflict(message string) {
	r.RespondWithAppError(errors.ErrConflict(message))
}
