package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/classpoll/internal/guard"
	"github.com/stemsi/classpoll/internal/response"
	"github.com/stemsi/classpoll/internal/service"
)

// failure pairs a domain error with its HTTP rendering.
type failure struct {
	err    error
	status int
	code   response.ErrCode
}

var failures = []failure{
	{service.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrNotSessionOwner, http.StatusForbidden, response.ErrNotSessionOwner},
	{service.ErrNotEnrolled, http.StatusForbidden, response.ErrNotEnrolled},
	{service.ErrSessionInactive, http.StatusConflict, response.ErrSessionInactive},
	{service.ErrInvalidAccessCode, http.StatusNotFound, response.ErrInvalidAccessCode},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},
	{service.ErrEmailTaken, http.StatusConflict, response.ErrEmailTaken},
	{service.ErrUnknownField, http.StatusBadRequest, response.ErrUnknownField},
	{service.ErrOptionMismatch, http.StatusBadRequest, response.ErrOptionMismatch},
	{guard.ErrIllegalRoleTransition, http.StatusUnprocessableEntity, response.ErrIllegalRoleTransition},
	{guard.ErrForeignDefault, http.StatusUnprocessableEntity, response.ErrForeignDefaultOption},
	{guard.ErrDeleteDefaultOption, http.StatusConflict, response.ErrDeleteDefaultOption},
	{guard.ErrOrderSetMismatch, http.StatusUnprocessableEntity, response.ErrOrderSetMismatch},
	{guard.ErrAccessCodeTaken, http.StatusConflict, response.ErrAccessCodeTaken},
}

// failWith renders a service error. Unknown errors are logged and become 500.
func failWith(c *gin.Context, log zerolog.Logger, err error) {
	var fe *service.FieldError
	if errors.As(err, &fe) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{fe.Field: fe.Err.Error()})
		return
	}
	for _, f := range failures {
		if errors.Is(err, f.err) {
			response.Fail(c, f.status, f.code)
			return
		}
	}
	log.Error().Err(err).
		Str("request_id", response.RequestID(c)).
		Str("method", c.Request.Method).
		Str("path", c.FullPath()).
		Msg("Request failed")
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}

// paramID parses a UUID path parameter, answering 400 when it is malformed.
func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
