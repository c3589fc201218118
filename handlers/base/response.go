package base

import (
	"errors"
	"net/http"

	"zkteco-hub/protocol"
	repobase "zkteco-hub/repositories/base"
	"zkteco-hub/utils"

	"github.com/labstack/echo/v4"
)

// ===================================================================
// HTTP ERROR HANDLING
// ===================================================================

// ToAppError converts service and repository errors to the HTTP error the
// operator API answers with. Unrecognized errors become a 500 that keeps
// the cause for logging.
func ToAppError(err error) *utils.AppError {
	if err == nil {
		return nil
	}

	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var codecErr *protocol.ValidationError
	switch {
	case repobase.IsEntityNotFound(err):
		return utils.NewNotFoundError(repobase.GetErrorMessage(err))
	case repobase.IsDuplicateEntity(err):
		return utils.NewConflictError(repobase.GetErrorMessage(err))
	case repobase.IsValidationError(err):
		return utils.NewBadRequestError(repobase.GetErrorMessage(err), err)
	case errors.As(err, &codecErr):
		return utils.NewBadRequestError(codecErr.Error(), err)
	case errors.Is(err, protocol.ErrUnknownCommand):
		return utils.NewBadRequestError(err.Error(), err)
	}

	return utils.NewInternalServerError("An unexpected internal error occurred.", err)
}

// ===================================================================
// RESPONSE HELPERS
// ===================================================================

// SendOKJSON sends a 200 OK response with data as the body
func SendOKJSON(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, data)
}

// SendCreatedJSON sends a 201 Created response with data as the body
func SendCreatedJSON(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, data)
}

// SendListJSON sends a list response
func SendListJSON(c echo.Context, items interface{}, count, limit int) error {
	return c.JSON(http.StatusOK, utils.CreateListResponse(items, count, limit))
}

// SendDeletionJSON sends a deletion success response
func SendDeletionJSON(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// SendResult answers with data, or converts err for the error handler.
func SendResult(c echo.Context, data interface{}, err error) error {
	if err != nil {
		return ToAppError(err)
	}
	return SendOKJSON(c, data)
}

// SendCreationResult answers 201 with data, or converts err.
func SendCreationResult(c echo.Context, data interface{}, err error) error {
	if err != nil {
		return ToAppError(err)
	}
	return SendCreatedJSON(c, data)
}

// SendDeletionResult answers a deletion, or converts err.
func SendDeletionResult(c echo.Context, err error) error {
	if err != nil {
		return ToAppError(err)
	}
	return SendDeletionJSON(c)
}
