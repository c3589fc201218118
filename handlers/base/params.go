package base

import (
	"strconv"
	"strings"

	"zkteco-hub/utils"

	"github.com/labstack/echo/v4"
)

// ===================================================================
// PARAMETER EXTRACTION HELPERS
// ===================================================================

// ExtractIDParam extracts and validates ID parameter from URL
func ExtractIDParam(c echo.Context, paramName string) (uint, error) {
	idStr := c.Param(paramName)
	if idStr == "" {
		return 0, utils.NewBadRequestError(paramName + " parameter is required")
	}

	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		return 0, utils.NewBadRequestError("Invalid "+paramName+" parameter: must be a positive integer", err)
	}

	return uint(id), nil
}

// ExtractID extracts the ":id" path parameter
func ExtractID(c echo.Context) (uint, error) {
	return ExtractIDParam(c, "id")
}

// ===================================================================
// QUERY PARAMETER HELPERS
// ===================================================================

// ExtractOptionalStringParam extracts optional string parameter with default
func ExtractOptionalStringParam(c echo.Context, paramName, defaultValue string) string {
	value := strings.TrimSpace(c.QueryParam(paramName))
	return utils.GetValueOrDefault(value, defaultValue)
}

// ExtractOptionalIntParam extracts optional integer parameter with default
func ExtractOptionalIntParam(c echo.Context, paramName string, defaultValue int) int {
	valueStr := c.QueryParam(paramName)
	return utils.GetIntOrDefault(valueStr, defaultValue)
}

// ExtractOptionalUintParam returns 0 when the parameter is absent or invalid
func ExtractOptionalUintParam(c echo.Context, paramName string) uint {
	value := ExtractOptionalIntParam(c, paramName, 0)
	if value < 0 {
		return 0
	}
	return uint(value)
}

// ExtractTriStateBoolParam returns nil when the filter is not set
func ExtractTriStateBoolParam(c echo.Context, paramName string) *bool {
	return utils.ParseOptionalBool(c.QueryParam(paramName))
}

// ===================================================================
// REQUEST BODY HELPERS
// ===================================================================

// BindAndValidateJSON binds the JSON body into target and runs the
// registered validator on it.
func BindAndValidateJSON(c echo.Context, target interface{}) error {
	if err := c.Bind(target); err != nil {
		return utils.NewBadRequestError("Invalid request body", err)
	}
	if err := c.Validate(target); err != nil {
		return err
	}
	return nil
}
