package utils

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// ExtractUserInfo reads the user id and role that the JWT middleware stored in
// the request context. It returns an HTTP error when the values are missing,
// which only happens if a route forgot the auth middleware.
func ExtractUserInfo(c echo.Context) (string, string, error) {
	userID, ok := c.Get("userID").(string)
	if !ok || userID == "" {
		return "", "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication context")
	}
	role, _ := c.Get("userRole").(string)
	return userID, role, nil
}

// GetPageLimit reads pagination query parameters with sane defaults.
func GetPageLimit(c echo.Context) (int, int) {
	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

// GetTimeRange reads the optional from/to query parameters (RFC 3339). When
// absent, the range defaults to the last 24 hours ending now.
func GetTimeRange(c echo.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.Add(-24 * time.Hour)
	to := now

	if raw := c.QueryParam("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid 'from' timestamp, expected RFC 3339")
		}
		from = parsed
	}
	if raw := c.QueryParam("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid 'to' timestamp, expected RFC 3339")
		}
		to = parsed
	}
	return from, to, nil
}
