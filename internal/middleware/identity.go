package middleware

import "github.com/labstack/echo/v4"

// UserID returns the authenticated user's id, or "" on public routes.
func UserID(c echo.Context) string {
	s, _ := c.Get(CtxUserID).(string)
	return s
}

// Role returns the authenticated user's role, or "".
func Role(c echo.Context) string {
	s, _ := c.Get(CtxRole).(string)
	return s
}

// userKey identifies the caller for rate limiting.  Anonymous callers
// share the "anon" bucket within their key strategy.
func userKey(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "anon"
}
