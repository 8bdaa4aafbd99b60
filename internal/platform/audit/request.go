package audit

import (
	"context"

	"github.com/labstack/echo/v4"
)

// RequestInfo is the caller metadata stored with each access.
type RequestInfo struct {
	IPAddress string
	UserAgent string
	RequestID string
}

type requestInfoKey struct{}

func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func RequestInfoFromContext(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

// Middleware copies the client address, user agent and request id onto the
// request context so services can stamp access logs without seeing echo.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid, _ := c.Get("request_id").(string)
			ctx := WithRequestInfo(req.Context(), RequestInfo{
				IPAddress: c.RealIP(),
				UserAgent: req.UserAgent(),
				RequestID: rid,
			})
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
