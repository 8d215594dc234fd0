package api

import (
	"context"
	"crypto/subtle"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// authMiddleware rejects any request whose Authorization header does not
// carry the expected bearer token, using a constant-time comparison so
// response timing cannot be used to guess the token byte by byte.
func authMiddleware(token string) app.HandlerFunc {
	expected := []byte("Bearer " + token)
	return func(ctx context.Context, c *app.RequestContext) {
		got := c.GetHeader("Authorization")
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			writeJSON(c, consts.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next(ctx)
	}
}
