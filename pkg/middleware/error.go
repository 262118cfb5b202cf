package middleware

import (
	"errors"
	"net/http"

	"promo-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last error a handler recorded with c.Error. Domain
// errors keep their category; anything else becomes an opaque 500.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil || c.Writer.Written() {
			return
		}

		var base errutil.BaseError
		if errors.As(err.Err, &base) {
			c.JSON(base.Code.HTTPStatus(), base.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": "internal error",
			},
		})
	}
}
