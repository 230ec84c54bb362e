package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const maxStackSize = 4 << 10

// Recover turns a panic in a downstream handler into a 500 answered by the
// global error handler. The panic value and a truncated stack are logged.
func Recover(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				if len(stack) > maxStackSize {
					stack = stack[:maxStackSize]
				}

				var panicErr error
				switch v := r.(type) {
				case error:
					panicErr = v
				default:
					panicErr = fmt.Errorf("%v", v)
				}

				log.Error("panic recovered",
					zap.Error(panicErr),
					zap.String("request_id", GetRequestID(c)),
					zap.String("method", c.Method()),
					zap.String("path", c.Path()),
					zap.String("stack", string(stack)),
				)

				err = fiber.NewError(fiber.StatusInternalServerError, "internal server error")
			}
		}()

		return c.Next()
	}
}
