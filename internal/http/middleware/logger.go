package middleware

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"securevault/internal/logger"
)

// Logger is a middleware that logs each HTTP request as one JSON line.
// Fields: request_id, method, path, status, latency (milliseconds), plus actor_id
// once the request has been authenticated.
func Logger(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		rid, _ := c.Locals(RequestIDLocalKey).(string)

		// Handlers and services pick this up through zerolog.Ctx.
		reqLog := log.With().Str("request_id", rid).Logger()
		c.SetUserContext(reqLog.WithContext(c.UserContext()))

		err := c.Next()

		// The error handler has not run yet, so take the status from the error.
		status := c.Response().StatusCode()
		if err != nil {
			status = statusFromError(err)
		}

		ev := log.Info().
			Str("request_id", rid).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Float64("latency", float64(time.Since(start).Microseconds())/1000)
		if id, ok := IdentityFrom(c); ok {
			ev = ev.Str("actor_id", id.ActorID)
		}
		ev.Send()

		return err
	}
}

// LoggerWithWriter builds a request logger writing to w with timestamps in loc.
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	return Logger(logger.New(w, "info", loc))
}

func statusFromError(err error) int {
	if fiberErr, ok := err.(*fiber.Error); ok {
		return fiberErr.Code
	}
	return fiber.StatusInternalServerError
}
