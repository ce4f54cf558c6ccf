package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ffp-admin/apperrors"
	"ffp-admin/metrics"
)

// RequestLogger logs every request once and records it in m. It must run
// before the routes so errors returned by handlers are seen here.
func RequestLogger(log *zap.Logger, m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		status := c.Response().StatusCode()
		if err != nil {
			status = apperrors.Status(err)
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		route := c.Route().Path
		m.ObserveRequest(c.Method(), route, status, elapsed)

		level := zapcore.InfoLevel
		switch {
		case status >= 500:
			level = zapcore.ErrorLevel
		case status >= 400:
			level = zapcore.WarnLevel
		}
		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("ip", c.IP()),
		}
		if user := ActingUser(c); user != "" {
			fields = append(fields, zap.String("user_id", user))
		}
		if err != nil && status >= 500 {
			fields = append(fields, zap.Error(err))
		}
		log.Check(level, "request").Write(fields...)
		return err
	}
}
