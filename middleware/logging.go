package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	transmission "github.com/jfxdev/go-transmission"
)

// Logging logs each exchange at debug level. Header values are never logged,
// so credentials and session ids stay out of the output.
func Logging(next transmission.Transport, logger *zap.Logger) transmission.Transport {
	if logger == nil {
		return next
	}

	return transmission.TransportFunc(func(ctx context.Context, req *transmission.Request) (*transmission.Response, error) {
		start := time.Now()
		resp, err := next.Send(ctx, req)

		fields := []zap.Field{
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Duration("duration", time.Since(start)),
		}

		if err != nil {
			logger.Debug("rpc request failed", append(fields, zap.Error(err))...)
			return resp, err
		}
		if resp != nil {
			fields = append(fields, zap.Int("status", resp.StatusCode), zap.Int("bytes", len(resp.Body)))
		}
		logger.Debug("rpc request", fields...)

		return resp, nil
	})
}
