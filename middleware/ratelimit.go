package middleware

import (
	"context"

	"golang.org/x/time/rate"

	transmission "github.com/jfxdev/go-transmission"
)

// RateLimit throttles requests to rps per second with the given burst.
// Waiting honors ctx; a cancelled wait is returned as a transport error.
func RateLimit(next transmission.Transport, rps float64, burst int) transmission.Transport {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}

	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return transmission.TransportFunc(func(ctx context.Context, req *transmission.Request) (*transmission.Response, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return next.Send(ctx, req)
	})
}
