package biz

import (
	"time"

	"github.com/vearne/pcapbridge/config"
	"golang.org/x/time/rate"
)

// NewRateLimit returns nil when no output rate is configured. Up to one
// second worth of packets may pass in a burst.
func NewRateLimit(settings *config.AppSettings) Limiter {
	if settings.OutputRate <= 0 {
		return nil
	}
	every := time.Second / time.Duration(settings.OutputRate)
	return rate.NewLimiter(rate.Every(every), settings.OutputRate)
}
