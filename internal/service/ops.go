package service

import (
	"errors"

	"github.com/dkovalev/famvpn/internal/apperr"
	"github.com/dkovalev/famvpn/internal/metrics"
)

// recordOp bumps the per-operation counter with the outcome label: "ok", the
// machine error code for domain rejections, or "error" for infrastructure
// failures.
func recordOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		var e *apperr.Error
		if errors.As(err, &e) {
			outcome = e.Code
		} else {
			outcome = "error"
		}
	}
	metrics.FamilyOps.WithLabelValues(op, outcome).Inc()
}
