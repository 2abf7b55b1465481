package observability

import (
	"context"
	"errors"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// ReadinessGroup is ready when every member is ready.
type ReadinessGroup []sharedobs.ReadinessChecker

// CheckReadiness checks every member and joins their errors.
func (g ReadinessGroup) CheckReadiness(ctx context.Context) error {
	var errs []error
	for _, c := range g {
		if c == nil {
			continue
		}
		if err := c.CheckReadiness(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
