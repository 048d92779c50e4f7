package integration

import (
	"errors"
	"time"

	"github.com/mobilsoft/edire/internal/domain/integration"
)

func isNotFound(err error) bool {
	return errors.Is(err, integration.ErrProductNotFound) ||
		errors.Is(err, integration.ErrPartnerNotFound) ||
		errors.Is(err, integration.ErrEntryNotFound) ||
		errors.Is(err, integration.ErrBindingNotFound)
}

func absDays(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}
