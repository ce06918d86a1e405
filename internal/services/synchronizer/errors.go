package synchronizer

import (
	"strings"

	"github.com/pkg/errors"
)

// Validation failure reasons for enable attempts.
const (
	ReasonCredentialNotConnected = "credential not connected"
	ReasonProvidersMissing       = "missing required providers"
)

// ErrStopped is returned by actions invoked after the synchronizer shut down.
var ErrStopped = errors.New("synchronizer stopped")

// ValidationError blocks an enable attempt before any remote call is made.
// Missing holds provider category display names ready for direct display.
type ValidationError struct {
	Reason  string
	Missing []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return e.Reason + ": " + strings.Join(e.Missing, ", ")
	}

	return e.Reason
}
