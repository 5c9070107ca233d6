package publish

import (
	"fmt"

	"xpost/internal/content"
)

// PublisherError reports a failed publish attempt with enough context for
// manual remediation: the variant that failed, the ids already published
// (threads) and the underlying cause. A partial thread failure is never
// collapsed into a plain error.
type PublisherError struct {
	Kind      content.Kind
	Published []string
	Err       error
}

func (e *PublisherError) Error() string {
	if len(e.Published) > 0 {
		return fmt.Sprintf("publisher failed for %s after %d posts %v: %v", e.Kind, len(e.Published), e.Published, e.Err)
	}
	return fmt.Sprintf("publisher failed for %s: %v", e.Kind, e.Err)
}

func (e *PublisherError) Unwrap() error { return e.Err }
