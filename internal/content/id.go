package content

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identifiers encode a type tag and creation time for traceability, e.g.
// "draft_thread_1719830000_ab12cd34". The random suffix keeps ids from
// colliding when several records are created within one second.

func NewDraftID(k Kind, now time.Time) string { return newID("draft", k, now) }

func NewScheduleID(k Kind, now time.Time) string { return newID("sched", k, now) }

func newID(prefix string, k Kind, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%d_%s", prefix, k, now.Unix(), suffix)
}
