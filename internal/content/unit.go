package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrValidation marks malformed input (empty thread, past due time,
// interval below one minute, ...). Callers match it with errors.Is.
var ErrValidation = errors.New("validation failed")

// Kind tags a ContentUnit variant. The set is closed; decoding an unknown
// kind is an error, never a guess from which fields happen to be present.
type Kind string

const (
	KindPost      Kind = "post"
	KindReply     Kind = "reply"
	KindQuote     Kind = "quote"
	KindMedia     Kind = "media"
	KindThread    Kind = "thread"
	KindRecurring Kind = "recurring"
)

func (k Kind) valid() bool {
	switch k {
	case KindPost, KindReply, KindQuote, KindMedia, KindThread, KindRecurring:
		return true
	}
	return false
}

// ContentUnit is one publishable payload. Exactly the fields belonging to
// Kind are populated; Validate enforces that.
type ContentUnit struct {
	Kind Kind

	// post, reply, quote, media
	Text string
	// reply, quote: the post being replied to / quoted
	TargetID string
	// media: references resolved (uploaded) before the post call
	MediaRefs []string
	// thread, recurring: ordered texts
	Texts []string
	// recurring only
	IntervalMinutes int
	TotalCount      int
}

func NewPost(text string) (ContentUnit, error) {
	u := ContentUnit{Kind: KindPost, Text: text}
	return u, u.Validate()
}

func NewReply(text, targetID string) (ContentUnit, error) {
	u := ContentUnit{Kind: KindReply, Text: text, TargetID: targetID}
	return u, u.Validate()
}

func NewQuote(text, targetID string) (ContentUnit, error) {
	u := ContentUnit{Kind: KindQuote, Text: text, TargetID: targetID}
	return u, u.Validate()
}

func NewMediaPost(text string, mediaRefs []string) (ContentUnit, error) {
	u := ContentUnit{Kind: KindMedia, Text: text, MediaRefs: mediaRefs}
	return u, u.Validate()
}

func NewThread(texts []string) (ContentUnit, error) {
	u := ContentUnit{Kind: KindThread, Texts: texts}
	return u, u.Validate()
}

func NewRecurringSeries(texts []string, intervalMinutes, totalCount int) (ContentUnit, error) {
	u := ContentUnit{Kind: KindRecurring, Texts: texts, IntervalMinutes: intervalMinutes, TotalCount: totalCount}
	return u, u.Validate()
}

// Validate checks that required fields for the variant are present and that
// no foreign fields leak in from another variant.
func (u ContentUnit) Validate() error {
	if !u.Kind.valid() {
		return fmt.Errorf("unknown content kind %q: %w", u.Kind, ErrValidation)
	}

	switch u.Kind {
	case KindPost, KindReply, KindQuote, KindMedia:
		if strings.TrimSpace(u.Text) == "" {
			return fmt.Errorf("%s: text is required: %w", u.Kind, ErrValidation)
		}
		if len(u.Texts) != 0 || u.IntervalMinutes != 0 || u.TotalCount != 0 {
			return fmt.Errorf("%s: unexpected series fields: %w", u.Kind, ErrValidation)
		}
	}

	switch u.Kind {
	case KindPost:
		if u.TargetID != "" || len(u.MediaRefs) != 0 {
			return fmt.Errorf("post: unexpected target/media fields: %w", ErrValidation)
		}
	case KindReply, KindQuote:
		if strings.TrimSpace(u.TargetID) == "" {
			return fmt.Errorf("%s: target post id is required: %w", u.Kind, ErrValidation)
		}
		if len(u.MediaRefs) != 0 {
			return fmt.Errorf("%s: unexpected media refs: %w", u.Kind, ErrValidation)
		}
	case KindMedia:
		if len(u.MediaRefs) == 0 {
			return fmt.Errorf("media: at least one media ref is required: %w", ErrValidation)
		}
		if u.TargetID != "" {
			return fmt.Errorf("media: unexpected target id: %w", ErrValidation)
		}
	case KindThread, KindRecurring:
		if u.Text != "" || u.TargetID != "" || len(u.MediaRefs) != 0 {
			return fmt.Errorf("%s: unexpected single-post fields: %w", u.Kind, ErrValidation)
		}
		if len(u.Texts) == 0 {
			return fmt.Errorf("%s: at least one text is required: %w", u.Kind, ErrValidation)
		}
		for i, t := range u.Texts {
			if strings.TrimSpace(t) == "" {
				return fmt.Errorf("%s: text %d is empty: %w", u.Kind, i, ErrValidation)
			}
		}
		if u.Kind == KindThread && (u.IntervalMinutes != 0 || u.TotalCount != 0) {
			return fmt.Errorf("thread: unexpected series fields: %w", ErrValidation)
		}
		if u.Kind == KindRecurring {
			if u.IntervalMinutes < 1 {
				return fmt.Errorf("recurring: interval must be >= 1 minute: %w", ErrValidation)
			}
			if u.TotalCount < 1 {
				return fmt.Errorf("recurring: total count must be >= 1: %w", ErrValidation)
			}
		}
	}
	return nil
}

// ValidateDraft additionally rejects variants that cannot live in the draft
// store (recurring series are schedule-only).
func (u ContentUnit) ValidateDraft() error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.Kind == KindRecurring {
		return fmt.Errorf("recurring series cannot be drafted, schedule it instead: %w", ErrValidation)
	}
	return nil
}

type unitJSON struct {
	Kind            Kind     `json:"kind"`
	Text            string   `json:"text,omitempty"`
	TargetID        string   `json:"target_id,omitempty"`
	MediaRefs       []string `json:"media_refs,omitempty"`
	Texts           []string `json:"texts,omitempty"`
	IntervalMinutes int      `json:"interval_minutes,omitempty"`
	TotalCount      int      `json:"total_count,omitempty"`
}

func (u ContentUnit) MarshalJSON() ([]byte, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(unitJSON{
		Kind:            u.Kind,
		Text:            u.Text,
		TargetID:        u.TargetID,
		MediaRefs:       u.MediaRefs,
		Texts:           u.Texts,
		IntervalMinutes: u.IntervalMinutes,
		TotalCount:      u.TotalCount,
	})
}

func (u *ContentUnit) UnmarshalJSON(b []byte) error {
	var j unitJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	dec := ContentUnit{
		Kind:            j.Kind,
		Text:            j.Text,
		TargetID:        j.TargetID,
		MediaRefs:       j.MediaRefs,
		Texts:           j.Texts,
		IntervalMinutes: j.IntervalMinutes,
		TotalCount:      j.TotalCount,
	}
	if err := dec.Validate(); err != nil {
		return err
	}
	*u = dec
	return nil
}
