package publish

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"xpost/internal/content"
	"xpost/internal/store"
	"xpost/pkg/logx"
)

// Origin distinguishes who asked for the publish: a draft publish consults
// the failure policy for draft retention, a scheduled publish routes
// failures to the failed holding area (handled by the scheduler).
type Origin int

const (
	OriginDraft Origin = iota
	OriginScheduled
)

// Request is one publish invocation. PublishedCount carries recurring-series
// progress and is ignored for every other variant.
type Request struct {
	Unit           content.ContentUnit
	Origin         Origin
	PublishedCount int
}

// Result reports what a publish call actually did. PostIDs is ordered and
// populated even when the call failed partway, which is load-bearing for
// partial-thread reporting.
type Result struct {
	PostIDs []string

	// Recurring series only: progress after this tick and whether the
	// series reached its total.
	PublishedCount int
	Completed      bool
}

const defaultPostGap = time.Second

// Engine executes the publish algorithm for each content variant against
// the Publisher. It owns the failure policy for draft publishes.
type Engine struct {
	pub     Publisher
	drafts  *store.Store
	policy  *Policy
	log     logx.Logger
	postGap time.Duration
}

func NewEngine(pub Publisher, drafts *store.Store, policy *Policy, postGap time.Duration, log logx.Logger) *Engine {
	if postGap <= 0 {
		postGap = defaultPostGap
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{pub: pub, drafts: drafts, policy: policy, log: log, postGap: postGap}
}

// Publish runs the per-variant algorithm. Errors from the Publisher come
// back as *PublisherError; the partial Result is valid alongside the error.
func (e *Engine) Publish(ctx context.Context, req Request) (Result, error) {
	if err := req.Unit.Validate(); err != nil {
		return Result{}, err
	}

	switch req.Unit.Kind {
	case content.KindPost, content.KindReply, content.KindQuote, content.KindMedia:
		return e.publishSingle(ctx, req.Unit)
	case content.KindThread:
		return e.publishThread(ctx, req.Unit)
	case content.KindRecurring:
		if req.Origin != OriginScheduled {
			return Result{}, fmt.Errorf("recurring series publish outside scheduled context: %w", content.ErrValidation)
		}
		return e.publishRecurringTick(ctx, req.Unit, req.PublishedCount)
	default:
		return Result{}, fmt.Errorf("unknown content kind %q: %w", req.Unit.Kind, content.ErrValidation)
	}
}

// PublishDraft publishes a stored draft and applies the retention rules:
// gone on success, gone on failure only when the auto-delete policy is on.
// The returned bool reports whether the draft was removed.
func (e *Engine) PublishDraft(ctx context.Context, d store.Draft) (Result, bool, error) {
	res, err := e.Publish(ctx, Request{Unit: d.Unit, Origin: OriginDraft})
	if err == nil {
		if derr := e.drafts.DeleteDraft(ctx, d.ID); derr != nil {
			e.log.Warn("published draft could not be removed", logx.String("id", d.ID), logx.Err(derr))
		}
		e.log.Info("draft published",
			logx.String("id", d.ID),
			logx.String("kind", string(d.Unit.Kind)),
			logx.Strings("post_ids", res.PostIDs))
		return res, true, nil
	}

	removed := false
	if e.policy.AutoDelete() {
		if derr := e.drafts.DeleteDraft(ctx, d.ID); derr != nil {
			e.log.Warn("failed draft could not be removed", logx.String("id", d.ID), logx.Err(derr))
		} else {
			removed = true
		}
	}
	e.log.Error("draft publish failed",
		logx.String("id", d.ID),
		logx.String("kind", string(d.Unit.Kind)),
		logx.Int("published", len(res.PostIDs)),
		logx.Bool("draft_removed", removed),
		logx.Err(err))
	return res, removed, err
}

func (e *Engine) publishSingle(ctx context.Context, u content.ContentUnit) (Result, error) {
	req := PostRequest{Text: u.Text}
	switch u.Kind {
	case content.KindReply:
		req.InReplyTo = u.TargetID
	case content.KindQuote:
		req.QuoteID = u.TargetID
	case content.KindMedia:
		// Resolve media before the text call; an upload failure aborts the
		// publish so no post goes out with a dangling media reference.
		for _, ref := range u.MediaRefs {
			mediaID, err := e.pub.UploadMedia(ctx, ref)
			if err != nil {
				return Result{}, &PublisherError{Kind: u.Kind, Err: fmt.Errorf("upload %s: %w", ref, err)}
			}
			req.MediaIDs = append(req.MediaIDs, mediaID)
		}
	}

	id, err := e.pub.CreatePost(ctx, req)
	if err != nil {
		return Result{}, &PublisherError{Kind: u.Kind, Err: err}
	}
	return Result{PostIDs: []string{id}}, nil
}

func (e *Engine) publishThread(ctx context.Context, u content.ContentUnit) (Result, error) {
	// Fixed spacing between posts keeps the external rate limiter happy.
	// Burst 1 lets the first post go out immediately.
	limiter := rate.NewLimiter(rate.Every(e.postGap), 1)

	var published []string
	last := ""
	for i, text := range u.Texts {
		if err := limiter.Wait(ctx); err != nil {
			return Result{PostIDs: published}, &PublisherError{Kind: u.Kind, Published: published, Err: err}
		}
		id, err := e.pub.CreatePost(ctx, PostRequest{Text: text, InReplyTo: last})
		if err != nil {
			// Halt at the first failure. Already-published posts stay up:
			// the service has no delete-thread primitive in scope.
			return Result{PostIDs: published}, &PublisherError{
				Kind:      u.Kind,
				Published: published,
				Err:       fmt.Errorf("post %d of %d: %w", i+1, len(u.Texts), err),
			}
		}
		published = append(published, id)
		last = id
	}
	return Result{PostIDs: published}, nil
}

// publishRecurringTick publishes exactly one element of the series: the one
// at publishedCount mod len(texts). A failed tick reports the error without
// advancing, so the next tick retries the same element.
func (e *Engine) publishRecurringTick(ctx context.Context, u content.ContentUnit, publishedCount int) (Result, error) {
	if publishedCount < 0 || publishedCount >= u.TotalCount {
		return Result{}, fmt.Errorf("recurring progress %d out of range [0,%d): %w", publishedCount, u.TotalCount, content.ErrValidation)
	}

	idx := publishedCount % len(u.Texts)
	id, err := e.pub.CreatePost(ctx, PostRequest{Text: u.Texts[idx]})
	if err != nil {
		return Result{}, &PublisherError{Kind: u.Kind, Err: fmt.Errorf("element %d: %w", idx, err)}
	}

	count := publishedCount + 1
	return Result{
		PostIDs:        []string{id},
		PublishedCount: count,
		Completed:      count >= u.TotalCount,
	}, nil
}
