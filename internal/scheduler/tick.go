package scheduler

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"xpost/internal/content"
	"xpost/internal/publish"
	"xpost/internal/store"
	"xpost/pkg/logx"
)

// tick is one execution of the due-item scan. Cron fires on the fixed
// period regardless of how long the previous tick took, so an overlap guard
// turns a late fire into a skip.
func (s *Service) tick() {
	s.runMu.Lock()
	if s.tickRunning {
		s.runMu.Unlock()
		s.log.Debug("tick overlap; skipping")
		return
	}
	s.tickRunning = true
	s.runMu.Unlock()
	defer func() {
		s.runMu.Lock()
		s.tickRunning = false
		s.runMu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in scheduler tick", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	s.mu.Lock()
	stopCh := s.stopCh
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	select {
	case <-stopCh:
		return
	default:
	}

	ctx := context.Background()
	now := time.Now()
	due, err := s.st.ListDue(ctx, now)
	if err != nil {
		s.log.Warn("due scan failed", logx.Err(err))
		return
	}
	if len(due) == 0 {
		return
	}
	s.log.Debug("tick", logx.Int("due", len(due)))

	// Sequential by design: thread publication depends on strict ordering
	// and the rate-limit gap is the bottleneck either way.
	for _, it := range due {
		select {
		case <-stopCh:
			return
		default:
		}
		s.processDue(ctx, it.ID)
	}
}

func (s *Service) processDue(ctx context.Context, id string) {
	it, err := s.st.Claim(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		// Another tick got it first; by construction this is a no-op skip.
		s.log.Debug("item already claimed", logx.String("id", id))
		return
	}
	if err != nil {
		s.log.Warn("claim failed", logx.String("id", id), logx.Err(err))
		return
	}

	res, err := s.engine.Publish(ctx, publish.Request{
		Unit:           it.Unit,
		Origin:         publish.OriginScheduled,
		PublishedCount: it.PublishedCount,
	})

	switch {
	case err == nil && it.Unit.Kind == content.KindRecurring && !res.Completed:
		it.PublishedCount = res.PublishedCount
		it.CurrentIndex = res.PublishedCount % len(it.Unit.Texts)
		it.DueAt = time.Now().Add(time.Duration(it.Unit.IntervalMinutes) * time.Minute)
		if uerr := s.st.UpdateScheduled(ctx, it); uerr != nil {
			s.log.Error("recurring reschedule failed", logx.String("id", it.ID), logx.Err(uerr))
			return
		}
		s.log.Info("recurring element published",
			logx.String("id", it.ID),
			logx.Int("published_count", it.PublishedCount),
			logx.Time("next_due", it.DueAt))

	case err == nil:
		if rerr := s.st.RemoveScheduled(ctx, it.ID); rerr != nil {
			s.log.Warn("published item could not be removed", logx.String("id", it.ID), logx.Err(rerr))
		}
		s.log.Info("scheduled item published",
			logx.String("id", it.ID),
			logx.String("kind", string(it.Unit.Kind)),
			logx.Strings("post_ids", res.PostIDs))

	case it.Unit.Kind == content.KindRecurring:
		// Leave the item untouched so the next tick retries the same
		// element; only the claim is dropped.
		if rerr := s.st.Release(ctx, it.ID); rerr != nil {
			s.log.Warn("claim release failed", logx.String("id", it.ID), logx.Err(rerr))
		}
		s.log.Warn("recurring tick failed; will retry same element",
			logx.String("id", it.ID),
			logx.Int("published_count", it.PublishedCount),
			logx.Err(err))

	default:
		if merr := s.st.MoveToFailed(ctx, it.ID, err.Error()); merr != nil {
			s.log.Error("move to failed holding failed", logx.String("id", it.ID), logx.Err(merr))
			return
		}
		s.log.Error("scheduled publish failed; item held for review",
			logx.String("id", it.ID),
			logx.String("kind", string(it.Unit.Kind)),
			logx.Int("published", len(res.PostIDs)),
			logx.Err(err))
	}
}
