package publish

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"xpost/internal/content"
	"xpost/internal/store"
	"xpost/pkg/logx"
)

type fakePublisher struct {
	calls     int
	requests  []PostRequest
	failCalls map[int]error // 1-based CreatePost call index -> error
	uploadErr error
	uploads   []string
}

func (f *fakePublisher) CreatePost(_ context.Context, req PostRequest) (string, error) {
	f.calls++
	if err := f.failCalls[f.calls]; err != nil {
		return "", err
	}
	f.requests = append(f.requests, req)
	return fmt.Sprintf("id-%d", f.calls), nil
}

func (f *fakePublisher) UploadMedia(_ context.Context, ref string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, ref)
	return "media-" + ref, nil
}

func newTestEngine(t *testing.T, pub Publisher, policy *Policy) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "xpost.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("store.Open error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if policy == nil {
		policy = NewPolicy()
	}
	return NewEngine(pub, st, policy, time.Millisecond, logx.Nop()), st
}

func mustUnit(t *testing.T) func(content.ContentUnit, error) content.ContentUnit {
	t.Helper()
	return func(u content.ContentUnit, err error) content.ContentUnit {
		if err != nil {
			t.Fatalf("build unit: %v", err)
		}
		return u
	}
}

func TestPublishSingleVariants(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	e, _ := newTestEngine(t, pub, nil)
	ctx := context.Background()

	units := []content.ContentUnit{
		mustUnit(t)(content.NewPost("plain")),
		mustUnit(t)(content.NewReply("re", "42")),
		mustUnit(t)(content.NewQuote("qt", "43")),
	}
	for _, u := range units {
		res, err := e.Publish(ctx, Request{Unit: u})
		if err != nil {
			t.Fatalf("Publish(%s) error: %v", u.Kind, err)
		}
		if len(res.PostIDs) != 1 {
			t.Fatalf("Publish(%s) returned %d ids", u.Kind, len(res.PostIDs))
		}
	}

	if pub.requests[1].InReplyTo != "42" {
		t.Fatalf("reply target not forwarded: %+v", pub.requests[1])
	}
	if pub.requests[2].QuoteID != "43" {
		t.Fatalf("quote target not forwarded: %+v", pub.requests[2])
	}
}

func TestPublishMediaUploadsBeforePost(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	e, _ := newTestEngine(t, pub, nil)

	u := mustUnit(t)(content.NewMediaPost("look", []string{"a.png", "b.png"}))
	res, err := e.Publish(context.Background(), Request{Unit: u})
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if len(res.PostIDs) != 1 {
		t.Fatalf("got %d ids", len(res.PostIDs))
	}
	got := pub.requests[0].MediaIDs
	if len(got) != 2 || got[0] != "media-a.png" || got[1] != "media-b.png" {
		t.Fatalf("media ids not resolved before post: %v", got)
	}
}

func TestPublishMediaUploadFailureAbortsPost(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{uploadErr: errors.New("boom")}
	e, _ := newTestEngine(t, pub, nil)

	u := mustUnit(t)(content.NewMediaPost("look", []string{"a.png"}))
	_, err := e.Publish(context.Background(), Request{Unit: u})

	var perr *PublisherError
	if !errors.As(err, &perr) {
		t.Fatalf("Publish = %v, want PublisherError", err)
	}
	if pub.calls != 0 {
		t.Fatalf("post was attempted after upload failure (%d calls)", pub.calls)
	}
}

func TestPublishThreadChainsReplies(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	e, _ := newTestEngine(t, pub, nil)

	u := mustUnit(t)(content.NewThread([]string{"a", "b", "c"}))
	res, err := e.Publish(context.Background(), Request{Unit: u})
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if len(res.PostIDs) != 3 {
		t.Fatalf("published %d posts, want 3", len(res.PostIDs))
	}
	if pub.requests[0].InReplyTo != "" {
		t.Fatalf("first post must not be a reply: %+v", pub.requests[0])
	}
	if pub.requests[1].InReplyTo != res.PostIDs[0] || pub.requests[2].InReplyTo != res.PostIDs[1] {
		t.Fatalf("thread not chained: %+v", pub.requests)
	}
}

func TestPublishThreadPartialFailure(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{failCalls: map[int]error{2: errors.New("rate limited")}}
	e, _ := newTestEngine(t, pub, nil)

	u := mustUnit(t)(content.NewThread([]string{"a", "b", "c"}))
	res, err := e.Publish(context.Background(), Request{Unit: u})

	var perr *PublisherError
	if !errors.As(err, &perr) {
		t.Fatalf("Publish = %v, want PublisherError", err)
	}
	if len(res.PostIDs) != 1 || len(perr.Published) != 1 {
		t.Fatalf("partial progress lost: result %v, error %v", res.PostIDs, perr.Published)
	}
	if perr.Published[0] != res.PostIDs[0] {
		t.Fatalf("result and error disagree on published ids")
	}
	if pub.calls != 2 {
		t.Fatalf("publishing continued past the failure (%d calls)", pub.calls)
	}
}

func TestPublishDraftRemovedOnSuccess(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	e, st := newTestEngine(t, pub, nil)
	ctx := context.Background()

	id, err := st.CreateDraft(ctx, mustUnit(t)(content.NewPost("ship it")))
	if err != nil {
		t.Fatalf("CreateDraft error: %v", err)
	}
	d, err := st.GetDraft(ctx, id)
	if err != nil {
		t.Fatalf("GetDraft error: %v", err)
	}

	_, removed, err := e.PublishDraft(ctx, d)
	if err != nil {
		t.Fatalf("PublishDraft error: %v", err)
	}
	if !removed {
		t.Fatal("draft not removed after successful publish")
	}
	if _, err := st.GetDraft(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("draft still present: %v", err)
	}
}

func TestPublishDraftFailureRespectsPolicy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		autoDelete  bool
		wantRemoved bool
	}{
		{name: "auto delete on", autoDelete: true, wantRemoved: true},
		{name: "auto delete off", autoDelete: false, wantRemoved: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pub := &fakePublisher{failCalls: map[int]error{2: errors.New("down")}}
			policy := NewPolicy()
			policy.SetAutoDelete(tt.autoDelete)
			e, st := newTestEngine(t, pub, policy)
			ctx := context.Background()

			id, err := st.CreateDraft(ctx, mustUnit(t)(content.NewThread([]string{"a", "b", "c"})))
			if err != nil {
				t.Fatalf("CreateDraft error: %v", err)
			}
			d, err := st.GetDraft(ctx, id)
			if err != nil {
				t.Fatalf("GetDraft error: %v", err)
			}

			res, removed, err := e.PublishDraft(ctx, d)
			if err == nil {
				t.Fatal("expected publish failure")
			}
			if len(res.PostIDs) != 1 {
				t.Fatalf("partial result = %v, want exactly 1 id", res.PostIDs)
			}
			if removed != tt.wantRemoved {
				t.Fatalf("removed = %v, want %v", removed, tt.wantRemoved)
			}

			_, gerr := st.GetDraft(ctx, id)
			if tt.wantRemoved && !errors.Is(gerr, store.ErrNotFound) {
				t.Fatalf("draft should be gone, got %v", gerr)
			}
			if !tt.wantRemoved {
				if gerr != nil {
					t.Fatalf("draft should be retained, got %v", gerr)
				}
				got, _ := st.GetDraft(ctx, id)
				if len(got.Unit.Texts) != 3 {
					t.Fatalf("retained draft content changed: %+v", got.Unit)
				}
			}
		})
	}
}

func TestRecurringTickCyclesThroughTexts(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	e, _ := newTestEngine(t, pub, nil)
	ctx := context.Background()

	u := mustUnit(t)(content.NewRecurringSeries([]string{"a", "b", "c"}, 10, 5))

	count := 0
	for tick := 0; tick < 5; tick++ {
		res, err := e.Publish(ctx, Request{Unit: u, Origin: OriginScheduled, PublishedCount: count})
		if err != nil {
			t.Fatalf("tick %d error: %v", tick, err)
		}
		count = res.PublishedCount
		wantDone := tick == 4
		if res.Completed != wantDone {
			t.Fatalf("tick %d: Completed = %v, want %v", tick, res.Completed, wantDone)
		}
	}
	if count != 5 {
		t.Fatalf("published count = %d, want 5", count)
	}

	var order []string
	for _, r := range pub.requests {
		order = append(order, r.Text)
	}
	want := []string{"a", "b", "c", "a", "b"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("publish order = %v, want %v", order, want)
		}
	}
}

func TestRecurringTickFailureDoesNotAdvance(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{failCalls: map[int]error{1: errors.New("flaky")}}
	e, _ := newTestEngine(t, pub, nil)
	ctx := context.Background()

	u := mustUnit(t)(content.NewRecurringSeries([]string{"a", "b"}, 10, 2))

	_, err := e.Publish(ctx, Request{Unit: u, Origin: OriginScheduled, PublishedCount: 0})
	var perr *PublisherError
	if !errors.As(err, &perr) {
		t.Fatalf("tick failure = %v, want PublisherError", err)
	}

	// Retrying the same index publishes the same element.
	res, err := e.Publish(ctx, Request{Unit: u, Origin: OriginScheduled, PublishedCount: 0})
	if err != nil {
		t.Fatalf("retry error: %v", err)
	}
	if res.PublishedCount != 1 || pub.requests[0].Text != "a" {
		t.Fatalf("retry did not republish the same element: %+v", pub.requests)
	}
}

func TestRecurringRejectedOutsideScheduledContext(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, &fakePublisher{}, nil)

	u := mustUnit(t)(content.NewRecurringSeries([]string{"a"}, 10, 1))
	_, err := e.Publish(context.Background(), Request{Unit: u, Origin: OriginDraft})
	if !errors.Is(err, content.ErrValidation) {
		t.Fatalf("Publish = %v, want ErrValidation", err)
	}
}
