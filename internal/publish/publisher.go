package publish

import "context"

// PostRequest is one outbound post. At most one of InReplyTo/QuoteID is set.
type PostRequest struct {
	Text      string
	InReplyTo string
	QuoteID   string
	MediaIDs  []string
}

// Publisher performs the actual network call to the posting service. It owns
// authentication, transport and response parsing; the engine only sees post
// ids and errors.
type Publisher interface {
	// CreatePost publishes one post and returns its id.
	CreatePost(ctx context.Context, req PostRequest) (string, error)
	// UploadMedia resolves a media reference into a service-side media id.
	UploadMedia(ctx context.Context, ref string) (string, error)
}
