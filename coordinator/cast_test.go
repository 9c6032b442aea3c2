package coordinator

import (
	"context"
	"testing"

	"github.com/pkg/errors"
)

type rotateCall struct {
	name        string
	permissions []string
}

type fakeRotator struct {
	secret string
	err    error
	calls  []rotateCall
}

func (r *fakeRotator) Rotate(_ context.Context, name string, permissions []string) (string, error) {
	r.calls = append(r.calls, rotateCall{name: name, permissions: permissions})
	if r.err != nil {
		return "", r.err
	}
	return r.secret, nil
}

type fakeResolver struct {
	contentType string
	err         error
	calls       []string
}

func (r *fakeResolver) ResolveURL(_ context.Context, rawURL string) (string, error) {
	r.calls = append(r.calls, rawURL)
	if r.err != nil {
		return "", r.err
	}
	return r.contentType, nil
}

func newCastCoordinator(sdk SDK, rot *fakeRotator, res *fakeResolver) *Coordinator {
	c := New(sdk, rot, res, "test-app")
	c.Initialize()
	return c
}

func TestCastResourceLoadsAuthenticatedReference(t *testing.T) {
	loaded := &fakeMedia{state: PlayerBuffering}
	session := &fakeSession{loadMedia: loaded}
	sdk := &fakeSDK{available: true, session: session}
	rot := &fakeRotator{secret: "s3cr3t"}
	res := &fakeResolver{contentType: "image/jpeg"}

	c := newCastCoordinator(sdk, rot, res)

	result, err := c.CastResource(context.Background(), "https://host/a.jpg?x=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rot.calls) != 1 {
		t.Fatalf("expected 1 credential rotation, got %d", len(rot.calls))
	}
	if rot.calls[0].name != CredentialName {
		t.Fatalf("credential name = %q, want %q", rot.calls[0].name, CredentialName)
	}
	if len(rot.calls[0].permissions) != 1 || rot.calls[0].permissions[0] != PermissionViewAssets {
		t.Fatalf("unexpected permissions %v", rot.calls[0].permissions)
	}

	if len(session.loadCalls) != 1 {
		t.Fatalf("expected 1 load call, got %d", len(session.loadCalls))
	}
	call := session.loadCalls[0]
	if call.ref != "https://host/a.jpg?x=1&apiKey=s3cr3t" {
		t.Fatalf("authenticated reference = %q", call.ref)
	}
	if call.contentType != "image/jpeg" {
		t.Fatalf("content type = %q, want image/jpeg", call.contentType)
	}

	if result.Media != Media(loaded) {
		t.Fatal("expected load result to carry the loaded media")
	}
	// Fresh load forces PLAYING no matter what the media reports.
	if got := c.Status().PlayerState; got != PlayerPlaying {
		t.Fatalf("player state after fresh load = %v, want PLAYING", got)
	}
	if len(loaded.updateFns) != 1 {
		t.Fatalf("expected update listener attached to loaded media, got %d", len(loaded.updateFns))
	}
}

func TestCastResourceSessionNoticeKeepsSingleUpdateListener(t *testing.T) {
	loaded := &fakeMedia{state: PlayerBuffering}
	session := &fakeSession{loadMedia: loaded, notifyOnLoad: true}
	sdk := &fakeSDK{available: true, session: session}

	c := newCastCoordinator(sdk, &fakeRotator{secret: "s3cr3t"}, &fakeResolver{contentType: "image/jpeg"})
	c.HandleSessionAvailable(session)

	if _, err := c.CastResource(context.Background(), "https://host/a.jpg?x=1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The session announces the loaded media on its own and the load path
	// records it again, yet updates must only be delivered once.
	if len(loaded.updateFns) != 1 {
		t.Fatalf("expected a single update listener, got %d", len(loaded.updateFns))
	}
	if got := c.Status().PlayerState; got != PlayerPlaying {
		t.Fatalf("player state after load = %v, want PLAYING", got)
	}
}

func TestCastResourceWithoutSessionStillRotatesAndProbes(t *testing.T) {
	sdk := &fakeSDK{available: true} // no current session
	rot := &fakeRotator{secret: "s3cr3t"}
	res := &fakeResolver{contentType: "video/mp4"}

	c := newCastCoordinator(sdk, rot, res)

	_, err := c.CastResource(context.Background(), "https://host/b.mp4?x=1")
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	// The credential and metadata steps still happened, only the load was
	// skipped.
	if len(rot.calls) != 1 {
		t.Fatalf("expected credential rotation, got %d calls", len(rot.calls))
	}
	if len(res.calls) != 1 {
		t.Fatalf("expected metadata probe, got %d calls", len(res.calls))
	}
}

func TestCastResourceAbortsWhenCredentialUnavailable(t *testing.T) {
	session := &fakeSession{loadMedia: &fakeMedia{}}
	sdk := &fakeSDK{available: true, session: session}
	rot := &fakeRotator{err: errors.New("service down")}
	res := &fakeResolver{contentType: "image/jpeg"}

	c := newCastCoordinator(sdk, rot, res)

	_, err := c.CastResource(context.Background(), "https://host/a.jpg?x=1")
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
	if len(session.loadCalls) != 0 {
		t.Fatalf("expected no load calls, got %d", len(session.loadCalls))
	}
}

func TestCastResourceAbortsWithoutContentType(t *testing.T) {
	session := &fakeSession{loadMedia: &fakeMedia{}}
	sdk := &fakeSDK{available: true, session: session}
	rot := &fakeRotator{secret: "s3cr3t"}
	res := &fakeResolver{err: errors.New("no content-type header")}

	c := newCastCoordinator(sdk, rot, res)

	_, err := c.CastResource(context.Background(), "https://host/a.jpg?x=1")
	if !errors.Is(err, ErrNoContentType) {
		t.Fatalf("expected ErrNoContentType, got %v", err)
	}
	if len(session.loadCalls) != 0 {
		t.Fatalf("expected no load calls, got %d", len(session.loadCalls))
	}
}

func TestCastResourceNoOpWhenUninitialized(t *testing.T) {
	rot := &fakeRotator{secret: "s3cr3t"}
	res := &fakeResolver{contentType: "image/jpeg"}
	c := New(&fakeSDK{available: false}, rot, res, "test-app")
	c.Initialize()

	_, err := c.CastResource(context.Background(), "https://host/a.jpg?x=1")
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if len(rot.calls) != 0 || len(res.calls) != 0 {
		t.Fatal("expected no side effects from an uninitialized coordinator")
	}
}

func TestCastResourceLoadFailurePropagates(t *testing.T) {
	session := &fakeSession{loadErr: errors.New("receiver rejected load")}
	sdk := &fakeSDK{available: true, session: session}
	c := newCastCoordinator(sdk, &fakeRotator{secret: "k"}, &fakeResolver{contentType: "image/png"})

	_, err := c.CastResource(context.Background(), "https://host/c.png?x=1")
	if err == nil {
		t.Fatal("expected load error to propagate")
	}
	// A failed load must not flip the optimistic PLAYING state.
	if got := c.Status().PlayerState; got != PlayerIdle {
		t.Fatalf("player state after failed load = %v, want IDLE", got)
	}
}
