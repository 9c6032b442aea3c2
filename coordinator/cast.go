package coordinator

import (
	"context"

	"github.com/pkg/errors"
)

const (
	// CredentialName is the fixed purpose under which cast credentials are
	// registered with the key-management service.
	CredentialName = "cast"
	// PermissionViewAssets is the only scope a cast credential carries.
	PermissionViewAssets = "asset.view"
)

var (
	ErrNotInitialized = errors.New("casting framework not initialized")
	ErrNoCredential   = errors.New("no credential could be obtained")
	ErrNoContentType  = errors.New("no content type could be determined")
	ErrNoSession      = errors.New("no active casting session")
)

// CastResource loads the given resource on the active session. It issues a
// fresh single-use credential (revoking any previous one of the same purpose),
// determines the resource's content type, and sends an authenticated load
// request. Each failure aborts this one operation only, nothing is retried.
//
// The active session is re-read from the framework at the point of use, not
// cached at entry: state may change while the credential and metadata calls
// are in flight. Concurrent calls are not safe, a second call revokes the
// first call's credential mid-flight; serialize at the call site if needed.
func (c *Coordinator) CastResource(ctx context.Context, rawURL string) (LoadResult, error) {
	if !c.IsInitialized() {
		c.Log().Warn().Str("Method", "CastResource").Msg("coordinator not initialized, ignoring cast request")
		return LoadResult{}, ErrNotInitialized
	}

	secret, err := c.creds.Rotate(ctx, CredentialName, []string{PermissionViewAssets})
	if err != nil {
		c.Log().Error().Str("Method", "CastResource").Err(err).Msg("credential rotation failed")
		return LoadResult{}, errors.Wrap(ErrNoCredential, err.Error())
	}

	contentType, err := c.types.ResolveURL(ctx, rawURL)
	if err != nil {
		c.Log().Error().Str("Method", "CastResource").Str("URL", rawURL).Err(err).Msg("content type resolution failed")
		return LoadResult{}, errors.Wrap(ErrNoContentType, err.Error())
	}

	// Asset URLs always carry a query string, so appending with "&" keeps
	// the reference in the exact shape the receiver caches on.
	authenticated := rawURL + "&apiKey=" + secret

	session, ok := c.sdk.CurrentSession()
	if !ok {
		c.Log().Error().Str("Method", "CastResource").Msg("no active session, not loading")
		return LoadResult{}, ErrNoSession
	}

	media, err := session.Load(ctx, authenticated, contentType)
	if err != nil {
		c.Log().Error().Str("Method", "CastResource").Err(err).Msg("load request failed")
		return LoadResult{}, errors.Wrap(err, "load request")
	}

	c.handleMediaDiscovered(CauseLoadMedia, media)
	c.Log().Debug().Str("Method", "CastResource").Str("ContentType", contentType).Msg("load request issued")
	return LoadResult{Media: media}, nil
}
