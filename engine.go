package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/ecomshop/authcore/password"
	"github.com/ecomshop/authcore/rolecache"
	"github.com/ecomshop/authcore/token"
	"golang.org/x/oauth2"
)

// Engine is the authentication and authorization core. Build one through
// [Builder]; all methods are safe for concurrent use afterwards.
type Engine struct {
	config Config

	users  UserRepository
	roles  RoleRepository
	mailer EmailSender

	devices      DeviceRegistry
	refreshStore RefreshTokenStore
	codes        VerificationCodeStore
	roleCache    rolecache.Cache

	codec  *token.Codec
	hasher *password.Hasher
	totp   *totpManager

	audit   *auditDispatcher
	metrics *Metrics

	google      *oauth2.Config
	userinfoURL string
}

// Close stops the audit dispatcher after draining buffered events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// MetricsSnapshot exposes the counter registry for the exporters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Authorize verifies an access token and checks that its role grants
// path+method. It returns the verified claims on success.
//
// Failures are deliberately split: a bad token is ErrInvalidAccessToken
// (unauthenticated), a verified identity without the permission is
// ErrPermissionDenied (forbidden). Role lookups go through the
// role-permission cache, so a revoked permission can stay effective for up
// to one cache TTL.
func (e *Engine) Authorize(ctx context.Context, accessToken, path, method string) (*token.AccessClaims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricAuthorizeLatency, time.Since(start))
	}()

	claims, err := e.codec.VerifyAccess(accessToken)
	if err != nil {
		e.metrics.Inc(MetricAuthorizeDenied)
		return nil, ErrInvalidAccessToken
	}

	e.metrics.Inc(MetricRoleCacheLookup)
	snapshot, err := e.roleCache.Get(ctx, claims.RoleID)
	if err != nil {
		e.metrics.Inc(MetricAuthorizeDenied)
		e.emitAudit(ctx, auditEventAuthorizeDenied, false, claims.UserID, "", claims.DeviceID, err, map[string]string{
			"path":   path,
			"method": method,
		})
		if errors.Is(err, ErrRoleNotFound) {
			return nil, ErrPermissionDenied
		}
		return nil, err
	}

	if !snapshot.Allows(path, method) {
		e.metrics.Inc(MetricAuthorizeDenied)
		e.emitAudit(ctx, auditEventAuthorizeDenied, false, claims.UserID, "", claims.DeviceID, ErrPermissionDenied, map[string]string{
			"path":   path,
			"method": method,
		})
		return nil, ErrPermissionDenied
	}

	e.metrics.Inc(MetricAuthorizeAllowed)
	return claims, nil
}

// VerifyAccessToken verifies an access token without an authorization check.
// Useful for endpoints that only need the caller's identity.
func (e *Engine) VerifyAccessToken(accessToken string) (*token.AccessClaims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.codec.VerifyAccess(accessToken)
	if err != nil {
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

// issueTokens signs a fresh pair for the user on the given device and stores
// the refresh row keyed by the new refresh token.
func (e *Engine) issueTokens(ctx context.Context, user *User, deviceID int64) (*TokenPair, error) {
	accessToken, err := e.codec.SignAccess(token.AccessPayload{
		UserID:   user.ID,
		DeviceID: deviceID,
		RoleID:   user.RoleID,
		RoleName: user.RoleName,
	})
	if err != nil {
		return nil, err
	}

	refreshToken, err := e.codec.SignRefresh(user.ID)
	if err != nil {
		return nil, err
	}

	rec := RefreshRecord{
		UserID:    user.ID,
		DeviceID:  deviceID,
		ExpiresAt: time.Now().Add(e.config.Token.RefreshTTL),
	}
	if err := e.refreshStore.Save(ctx, refreshToken, rec, e.config.Token.RefreshTTL); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// roleLoader adapts the RoleRepository to the cache loader contract,
// counting hits and misses around it.
func (e *Engine) roleLoader() rolecache.Loader {
	return func(ctx context.Context, roleID int64) (*rolecache.Snapshot, error) {
		e.metrics.Inc(MetricRoleCacheMiss)

		role, err := e.roles.FindActiveWithPermissions(ctx, roleID)
		if err != nil {
			return nil, err
		}
		if !role.Active {
			return nil, ErrRoleNotFound
		}

		permissions := make(map[string]bool, len(role.Permissions))
		for _, p := range role.Permissions {
			permissions[rolecache.PermissionKey(p.Path, p.Method)] = true
		}

		return &rolecache.Snapshot{
			RoleID:      role.ID,
			Name:        role.Name,
			Permissions: permissions,
		}, nil
	}
}
