package authcore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// GoogleState rides through the OAuth redirect so the callback can bind the
// session device to the browser that started the flow.
type GoogleState struct {
	UserAgent string `json:"userAgent"`
	IP        string `json:"ip"`
}

type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// GoogleAuthURL returns the consent-screen URL. The client's User-Agent and
// IP are taken from ctx and carried in the state parameter.
func (e *Engine) GoogleAuthURL(ctx context.Context) (string, error) {
	if e == nil || e.google == nil {
		return "", ErrEngineNotReady
	}

	state, err := encodeGoogleState(GoogleState{
		UserAgent: userAgentFromContext(ctx),
		IP:        clientIPFromContext(ctx),
	})
	if err != nil {
		return "", err
	}

	return e.google.AuthCodeURL(state), nil
}

// GoogleCallback completes federated login: it exchanges the authorization
// code, fetches the profile, finds or creates the account, registers the
// device from the state metadata, and issues a token pair. Password and 2FA
// checks do not apply; Google already authenticated the user.
//
// New accounts get the client role and a random uuid password, hashed like
// any other, so the account can later go through the normal forgot-password
// flow to set a real one.
func (e *Engine) GoogleCallback(ctx context.Context, code, state string) (*TokenPair, error) {
	if e == nil || e.google == nil {
		return nil, ErrEngineNotReady
	}

	meta := decodeGoogleState(state)

	oauthToken, err := e.google.Exchange(ctx, code)
	if err != nil {
		e.metrics.Inc(MetricGoogleLoginFailure)
		e.emitAudit(ctx, auditEventGoogleLoginFailure, false, 0, "", 0, err, nil)
		return nil, fmt.Errorf("google code exchange: %w", err)
	}

	info, err := e.fetchGoogleUserInfo(ctx, oauthToken.AccessToken)
	if err != nil {
		e.metrics.Inc(MetricGoogleLoginFailure)
		e.emitAudit(ctx, auditEventGoogleLoginFailure, false, 0, "", 0, err, nil)
		return nil, err
	}
	if info.Email == "" {
		e.metrics.Inc(MetricGoogleLoginFailure)
		return nil, ErrInvalidGoogleEmail
	}

	user, err := e.findOrCreateGoogleUser(ctx, info)
	if err != nil {
		e.metrics.Inc(MetricGoogleLoginFailure)
		e.emitAudit(ctx, auditEventGoogleLoginFailure, false, 0, info.Email, 0, err, nil)
		return nil, err
	}

	device, err := e.devices.Register(ctx, user.ID, meta.UserAgent, meta.IP)
	if err != nil {
		e.metrics.Inc(MetricGoogleLoginFailure)
		return nil, fmt.Errorf("%w: %v", ErrDeviceCreationFailed, err)
	}

	pair, err := e.issueTokens(ctx, user, device.ID)
	if err != nil {
		e.metrics.Inc(MetricGoogleLoginFailure)
		return nil, err
	}

	e.metrics.Inc(MetricGoogleLoginSuccess)
	e.emitAudit(ctx, auditEventGoogleLoginSuccess, true, user.ID, user.Email, device.ID, nil, nil)

	return pair, nil
}

func (e *Engine) fetchGoogleUserInfo(ctx context.Context, accessToken string) (*googleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.userinfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google userinfo: unexpected status %d", resp.StatusCode)
	}

	info := &googleUserInfo{}
	if err := json.NewDecoder(resp.Body).Decode(info); err != nil {
		return nil, fmt.Errorf("google userinfo: %w", err)
	}

	return info, nil
}

func (e *Engine) findOrCreateGoogleUser(ctx context.Context, info *googleUserInfo) (*User, error) {
	user, err := e.users.FindByEmail(ctx, info.Email)
	if err == nil {
		return user, nil
	}

	// First federated login: the random password keeps the credential
	// column non-empty without granting password access to anyone.
	hash, err := e.hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}

	roleID, err := e.roles.ClientRoleID(ctx)
	if err != nil {
		return nil, err
	}

	return e.users.Create(ctx, CreateUser{
		Email:        info.Email,
		Name:         info.Name,
		Avatar:       info.Picture,
		PasswordHash: hash,
		RoleID:       roleID,
	})
}

func encodeGoogleState(state GoogleState) (string, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// decodeGoogleState never fails: a missing or tampered state degrades to
// placeholder device metadata rather than blocking the login.
func decodeGoogleState(state string) GoogleState {
	unknown := GoogleState{UserAgent: "Unknown", IP: "Unknown"}

	raw, err := base64.StdEncoding.DecodeString(state)
	if err != nil {
		return unknown
	}

	decoded := GoogleState{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return unknown
	}
	if decoded.UserAgent == "" {
		decoded.UserAgent = "Unknown"
	}
	if decoded.IP == "" {
		decoded.IP = "Unknown"
	}

	return decoded
}
