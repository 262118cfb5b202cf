package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"promo-controlplane/pkg/config"
	"promo-controlplane/pkg/errutil"

	"go.uber.org/fx"
)

var Module = fx.Module("client.identity",
	fx.Provide(NewIdentityClient),
)

// User is the identity service's view of an account.
type User struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// IdentityService resolves user accounts owned by the external auth service.
type IdentityService interface {
	ResolveUserByEmail(ctx context.Context, email string) (*User, error)
}

type IdentityClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

type IdentityParams struct {
	fx.In

	Config *config.Config
}

func NewIdentityClient(p IdentityParams) IdentityService {
	timeout := p.Config.Identity.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &IdentityClient{
		http:    &http.Client{Timeout: timeout},
		baseURL: p.Config.Identity.BaseURL,
		apiKey:  p.Config.Identity.APIKey,
	}
}

// ResolveUserByEmail returns NotFound when the account does not exist and
// BadGateway on any transport or upstream failure, so callers can distinguish
// "no such user" from "try again later". Retries belong to the caller.
func (c *IdentityClient) ResolveUserByEmail(ctx context.Context, email string) (*User, error) {
	endpoint := fmt.Sprintf("%s/internal/users/by-email/%s", c.baseURL, url.PathEscape(email))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errutil.Internal("failed to build identity request", err)
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errutil.BadGateway("identity service unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errutil.NotFound(fmt.Sprintf("user not found for email %s", email), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, errutil.BadGateway(fmt.Sprintf("identity service returned %d", resp.StatusCode), nil)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, errutil.BadGateway("failed to decode identity response", err)
	}

	if user.ID == "" {
		return nil, errutil.NotFound(fmt.Sprintf("user not found for email %s", email), nil)
	}

	return &user, nil
}
