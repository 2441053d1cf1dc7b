package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/pders01/fwrdpost/internal/config"
	"github.com/pders01/fwrdpost/internal/model"
)

// OAuthRefresher refreshes tokens against an OAuth2 token endpoint.
type OAuthRefresher struct {
	conf   *oauth2.Config
	client *http.Client
	now    func() time.Time
}

func NewOAuthRefresher(cfg config.SessionConfig, client *http.Client) *OAuthRefresher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &OAuthRefresher{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		client: client,
		now:    time.Now,
	}
}

func (r *OAuthRefresher) Refresh(ctx context.Context, userID, refreshToken string) (model.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	issuedAt := r.now()

	src := r.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			return model.Token{}, fmt.Errorf("%w: token endpoint answered %d: %s",
				model.ErrUpstreamRejected, rerr.Response.StatusCode, rerr.ErrorCode)
		}
		return model.Token{}, fmt.Errorf("%w: refreshing token: %w", model.ErrNetwork, err)
	}

	out := model.Token{
		UserID:      userID,
		AccessToken: tok.AccessToken,
		IssuedAt:    issuedAt,
	}
	if tok.RefreshToken != "" {
		rt := tok.RefreshToken
		out.RefreshToken = &rt
	}
	if !tok.Expiry.IsZero() {
		v := tok.Expiry.Sub(issuedAt).Round(time.Second)
		out.Validity = &v
	}
	return out, nil
}
