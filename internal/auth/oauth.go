package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kgdatatech/securestack/internal/model"
	"github.com/kgdatatech/securestack/internal/oauth"
)

// HandleOAuthLogin finds or creates the account behind a Google
// identity and opens a server-side session for it. OAuth accounts are
// created verified and without a password. An existing password
// account with the same email is not linked; the login is rejected
// with ErrUserExists and the caller bounces back to the login page.
func (s *Service) HandleOAuthLogin(ctx context.Context, info *oauth.UserInfo, meta RequestMeta) (*model.User, string, error) {
	u, err := s.users.GetByGoogleID(ctx, info.GoogleID)
	if err != nil {
		return nil, "", err
	}

	if u == nil {
		email := strings.ToLower(info.Email)
		existing, err := s.users.GetByEmail(ctx, email)
		if err != nil {
			return nil, "", err
		}
		if existing != nil {
			return nil, "", fmt.Errorf("%w: email already registered", model.ErrUserExists)
		}

		u = &model.User{
			Username:   oauthUsername(email),
			Email:      email,
			Name:       info.Name,
			Role:       model.RoleUser,
			GoogleID:   info.GoogleID,
			IsVerified: true,
		}
		if err := s.users.Create(ctx, u); err != nil {
			// Username collisions with unrelated accounts get a
			// suffix derived from the Google id.
			if errors.Is(err, model.ErrUserExists) && len(info.GoogleID) >= 6 {
				u.Username = u.Username + "-" + info.GoogleID[:6]
				err = s.users.Create(ctx, u)
			}
			if err != nil {
				return nil, "", err
			}
		}
		s.recorder.Record(model.AnalyticsEvent{
			Type: model.EventSignup, UserID: u.ID, IP: meta.IP,
			Referrer: meta.Referrer, Status: model.EventSuccess,
			Details: map[string]string{"provider": "google"},
		})
	}

	sid, err := s.sessions.Create(ctx, u.ID)
	if err != nil {
		return nil, "", err
	}

	s.recorder.Record(model.AnalyticsEvent{
		Type: model.EventLogin, UserID: u.ID, IP: meta.IP,
		Referrer: meta.Referrer, Status: model.EventSuccess,
		Details: map[string]string{"provider": "google"},
	})
	return u, sid, nil
}

// oauthUsername derives a username from the email local part.
func oauthUsername(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return email
	}
	return local
}
