package remote

import (
	"context"
	"fmt"
	"net/url"
)

// TokenGrant is the auth endpoint's token response.
type TokenGrant struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
	RefreshToken string   `json:"refresh_token"`
	User         AuthUser `json:"user"`
}

// AuthUser identifies the authenticated user.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Profile is a row from the public profiles table.
type Profile struct {
	ID          string  `json:"id"`
	Username    *string `json:"username"`
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
	Level       *int    `json:"level"`
	TotalXP     *int64  `json:"total_xp"`
}

// RefreshToken exchanges a refresh token for a fresh access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenGrant, error) {
	body := struct {
		RefreshToken string `json:"refresh_token"`
	}{refreshToken}

	var grant TokenGrant
	if err := c.postJSON(ctx, "/auth/v1/token?grant_type=refresh_token", "", body, &grant); err != nil {
		return nil, err
	}
	if grant.AccessToken == "" {
		return nil, fmt.Errorf("token refresh: response carried no access token")
	}
	return &grant, nil
}

// FetchAuthUser resolves the user behind a JWT. Used when a grant
// response did not carry the user block.
func (c *Client) FetchAuthUser(ctx context.Context, userJWT string) (*AuthUser, error) {
	var u AuthUser
	if err := c.getJSON(ctx, "/auth/v1/user", userJWT, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, fmt.Errorf("auth user: response carried no id")
	}
	return &u, nil
}

// FetchProfile reads a user's public profile. A missing profile row
// yields nil, not an error.
func (c *Client) FetchProfile(ctx context.Context, userJWT, userID string) (*Profile, error) {
	path := "/rest/v1/profiles?id=eq." + url.QueryEscape(userID) +
		"&select=id,username,display_name,avatar_url,level,total_xp"
	var rows []Profile
	if err := c.getJSON(ctx, path, userJWT, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
