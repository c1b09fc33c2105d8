package token_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-oauth2-server/internal/utils"
	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
)

func TestIntrospect(t *testing.T) {
	t.Run("access token round trip", func(t *testing.T) {
		f := setupManagerFixture(t)
		response, err := f.manager.IssueFromCode(context.Background(), f.client, f.grant(), testCodeVerifier)
		require.NoError(t, err)

		info := f.manager.Introspect(context.Background(), *response.AccessToken)
		require.True(t, info.Active)
		require.Equal(t, "openid profile", info.Scope)
		require.Equal(t, "web-app", utils.Value(info.ClientID))
		require.Equal(t, "user-42", utils.Value(info.Sub))
		require.Equal(t, testIssuer, utils.Value(info.Iss))
		require.Equal(t, testAudience, utils.Value(info.Aud))
		require.Equal(t, "Bearer", info.TokenType)
		require.Equal(t, f.now.Add(15*time.Minute).Unix(), utils.Value(info.Exp))
		require.Equal(t, f.now.Unix(), utils.Value(info.Iat))
		require.NotEmpty(t, utils.Value(info.Jti))
	})

	t.Run("refresh token round trip", func(t *testing.T) {
		f := setupManagerFixture(t)
		response, err := f.manager.IssueFromCode(context.Background(), f.client, f.grant(), testCodeVerifier)
		require.NoError(t, err)

		info := f.manager.Introspect(context.Background(), *response.RefreshToken)
		require.True(t, info.Active)
		require.Equal(t, "refresh_token", info.TokenType)
		require.Equal(t, "web-app", utils.Value(info.ClientID))
		require.Equal(t, "user-42", utils.Value(info.Sub))
		require.Equal(t, "openid profile", info.Scope)
	})

	t.Run("expired access token is inactive", func(t *testing.T) {
		f := setupManagerFixture(t)
		response, err := f.manager.IssueFromCode(context.Background(), f.client, f.grant(), testCodeVerifier)
		require.NoError(t, err)

		f.advance(16 * time.Minute)

		info := f.manager.Introspect(context.Background(), *response.AccessToken)
		require.False(t, info.Active)
		require.Nil(t, info.Jti)
	})

	t.Run("rotated away refresh token is inactive", func(t *testing.T) {
		f := setupManagerFixture(t)
		first, err := f.manager.IssueFromCode(context.Background(), f.client, f.grant(), testCodeVerifier)
		require.NoError(t, err)

		_, err = f.manager.IssueFromRefresh(context.Background(), f.client, *first.RefreshToken, "")
		require.NoError(t, err)

		info := f.manager.Introspect(context.Background(), *first.RefreshToken)
		require.False(t, info.Active)
	})

	t.Run("tampered token is inactive", func(t *testing.T) {
		f := setupManagerFixture(t)
		response, err := f.manager.IssueFromCode(context.Background(), f.client, f.grant(), testCodeVerifier)
		require.NoError(t, err)

		tampered := *response.AccessToken
		tampered = tampered[:len(tampered)-2] + "xx"

		info := f.manager.Introspect(context.Background(), tampered)
		require.False(t, info.Active)
	})

	t.Run("unknown and empty values are inactive", func(t *testing.T) {
		f := setupManagerFixture(t)

		require.False(t, f.manager.Introspect(context.Background(), "").Active)
		require.False(t, f.manager.Introspect(context.Background(), "   ").Active)
		require.False(t, f.manager.Introspect(context.Background(), "not-a-known-token").Active)
		require.False(t, f.manager.Introspect(context.Background(), "a.b.c").Active)
	})
}

func TestRevoke(t *testing.T) {
	t.Run("revoked access token introspects inactive", func(t *testing.T) {
		f := setupManagerFixture(t)
		response, err := f.manager.IssueFromCode(context.Background(), f.client, f.grant(), testCodeVerifier)
		require.NoError(t, err)

		require.NoError(t, f.manager.Revoke(context.Background(), *response.AccessToken, f.client.ID))

		info := f.manager.Introspect(context.Background(), *response.AccessToken)
		require.False(t, info.Active)
	})

	t.Run("revoking a refresh token cascades to its access tokens", func(t *testing.T) {
		f := setupManagerFixture(t)
		response, err := f.manager.IssueFromCode(context.Background(), f.client, f.grant(), testCodeVerifier)
		require.NoError(t, err)

		require.NoError(t, f.manager.Revoke(context.Background(), *response.RefreshToken, f.client.ID))

		require.False(t, f.manager.Introspect(context.Background(), *response.RefreshToken).Active)
		require.False(t, f.manager.Introspect(context.Background(), *response.AccessToken).Active)

		// The spent refresh token must no longer exchange either.
		_, err = f.manager.IssueFromRefresh(context.Background(), f.client, *response.RefreshToken, "")
		var oauthErr *oauthmodel.Error
		require.ErrorAs(t, err, &oauthErr)
		require.Equal(t, oauthmodel.ErrorCodeInvalidGrant, oauthErr.Code)
	})

	t.Run("another clients token is left untouched", func(t *testing.T) {
		f := setupManagerFixture(t)
		response, err := f.manager.IssueFromCode(context.Background(), f.client, f.grant(), testCodeVerifier)
		require.NoError(t, err)

		require.NoError(t, f.manager.Revoke(context.Background(), *response.AccessToken, "other-app"))

		info := f.manager.Introspect(context.Background(), *response.AccessToken)
		require.True(t, info.Active)
	})

	t.Run("unknown tokens are ignored", func(t *testing.T) {
		f := setupManagerFixture(t)

		require.NoError(t, f.manager.Revoke(context.Background(), "no-such-token", f.client.ID))
		require.NoError(t, f.manager.Revoke(context.Background(), "", f.client.ID))
	})
}
