package authapi

import (
	"wicket/cmd/account"
	"wicket/cmd/internal/auth/session"
)

func toAccountResponse(a account.Account) accountResponse {
	return accountResponse{
		ID:          a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Roles:       a.Roles,
		CreatedAt:   a.CreatedAt,
	}
}

func toTokenResponse(issued session.Issued, includeRefresh bool) tokenResponse {
	res := tokenResponse{
		AccessToken:      issued.AccessToken,
		AccessExpiresAt:  issued.AccessExpiresAt,
		RefreshExpiresAt: issued.RefreshExpiresAt,
	}
	if includeRefresh {
		res.RefreshToken = issued.RefreshToken
	}
	return res
}
