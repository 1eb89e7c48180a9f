package token

import "cardledger/internal/platform/middleware"

// MiddlewareAdapter bridges the token service with the middleware's
// SessionValidator interface without coupling the packages.
type MiddlewareAdapter struct {
	service *Service
}

func NewMiddlewareAdapter(service *Service) *MiddlewareAdapter {
	return &MiddlewareAdapter{service: service}
}

func (a *MiddlewareAdapter) ValidateToken(tokenString string) (*middleware.WalletClaims, error) {
	claims, err := a.service.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.WalletClaims{Address: claims.Address}, nil
}
