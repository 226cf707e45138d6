package users

import (
	"context"

	"github.com/postboard/postboard/backend/go-services/internal/models"
)

// Service encapsulates user-related business logic
type Service struct {
	repo UserRepository
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

// UpsertFromClaims creates or updates a user from verified token claims.
// It returns (nil, nil) when the claims carry no subject.
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*models.User, error) {
	sub := firstString(claims, "sub", "id", "_id")
	if sub == "" {
		return nil, nil
	}
	u := &models.User{
		Sub:   sub,
		Email: firstString(claims, "email"),
		Name:  firstString(claims, "name", "preferred_username"),
		Roles: rolesOf(claims),
	}
	return s.repo.UpsertBySub(ctx, u)
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return s.repo.GetBySub(ctx, sub)
}

func firstString(claims map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := claims[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func rolesOf(claims map[string]interface{}) []string {
	var out []string
	add := func(v interface{}) {
		if arr, ok := v.([]interface{}); ok {
			for _, e := range arr {
				if s, ok := e.(string); ok && s != "" {
					out = append(out, s)
				}
			}
		}
	}
	if r, ok := claims["role"].(string); ok && r != "" {
		out = append(out, r)
	}
	add(claims["roles"])
	if ra, ok := claims["realm_access"].(map[string]interface{}); ok {
		add(ra["roles"])
	}
	return out
}
