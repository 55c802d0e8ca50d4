package ranking

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core/user"
)

type (
	// Repository exposes the ranking aggregations maintained by the datastore.
	Repository interface {
		// Rankings returns the top entries by rank position.
		Rankings(ctx context.Context, limit int) ([]Entry, error)
		// MyRanking returns the user's entry, or nil if the user has no ranking yet.
		MyRanking(ctx context.Context, userID string) (*Entry, error)
		// UserTestResults returns the user's latest test results, most recent first.
		UserTestResults(ctx context.Context, userID string, limit int) ([]TestResult, error)
	}

	// UserDirectory lists user accounts.
	UserDirectory interface {
		ListUsers(ctx context.Context) ([]user.User, error)
	}

	Service interface {
		Rankings(ctx context.Context, limit int) ([]Entry, error)
		AdminRankings(ctx context.Context) ([]Entry, error)
		MyRanking(ctx context.Context, userID string) (*Entry, error)
		MyResults(ctx context.Context, userID string, limit int) ([]TestResult, error)
	}

	service struct {
		repo  Repository
		users UserDirectory
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, users UserDirectory) Service {
	return &service{repo: repo, users: users}
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > AdminLimit {
		return AdminLimit
	}
	return limit
}

func (svc *service) Rankings(ctx context.Context, limit int) ([]Entry, error) {
	return svc.repo.Rankings(ctx, clampLimit(limit, DefaultLimit))
}

// AdminRankings returns the top entries along with the students' emails.
func (svc *service) AdminRankings(ctx context.Context) ([]Entry, error) {
	entries, err := svc.repo.Rankings(ctx, AdminLimit)
	if err != nil {
		return nil, errors.Wrap(err, "listing rankings")
	}
	users, err := svc.users.ListUsers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing users")
	}

	emails := make(map[string]string, len(users))
	for _, u := range users {
		emails[u.ID] = u.Email
	}
	for i := range entries {
		entries[i].Email = emails[entries[i].UserID]
	}
	return entries, nil
}

func (svc *service) MyRanking(ctx context.Context, userID string) (*Entry, error) {
	return svc.repo.MyRanking(ctx, userID)
}

func (svc *service) MyResults(ctx context.Context, userID string, limit int) ([]TestResult, error) {
	return svc.repo.UserTestResults(ctx, userID, clampLimit(limit, DefaultResultsLimit))
}
