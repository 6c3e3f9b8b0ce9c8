package enrich

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/mg-platform/enrich-cli/internal/model"
	"github.com/mg-platform/enrich-cli/internal/search"
)

type mockSearch struct {
	mock.Mock
}

func (m *mockSearch) SearchCompanyWebsite(ctx context.Context, name, locality string) search.Result {
	args := m.Called(ctx, name, locality)
	return args.Get(0).(search.Result)
}

type mockFallback struct {
	mock.Mock
}

func (m *mockFallback) Generate(ec model.EnrichmentContext) model.Candidate {
	args := m.Called(ec)
	return args.Get(0).(model.Candidate)
}

// searchFunc adapts a function to SearchEngine.
type searchFunc func(ctx context.Context, name, locality string) search.Result

func (f searchFunc) SearchCompanyWebsite(ctx context.Context, name, locality string) search.Result {
	return f(ctx, name, locality)
}

func notFound(queries ...string) search.Result {
	return search.Result{ErrorReason: search.ErrNoWebsite, AttemptedQueries: queries}
}
