package search

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockBackend struct {
	mock.Mock
	name string
}

func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) Search(ctx context.Context, query string) ([]string, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}
