package testutil

import (
	"context"

	"cryptowatch/internal/fetcher"
)

// MockFetcher is a mock implementation of the Fetcher interface for testing
type MockFetcher[V any] struct {
	FetchFunc func(ctx context.Context) (V, error)
	ItemValue fetcher.Item
}

// Fetch implements the Fetcher interface
func (m *MockFetcher[V]) Fetch(ctx context.Context) (V, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx)
	}
	var zero V
	return zero, nil
}

// Item implements the Fetcher interface
func (m *MockFetcher[V]) Item() fetcher.Item {
	if m.ItemValue == (fetcher.Item{}) {
		return fetcher.Item{Source: "mock", ID: "key", Label: "key"}
	}
	return m.ItemValue
}

// NewMockFetcher creates a simple mock fetcher with predefined values
func NewMockFetcher[V any](id string, value V, err error) *MockFetcher[V] {
	return &MockFetcher[V]{
		FetchFunc: func(ctx context.Context) (V, error) {
			return value, err
		},
		ItemValue: Item(id),
	}
}

// Item returns a test item with the given id.
func Item(id string) fetcher.Item {
	return fetcher.Item{Source: "test", ID: id, Label: id}
}
