// Package mocks provides mock implementations of the gatehouse ports for tests.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	client := mocks.NewMockAuthClient(ctrl)
//	client.EXPECT().GetSession(gomock.Any()).Return(nil, nil)
package mocks

// Generate mocks for the per-browser auth client, the change publisher and the auth event journal.
// AuthClient: GetSession, Subscribe
// ChangePublisher: Publish
// AuthEventJournal: Record, ListByUser
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/gatehouse/gatehouse/internal/ports AuthClient,ChangePublisher,AuthEventJournal
