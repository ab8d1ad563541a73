// Package mocks provides mock implementations for testing the auth core.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// the store interfaces. The mocks are generated using go:generate directives
// and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockStore := mocks.NewMockProfileStore(ctrl)
//	mockStore.EXPECT().Get(gomock.Any(), "user-1").Return(profile, nil)
package mocks

// Generate mock for ProfileStore interface from internal/ports.
// This creates MockProfileStore with methods for all ProfileStore interface methods:
// Get, Insert
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=profile_store_mock.go github.com/consorcio10demayo/canalero-auth/internal/ports ProfileStore

// Generate mock for SnapshotStore interface from internal/ports.
// This creates MockSnapshotStore with methods for all SnapshotStore interface methods:
// Save, Load, Clear
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=snapshot_store_mock.go github.com/consorcio10demayo/canalero-auth/internal/ports SnapshotStore
