//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are installed globally via `go install` and are not tracked in go.mod
// since they are development tools, not runtime dependencies.
package tools

// Development tools (install via `go install`):
//
// mockgen - Generates the store mocks under internal/mocks
//   Install: not needed; go:generate runs it with `go run go.uber.org/mock/mockgen`
//   Version: pinned through go.mod (go.uber.org/mock)
//   Docs: https://github.com/uber-go/mock
//
// golangci-lint - Lint aggregator run before pushing
//   Install: go install github.com/golangci/golangci-lint/cmd/golangci-lint@v1.64.8
//   Version: v1.64.8 (pinned 2025-03-01)
//   Docs: https://golangci-lint.run
