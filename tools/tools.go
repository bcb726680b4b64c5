//go:build tools

// Package tools documents development tool dependencies.
// These tools are run with `go run` or installed with `go install` and are not
// imported by the module.
package tools

// Development tools:
//
// mockgen - regenerates internal/mocks from the port interfaces
//   Run: go generate ./internal/mocks
//   Version: go.uber.org/mock/mockgen@v0.6.0 (matches go.mod)
//
// golangci-lint - linting; nolint directives in the tree target it
//   Install: go install github.com/golangci/golangci-lint/v2/cmd/golangci-lint@latest
