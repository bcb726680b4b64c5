// Package mocks provides mock implementations for testing the dkl client.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	transport := mocks.NewMockRefreshTransport(ctrl)
//	transport.EXPECT().Refresh(gomock.Any(), "refresh-1").Return(pair, nil)
package mocks

// Generate mocks for the session ports in internal/ports.
// This creates MockTokenStore (Load, Save, SaveUser, Clear), MockRefreshTransport (Refresh)
// and MockAuthAPI (Login, Logout, Profile, ChangePassword).
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=auth_ports_mock.go github.com/dkl/dkl-client/internal/ports TokenStore,RefreshTransport,AuthAPI

// Generate mocks for the real-time ports in internal/ports.
// This creates MockStreamConn (Send, Receive, Close), MockStreamDialer (Dial) and MockTotalFetcher (FetchTotal).
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=realtime_ports_mock.go github.com/dkl/dkl-client/internal/ports StreamConn,StreamDialer,TotalFetcher
