// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/dripper/api/schemas"
)

// -- Page Mock --

// MockPage mocks the schemas.Page browser contract.
type MockPage struct {
	mock.Mock
}

func NewMockPage() *MockPage {
	return &MockPage{}
}

func (m *MockPage) ID() string {
	return m.Called().String(0)
}

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPage) Reload(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockPage) Find(ctx context.Context, selector string) (bool, error) {
	args := m.Called(ctx, selector)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) Visible(ctx context.Context, selector string) (bool, error) {
	args := m.Called(ctx, selector)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) WaitVisible(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) WaitHidden(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) WaitReady(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) Type(ctx context.Context, selector string, text string) error {
	return m.Called(ctx, selector, text).Error(0)
}

func (m *MockPage) Text(ctx context.Context, selector string) (string, error) {
	args := m.Called(ctx, selector)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Value(ctx context.Context, selector string) (string, error) {
	args := m.Called(ctx, selector)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Checked(ctx context.Context, selector string) (bool, error) {
	args := m.Called(ctx, selector)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) SetChecked(ctx context.Context, selector string, on bool) error {
	return m.Called(ctx, selector, on).Error(0)
}

func (m *MockPage) Evaluate(ctx context.Context, script string, out any) error {
	return m.Called(ctx, script, out).Error(0)
}

func (m *MockPage) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	args := m.Called(ctx)
	var cookies []schemas.Cookie
	if v := args.Get(0); v != nil {
		cookies = v.([]schemas.Cookie)
	}
	return cookies, args.Error(1)
}

func (m *MockPage) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) OuterHTML(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Diagnose(ctx context.Context, step string) schemas.PageSummary {
	args := m.Called(ctx, step)
	if v := args.Get(0); v != nil {
		return v.(schemas.PageSummary)
	}
	return schemas.PageSummary{}
}

func (m *MockPage) MarkAuthenticated(ok bool) {
	m.Called(ok)
}

func (m *MockPage) Authenticated() bool {
	return m.Called().Bool(0)
}

func (m *MockPage) Stale(threshold time.Duration, now time.Time) bool {
	return m.Called(threshold, now).Bool(0)
}

// -- Claim Store Mock --

// MockClaimStore mocks the schemas.ClaimStore persistence contract.
type MockClaimStore struct {
	mock.Mock
}

func NewMockClaimStore() *MockClaimStore {
	return &MockClaimStore{}
}

func (m *MockClaimStore) SaveClaims(ctx context.Context, claims []schemas.ClaimRecord) error {
	return m.Called(ctx, claims).Error(0)
}

func (m *MockClaimStore) RecentClaims(ctx context.Context, address string, limit int) ([]schemas.ClaimRecord, error) {
	args := m.Called(ctx, address, limit)
	var records []schemas.ClaimRecord
	if v := args.Get(0); v != nil {
		records = v.([]schemas.ClaimRecord)
	}
	return records, args.Error(1)
}

// Compile-time checks that the mocks satisfy their contracts.
var (
	_ schemas.Page       = (*MockPage)(nil)
	_ schemas.ClaimStore = (*MockClaimStore)(nil)
)
