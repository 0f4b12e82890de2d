package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-hr-sync/internal/application/arbitration"
	"github.com/go-hr-sync/internal/application/feed"
	"github.com/go-hr-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// --- mocks ---

type mockSessions struct{ mock.Mock }

func (m *mockSessions) Login(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	args := m.Called(ctx, creds)
	if s, _ := args.Get(0).(*domain.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessions) RequestOTP(ctx context.Context, mobile string) error {
	return m.Called(ctx, mobile).Error(0)
}

func (m *mockSessions) LoginWithOTP(ctx context.Context, mobile, otp string) (*domain.Session, error) {
	args := m.Called(ctx, mobile, otp)
	if s, _ := args.Get(0).(*domain.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessions) Logout(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockSessions) Current() *domain.Session {
	if s, _ := m.Called().Get(0).(*domain.Session); s != nil {
		return s
	}
	return nil
}

type fakeFeed struct {
	items   []domain.Notification
	read    []string
	readAll int
}

func (f *fakeFeed) Items() []domain.Notification { return f.items }

func (f *fakeFeed) UnreadCount() int {
	n := 0
	for _, it := range f.items {
		if !it.IsRead {
			n++
		}
	}
	return n
}

func (f *fakeFeed) MarkRead(_ context.Context, id string) bool {
	f.read = append(f.read, id)
	return id != "gone"
}

func (f *fakeFeed) MarkAllRead(context.Context) { f.readAll++ }

type fakeArbiter struct {
	current   *arbitration.Interstitial
	dismissed int
}

func (f *fakeArbiter) Current() *arbitration.Interstitial { return f.current }

func (f *fakeArbiter) Dismiss(context.Context) error {
	f.dismissed++
	f.current = nil
	return nil
}

// --- helpers ---

func newTestConsole() (*console, *mockSessions, *fakeFeed, *fakeArbiter, *bytes.Buffer) {
	s := &mockSessions{}
	f := &fakeFeed{}
	a := &fakeArbiter{}
	out := &bytes.Buffer{}
	return &console{sessions: s, feed: f, arbiter: a, out: out}, s, f, a, out
}

func TestConsole_Login(t *testing.T) {
	c, s, _, _, _ := newTestConsole()
	s.On("Login", mock.Anything, domain.Credentials{Login: "E-104", Password: "secret"}).
		Return(&domain.Session{Token: "tok"}, nil)

	c.run(context.Background(), strings.NewReader("login E-104 secret\n"))
	s.AssertExpectations(t)
}

func TestConsole_OTPFlow(t *testing.T) {
	c, s, _, _, out := newTestConsole()
	s.On("RequestOTP", mock.Anything, "9876543210").Return(nil)
	s.On("LoginWithOTP", mock.Anything, "9876543210", "123456").Return(&domain.Session{Token: "tok"}, nil)

	c.run(context.Background(), strings.NewReader("otp 9876543210\ncode 9876543210 123456\n"))
	s.AssertExpectations(t)
	assert.Contains(t, out.String(), "code sent to 9876543210")
}

func TestConsole_ReportsErrorsAndContinues(t *testing.T) {
	c, s, f, _, out := newTestConsole()
	s.On("Logout", mock.Anything).Return(errors.New("portal unavailable"))

	c.run(context.Background(), strings.NewReader("bogus\nlogin onlyone\nlogout\nread-all\n"))
	assert.Contains(t, out.String(), `unknown command "bogus"`)
	assert.Contains(t, out.String(), "usage: login")
	assert.Contains(t, out.String(), "error: portal unavailable")
	assert.Equal(t, 1, f.readAll)
}

func TestConsole_ListAndRead(t *testing.T) {
	c, _, f, _, out := newTestConsole()
	f.items = []domain.Notification{
		{NotificationID: "n2", Title: "Payslip for March", IsRead: false},
		{NotificationID: "n1", Title: "Holiday calendar", IsRead: true},
	}

	c.run(context.Background(), strings.NewReader("list\nread n2\nread gone\n"))
	assert.Contains(t, out.String(), "* n2")
	assert.Contains(t, out.String(), "1 unread")
	assert.Contains(t, out.String(), "gone is already read or not in the feed")
	assert.Equal(t, []string{"n2", "gone"}, f.read)
}

func TestConsole_ShowAndDismiss(t *testing.T) {
	c, _, _, a, out := newTestConsole()
	a.current = &arbitration.Interstitial{Kind: domain.KindOffer, EntityID: "o1", Title: "Gym membership"}

	c.run(context.Background(), strings.NewReader("show\ndismiss\nshow\n"))
	assert.Contains(t, out.String(), "offer o1: Gym membership")
	assert.Contains(t, out.String(), "nothing on screen")
	assert.Equal(t, 1, a.dismissed)
}

func TestConsole_QuitStopsReading(t *testing.T) {
	c, _, f, _, _ := newTestConsole()
	c.run(context.Background(), strings.NewReader("quit\nread-all\n"))
	assert.Zero(t, f.readAll)
}

func TestConsole_RendersEvents(t *testing.T) {
	c, _, _, _, out := newTestConsole()
	c.onFeed(feed.Change{Reason: feed.ReasonPush, Items: make([]domain.Notification, 3), Unread: 2})
	c.onInterstitial(arbitration.Event{Action: arbitration.ActionClear})

	assert.Contains(t, out.String(), "[feed] push: 3 items, 2 unread")
	assert.Contains(t, out.String(), "[interstitial] clear")
}
