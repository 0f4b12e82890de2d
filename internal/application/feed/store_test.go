package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/go-hr-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mock ---

type mockAPI struct{ mock.Mock }

func (m *mockAPI) FetchNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	args := m.Called(ctx, limit)
	list, _ := args.Get(0).([]domain.Notification)
	return list, args.Error(1)
}

func (m *mockAPI) FetchUnreadCount(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockAPI) MarkNotificationRead(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockAPI) MarkAllRead(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// --- helpers ---

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func notif(id string, minute int, read bool) domain.Notification {
	return domain.Notification{
		NotificationID: id,
		Title:          "Notice " + id,
		CreatedAt:      base.Add(time.Duration(minute) * time.Minute),
		IsRead:         read,
	}
}

func ids(list []domain.Notification) []string {
	out := make([]string, len(list))
	for i, n := range list {
		out[i] = n.NotificationID
	}
	return out
}

func countUnread(list []domain.Notification) int {
	n := 0
	for _, it := range list {
		if !it.IsRead {
			n++
		}
	}
	return n
}

func newTestStore(api *mockAPI, window int) *Store {
	return NewStore(api, Options{Window: window, AckTimeout: time.Second})
}

func snapshot(t *testing.T, s *Store, api *mockAPI, limit int, list []domain.Notification, count int) {
	t.Helper()
	api.On("FetchNotifications", mock.Anything, limit).Return(list, nil).Once()
	api.On("FetchUnreadCount", mock.Anything).Return(count, nil).Once()
	require.NoError(t, s.LoadSnapshot(context.Background(), limit))
}

// --- LoadSnapshot ---

func TestLoadSnapshot_PreservesOrderAndMarkRead(t *testing.T) {
	api := new(mockAPI)
	s := newTestStore(api, 20)
	snapshot(t, s, api, 20, []domain.Notification{notif("n2", 5, false), notif("n1", 0, false)}, 2)

	assert.Equal(t, []string{"n2", "n1"}, ids(s.Items()))
	assert.Equal(t, 2, s.UnreadCount())

	api.On("MarkNotificationRead", mock.Anything, "n2").Return(nil).Once()
	assert.True(t, s.MarkRead(context.Background(), "n2"))
	s.Wait()

	assert.Equal(t, 1, s.UnreadCount())
	b, _ := s.Get("n2")
	a, _ := s.Get("n1")
	assert.True(t, b.IsRead)
	assert.False(t, a.IsRead)
	api.AssertExpectations(t)
}

func TestLoadSnapshot_FetchErrorLeavesStateUntouched(t *testing.T) {
	api := new(mockAPI)
	s := newTestStore(api, 20)
	snapshot(t, s, api, 20, []domain.Notification{notif("n1", 0, false)}, 1)

	api.On("FetchNotifications", mock.Anything, 20).Return(nil, domain.ErrUnavailable).Once()
	api.On("FetchUnreadCount", mock.Anything).Return(0, nil).Maybe()

	err := s.LoadSnapshot(context.Background(), 20)
	assert.True(t, errors.Is(err, domain.ErrUnavailable))
	assert.Equal(t, []string{"n1"}, ids(s.Items()))
}

func TestLoadSnapshot_UnreadCountFailureIsTolerated(t *testing.T) {
	api := new(mockAPI)
	s := newTestStore(api, 20)
	api.On("FetchNotifications", mock.Anything, 20).Return([]domain.Notification{notif("n1", 0, false)}, nil).Once()
	api.On("FetchUnreadCount", mock.Anything).Return(0, domain.ErrUnavailable).Once()

	require.NoError(t, s.LoadSnapshot(context.Background(), 20))
	assert.Equal(t, 1, s.UnreadCount())
	assert.Equal(t, 0, s.RemoteUnreadCount())
}

func TestLoadSnapshot_KeepsEntriesOutsideWindow(t *testing.T) {
	api := new(mockAPI)
	s := newTestStore(api, 20)
	snapshot(t, s, api, 3, []domain.Notification{notif("n5", 5, false), notif("n4", 4, false), notif("n3", 3, false)}, 3)
	s.IngestPush(notif("n9", 9, false))

	// Window now covers n6..n4. n9 is newer, n3 is older, both survive.
	snapshot(t, s, api, 3, []domain.Notification{notif("n6", 6, false), notif("n5", 5, true), notif("n4", 4, false)}, 3)

	assert.Equal(t, []string{"n9", "n6", "n5", "n4", "n3"}, ids(s.Items()))
	assert.Equal(t, 4, s.UnreadCount())
}

func TestLoadSnapshot_ShortSnapshotDropsVanishedEntries(t *testing.T) {
	api := new(mockAPI)
	s := newTestStore(api, 20)
	snapshot(t, s, api, 10, []domain.Notification{notif("n2", 2, false), notif("n1", 1, false)}, 2)
	snapshot(t, s, api, 10, []domain.Notification{notif("n2", 2, false)}, 1)

	assert.Equal(t, []string{"n2"}, ids(s.Items()))
	assert.Equal(t, 1, s.UnreadCount())
}

func TestLoadSnapshot_LocalReadIsNotReverted(t *testing.T) {
	api := new(mockAPI)
	s := newTestStore(api, 20)
	snapshot(t, s, api, 10, []domain.Notification{notif("n1", 1, false)}, 1)

	api.On("MarkNotificationRead", mock.Anything, "n1").Return(domain.ErrUnavailable).Once()
	s.MarkRead(context.Background(), "n1")
	s.Wait()

	snapshot(t, s, api, 10, []domain.Notification{notif("n1", 1, false)}, 1)
	n, _ := s.Get("n1")
	assert.True(t, n.IsRead)
	assert.Equal(t, 0, s.UnreadCount())
}

func TestLoadSnapshot_StaleAfterReset(t *testing.T) {
	api := new(mockAPI)
	s := newTestStore(api, 20)
	started := make(chan struct{})
	release := make(chan struct{})
	api.On("FetchNotifications", mock.Anything, 20).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return([]domain.Notification{notif("n1", 0, false)}, nil).Once()
	api.On("FetchUnreadCount", mock.Anything).Return(1, nil).Once()

	done := make(chan error, 1)
	go func() { done <- s.LoadSnapshot(context.Background(), 20) }()

	<-started
	s.Reset()
	close(release)

	assert.ErrorIs(t, <-done, ErrStale)
	assert.Empty(t, s.Items())
	assert.Equal(t, 0, s.UnreadCount())
}

// --- IngestPush ---

func TestIngestPush_HeadInsertAndTrim(t *testing.T) {
	api := new(mockAPI)
	s := newTestStore(api, 3)
	for i := 1; i <= 4; i++ {
		assert.True(t, s.IngestPush(notif(fmt.Sprintf("n%d", i), i, true)))
	}
	assert.Equal(t, []string{"n4", "n3", "n2"}, ids(s.Items()))
	// Pushed entries always arrive unread.
	assert.Equal(t, 3, s.UnreadCount())
}

func TestIngestPush_DeduplicatesSnapshotEntry(t *testing.T) {
	api := new(mockAPI)
	s := newTestStore(api, 20)
	snapshot(t, s, api, 20, []domain.Notification{notif("n2", 2, false), notif("n1", 1, false)}, 2)

	added := s.IngestPush(notif("n2", 2, false))
	assert.False(t, added)
	assert.Equal(t, []string{"n2", "n1"}, ids(s.Items()))
	assert.Equal(t, 2, s.UnreadCount())
}

func TestIngestPush_DuplicateKeepsReadState(t *testing.T) {
	api := new(mockAPI)
	s := newTestStore(api, 20)
	s.IngestPush(notif("n1", 1, false))
	api.On("MarkNotificationRead", mock.Anything, "n1").Return(nil).Once()
	s.MarkRead(context.Background(), "n1")
	s.Wait()

	s.IngestPush(notif("n1", 1, false))
	n, _ := s.Get("n1")
	assert.True(t, n.IsRead)
	assert.Equal(t, 0, s.UnreadCount())
}

func TestIngestPush_IgnoresMissingID(t *testing.T) {
	s := newTestStore(new(mockAPI), 20)
	assert.False(t, s.IngestPush(domain.Notification{Title: "x"}))
	assert.Empty(t, s.Items())
}

// --- MarkRead / MarkAllRead ---

func TestMarkRead_Idempotent(t *testing.T) {
	api := new(mockAPI)
	s := newTestStore(api, 20)
	s.IngestPush(notif("n1", 1, false))
	api.On("MarkNotificationRead", mock.Anything, "n1").Return(nil).Once()

	assert.True(t, s.MarkRead(context.Background(), "n1"))
	before := s.Items()
	assert.False(t, s.MarkRead(context.Background(), "n1"))
	s.Wait()

	assert.Equal(t, before, s.Items())
	assert.Equal(t, 0, s.UnreadCount())
	api.AssertNumberOfCalls(t, "MarkNotificationRead", 1)
}

func TestMarkRead_ServerFailureNotRolledBack(t *testing.T) {
	api := new(mockAPI)
	s := newTestStore(api, 20)
	s.IngestPush(notif("n1", 1, false))
	api.On("MarkNotificationRead", mock.Anything, "n1").Return(domain.ErrUnavailable).Once()

	s.MarkRead(context.Background(), "n1")
	s.Wait()

	n, _ := s.Get("n1")
	assert.True(t, n.IsRead)
	assert.Equal(t, 0, s.UnreadCount())
}

func TestMarkRead_UnknownIDStillAcknowledged(t *testing.T) {
	api := new(mockAPI)
	s := newTestStore(api, 20)
	api.On("MarkNotificationRead", mock.Anything, "n7").Return(nil).Once()

	assert.False(t, s.MarkRead(context.Background(), "n7"))
	s.Wait()
	api.AssertExpectations(t)
}

func TestMarkRead_AckOutlivesCallerContext(t *testing.T) {
	api := new(mockAPI)
	s := newTestStore(api, 20)
	s.IngestPush(notif("n1", 1, false))
	ackErr := errors.New("not called")
	api.On("MarkNotificationRead", mock.Anything, "n1").
		Run(func(args mock.Arguments) { ackErr = args.Get(0).(context.Context).Err() }).
		Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.MarkRead(ctx, "n1")
	s.Wait()

	assert.NoError(t, ackErr)
}

func TestMarkAllRead(t *testing.T) {
	api := new(mockAPI)
	s := newTestStore(api, 20)
	snapshot(t, s, api, 20, []domain.Notification{notif("n3", 3, false), notif("n2", 2, true), notif("n1", 1, false)}, 5)
	api.On("MarkAllRead", mock.Anything).Return(nil).Once()

	s.MarkAllRead(context.Background())
	s.Wait()

	assert.Equal(t, 0, s.UnreadCount())
	assert.Equal(t, 0, s.RemoteUnreadCount())
	for _, n := range s.Items() {
		assert.True(t, n.IsRead, n.NotificationID)
	}
	api.AssertExpectations(t)
}

func TestUnreadCount_MatchesListUnderRandomOperations(t *testing.T) {
	api := new(mockAPI)
	api.On("MarkNotificationRead", mock.Anything, mock.Anything).Return(nil)
	api.On("MarkAllRead", mock.Anything).Return(nil)
	api.On("FetchUnreadCount", mock.Anything).Return(3, nil)

	rng := rand.New(rand.NewPCG(7, 11))
	s := newTestStore(api, 8)
	ctx := context.Background()
	for step := 0; step < 400; step++ {
		id := fmt.Sprintf("n%d", rng.IntN(15))
		switch rng.IntN(4) {
		case 0:
			s.IngestPush(notif(id, rng.IntN(60), false))
		case 1:
			s.MarkRead(ctx, id)
		case 2:
			if rng.IntN(10) == 0 {
				s.MarkAllRead(ctx)
			}
		case 3:
			var list []domain.Notification
			for i := 0; i < rng.IntN(6); i++ {
				list = append(list, notif(fmt.Sprintf("n%d", rng.IntN(15)), 60-i, rng.IntN(2) == 0))
			}
			api.On("FetchNotifications", mock.Anything, 5).Return(list, nil).Once()
			require.NoError(t, s.LoadSnapshot(ctx, 5))
		}
		items := s.Items()
		require.Equal(t, countUnread(items), s.UnreadCount(), "step %d", step)
		require.GreaterOrEqual(t, s.UnreadCount(), 0)
		require.Len(t, dedupe(items), len(items), "duplicate id at step %d", step)
	}
	s.Wait()
}

// --- Latest / Reset / Subscribe ---

func TestLatest_PrefersNewerPushedEntry(t *testing.T) {
	api := new(mockAPI)
	s := newTestStore(api, 20)
	api.On("FetchNotifications", mock.Anything, 1).Return([]domain.Notification{notif("n1", 1, false)}, nil).Twice()

	got, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "n1", got.NotificationID)

	s.IngestPush(notif("n2", 2, false))
	got, err = s.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "n2", got.NotificationID)
}

func TestLatest_EmptyAndError(t *testing.T) {
	api := new(mockAPI)
	s := newTestStore(api, 20)
	api.On("FetchNotifications", mock.Anything, 1).Return([]domain.Notification{}, nil).Once()
	got, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)

	api.On("FetchNotifications", mock.Anything, 1).Return(nil, domain.ErrUnavailable).Once()
	_, err = s.Latest(context.Background())
	assert.True(t, errors.Is(err, domain.ErrUnavailable))
}

func TestSubscribe_ReceivesChanges(t *testing.T) {
	s := newTestStore(new(mockAPI), 20)
	var got []Change
	token := s.Subscribe(func(c Change) { got = append(got, c) })

	s.IngestPush(notif("n1", 1, false))
	s.Reset()
	assert.True(t, s.Unsubscribe(token))
	s.IngestPush(notif("n2", 2, false))

	require.Len(t, got, 2)
	assert.Equal(t, ReasonPush, got[0].Reason)
	assert.Equal(t, 1, got[0].Unread)
	assert.Equal(t, ReasonReset, got[1].Reason)
	assert.Empty(t, got[1].Items)
}
