package arbitration

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-hr-sync/internal/domain"
	"github.com/go-hr-sync/internal/infrastructure/localstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockOffers struct{ mock.Mock }

func (m *mockOffers) FetchActiveOffers(ctx context.Context) ([]domain.Offer, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]domain.Offer)
	return list, args.Error(1)
}

type mockNotifications struct{ mock.Mock }

func (m *mockNotifications) Latest(ctx context.Context) (*domain.Notification, error) {
	args := m.Called(ctx)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockFeed struct{ mock.Mock }

func (m *mockFeed) MarkRead(ctx context.Context, id string) bool {
	return m.Called(ctx, id).Bool(0)
}

type memWatermarks struct {
	marks map[domain.Kind]string
	err   error
}

func newMemWatermarks() *memWatermarks {
	return &memWatermarks{marks: map[domain.Kind]string{}}
}

func (w *memWatermarks) Watermark(_ context.Context, kind domain.Kind) (string, error) {
	return w.marks[kind], w.err
}

func (w *memWatermarks) SetWatermark(_ context.Context, kind domain.Kind, id string) error {
	if w.err != nil {
		return w.err
	}
	w.marks[kind] = id
	return nil
}

// --- helpers ---

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func offerAt(id string, minute int) domain.Offer {
	return domain.Offer{OfferID: id, Title: "Gym membership", IsActive: true, CreatedAt: t0.Add(time.Duration(minute) * time.Minute)}
}

func notifAt(id string, minute int) *domain.Notification {
	return &domain.Notification{NotificationID: id, Title: "Payslip ready", CreatedAt: t0.Add(time.Duration(minute) * time.Minute)}
}

type fixture struct {
	offers *mockOffers
	notifs *mockNotifications
	feed   *mockFeed
	engine *Engine
}

func newFixture(w watermarkStore) *fixture {
	f := &fixture{offers: new(mockOffers), notifs: new(mockNotifications), feed: new(mockFeed)}
	f.engine = NewEngine(EngineDeps{
		Offers:        f.offers,
		Notifications: f.notifs,
		Feed:          f.feed,
		Watermarks:    w,
	})
	return f
}

// --- Evaluate ---

func TestEvaluate_LaterCreatedAtWins(t *testing.T) {
	tests := []struct {
		name        string
		offerMinute int
		notifMinute int
		want        domain.Kind
	}{
		{"notification later", 0, 5, domain.KindNotification},
		{"offer later", 5, 0, domain.KindOffer},
		{"tie goes to notification", 3, 3, domain.KindNotification},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(newMemWatermarks())
			f.offers.On("FetchActiveOffers", mock.Anything).Return([]domain.Offer{offerAt("o1", tt.offerMinute)}, nil)
			f.notifs.On("Latest", mock.Anything).Return(notifAt("n1", tt.notifMinute), nil)

			got := f.engine.Evaluate(context.Background())
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, got, f.engine.Current())
		})
	}
}

func TestEvaluate_WatermarkedCandidateSkipped(t *testing.T) {
	w := newMemWatermarks()
	w.marks[domain.KindNotification] = "n1"
	f := newFixture(w)
	f.offers.On("FetchActiveOffers", mock.Anything).Return([]domain.Offer{offerAt("o1", 0)}, nil)
	f.notifs.On("Latest", mock.Anything).Return(notifAt("n1", 5), nil)

	got := f.engine.Evaluate(context.Background())
	require.NotNil(t, got)
	assert.Equal(t, "o1", got.EntityID)
}

func TestEvaluate_NothingNew(t *testing.T) {
	w := newMemWatermarks()
	w.marks[domain.KindNotification] = "n1"
	w.marks[domain.KindOffer] = "o1"
	f := newFixture(w)
	f.offers.On("FetchActiveOffers", mock.Anything).Return([]domain.Offer{offerAt("o1", 0)}, nil)
	f.notifs.On("Latest", mock.Anything).Return(notifAt("n1", 5), nil)

	assert.Nil(t, f.engine.Evaluate(context.Background()))
	assert.Nil(t, f.engine.Current())
}

func TestEvaluate_PicksNewestActiveOffer(t *testing.T) {
	f := newFixture(newMemWatermarks())
	inactive := offerAt("o9", 30)
	inactive.IsActive = false
	f.offers.On("FetchActiveOffers", mock.Anything).Return([]domain.Offer{offerAt("o1", 1), offerAt("o2", 7), inactive}, nil)
	f.notifs.On("Latest", mock.Anything).Return(nil, nil)

	got := f.engine.Evaluate(context.Background())
	require.NotNil(t, got)
	assert.Equal(t, "o2", got.EntityID)
	require.NotNil(t, got.Offer)
}

func TestEvaluate_FetchFailureSuppresses(t *testing.T) {
	f := newFixture(newMemWatermarks())
	f.offers.On("FetchActiveOffers", mock.Anything).Return(nil, domain.ErrUnavailable)
	f.notifs.On("Latest", mock.Anything).Return(notifAt("n1", 5), nil).Maybe()

	assert.Nil(t, f.engine.Evaluate(context.Background()))
	assert.Nil(t, f.engine.Current())
}

func TestEvaluate_WatermarkReadFailureSuppresses(t *testing.T) {
	w := newMemWatermarks()
	w.err = errors.New("disk")
	f := newFixture(w)
	f.offers.On("FetchActiveOffers", mock.Anything).Return([]domain.Offer{offerAt("o1", 0)}, nil)
	f.notifs.On("Latest", mock.Anything).Return(notifAt("n1", 5), nil)

	assert.Nil(t, f.engine.Evaluate(context.Background()))
}

func TestEvaluate_SkippedWhileShowing(t *testing.T) {
	f := newFixture(newMemWatermarks())
	f.offers.On("FetchActiveOffers", mock.Anything).Return([]domain.Offer{offerAt("o1", 0)}, nil).Once()
	f.notifs.On("Latest", mock.Anything).Return(nil, nil).Once()

	first := f.engine.Evaluate(context.Background())
	require.NotNil(t, first)
	assert.Nil(t, f.engine.Evaluate(context.Background()))
	assert.Equal(t, first, f.engine.Current())
	f.offers.AssertNumberOfCalls(t, "FetchActiveOffers", 1)
}

func TestEvaluate_OfferCategoryNotificationSeenOnce(t *testing.T) {
	w := newMemWatermarks()
	w.marks[domain.KindOffer] = "o1"
	f := newFixture(w)
	promo := &domain.Notification{NotificationID: "p1", Title: "Cashback week", CreatedAt: t0.Add(5 * time.Minute)}
	f.offers.On("FetchActiveOffers", mock.Anything).Return([]domain.Offer{offerAt("o1", 0)}, nil)
	f.notifs.On("Latest", mock.Anything).Return(promo, nil)
	f.feed.On("MarkRead", mock.Anything, "p1").Return(true).Once()

	got := f.engine.Evaluate(context.Background())
	require.NotNil(t, got)
	assert.Equal(t, domain.KindOffer, got.Kind)
	assert.Equal(t, "p1", got.EntityID)
	require.NoError(t, f.engine.Dismiss(context.Background()))
	assert.Equal(t, "p1", w.marks[domain.KindOffer])
	assert.Empty(t, w.marks[domain.KindNotification])

	// Neither the promotion nor the older offer comes back.
	assert.Nil(t, f.engine.Evaluate(context.Background()))
	assert.Nil(t, f.engine.Evaluate(context.Background()))
	assert.Nil(t, f.engine.Current())
	f.feed.AssertExpectations(t)
}

func TestEvaluate_AnnouncementAndOfferShownOnce(t *testing.T) {
	w := newMemWatermarks()
	f := newFixture(w)
	announcement := &domain.Notification{
		NotificationID: "n7",
		OfferID:        "o3",
		Title:          "New perk",
		Category:       domain.CategoryOffer,
		CreatedAt:      t0.Add(4 * time.Minute),
	}
	f.offers.On("FetchActiveOffers", mock.Anything).Return([]domain.Offer{offerAt("o3", 4)}, nil)
	f.notifs.On("Latest", mock.Anything).Return(announcement, nil)
	f.feed.On("MarkRead", mock.Anything, "n7").Return(true).Once()

	got := f.engine.Evaluate(context.Background())
	require.NotNil(t, got)
	assert.Equal(t, "o3", got.EntityID)
	require.NotNil(t, got.Notification)
	require.NoError(t, f.engine.Dismiss(context.Background()))
	assert.Equal(t, "o3", w.marks[domain.KindOffer])

	assert.Nil(t, f.engine.Evaluate(context.Background()))
	assert.Nil(t, f.engine.EvaluatePushed(context.Background(), *announcement))
	f.feed.AssertExpectations(t)
}

// --- Dismiss ---

func TestDismiss_LoserStaysPending(t *testing.T) {
	w := newMemWatermarks()
	f := newFixture(w)
	f.offers.On("FetchActiveOffers", mock.Anything).Return([]domain.Offer{offerAt("o1", 0)}, nil)
	f.notifs.On("Latest", mock.Anything).Return(notifAt("n1", 5), nil)
	f.feed.On("MarkRead", mock.Anything, "n1").Return(true).Once()

	require.Equal(t, "n1", f.engine.Evaluate(context.Background()).EntityID)
	require.NoError(t, f.engine.Dismiss(context.Background()))
	assert.Equal(t, "n1", w.marks[domain.KindNotification])
	assert.Empty(t, w.marks[domain.KindOffer])
	f.feed.AssertExpectations(t)

	next := f.engine.Evaluate(context.Background())
	require.NotNil(t, next)
	assert.Equal(t, "o1", next.EntityID)
}

func TestDismiss_OfferDoesNotMarkRead(t *testing.T) {
	f := newFixture(newMemWatermarks())
	f.offers.On("FetchActiveOffers", mock.Anything).Return([]domain.Offer{offerAt("o1", 9)}, nil)
	f.notifs.On("Latest", mock.Anything).Return(nil, nil)

	require.NotNil(t, f.engine.Evaluate(context.Background()))
	require.NoError(t, f.engine.Dismiss(context.Background()))
	f.feed.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything)
}

func TestDismiss_NothingShowing(t *testing.T) {
	f := newFixture(newMemWatermarks())
	assert.NoError(t, f.engine.Dismiss(context.Background()))
}

func TestDismiss_PersistFailureKeepsInterstitial(t *testing.T) {
	w := newMemWatermarks()
	f := newFixture(w)
	f.offers.On("FetchActiveOffers", mock.Anything).Return([]domain.Offer{offerAt("o1", 9)}, nil)
	f.notifs.On("Latest", mock.Anything).Return(nil, nil)
	require.NotNil(t, f.engine.Evaluate(context.Background()))

	w.err = errors.New("disk")
	assert.Error(t, f.engine.Dismiss(context.Background()))
	assert.NotNil(t, f.engine.Current())
}

// --- EvaluatePushed ---

func TestEvaluatePushed_ClassifiesByCategory(t *testing.T) {
	tests := []struct {
		name string
		n    domain.Notification
		want domain.Kind
	}{
		{"structured offer", domain.Notification{NotificationID: "p1", Title: "New perk", Category: domain.CategoryOffer}, domain.KindOffer},
		{"title keyword", domain.Notification{NotificationID: "p2", Title: "Festive discount on gym"}, domain.KindOffer},
		{"structured beats keyword", domain.Notification{NotificationID: "p3", Title: "Discount policy update", Category: domain.CategoryDocument}, domain.KindNotification},
		{"plain", domain.Notification{NotificationID: "p4", Title: "Payslip ready"}, domain.KindNotification},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(newMemWatermarks())
			got := f.engine.EvaluatePushed(context.Background(), tt.n)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
			assert.NotNil(t, got.Notification)
		})
	}
}

func TestEvaluatePushed_SeenIsSkipped(t *testing.T) {
	w := newMemWatermarks()
	w.marks[domain.KindNotification] = "p4"
	f := newFixture(w)
	assert.Nil(t, f.engine.EvaluatePushed(context.Background(), domain.Notification{NotificationID: "p4", Title: "Payslip ready"}))
	assert.Nil(t, f.engine.EvaluatePushed(context.Background(), domain.Notification{Title: "no id"}))
}

func TestEvaluatePushed_OfferKindDismissMarksRead(t *testing.T) {
	w := newMemWatermarks()
	f := newFixture(w)
	f.feed.On("MarkRead", mock.Anything, "p1").Return(true).Once()

	require.NotNil(t, f.engine.EvaluatePushed(context.Background(), domain.Notification{NotificationID: "p1", Title: "Cashback week"}))
	require.NoError(t, f.engine.Dismiss(context.Background()))
	assert.Equal(t, "p1", w.marks[domain.KindOffer])
	f.feed.AssertExpectations(t)
}

// --- Reset / Subscribe ---

func TestReset_DiscardsInFlightPass(t *testing.T) {
	f := newFixture(newMemWatermarks())
	started := make(chan struct{})
	release := make(chan struct{})
	f.offers.On("FetchActiveOffers", mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return([]domain.Offer{offerAt("o1", 0)}, nil)
	f.notifs.On("Latest", mock.Anything).Return(nil, nil)

	done := make(chan *Interstitial, 1)
	go func() { done <- f.engine.Evaluate(context.Background()) }()
	<-started
	f.engine.Reset()
	close(release)

	assert.Nil(t, <-done)
	assert.Nil(t, f.engine.Current())
}

func TestSubscribe_ShowDismissClear(t *testing.T) {
	f := newFixture(newMemWatermarks())
	var actions []Action
	f.engine.Subscribe(func(e Event) { actions = append(actions, e.Action) })
	f.feed.On("MarkRead", mock.Anything, mock.Anything).Return(true)

	f.engine.EvaluatePushed(context.Background(), domain.Notification{NotificationID: "a", Title: "Hello"})
	require.NoError(t, f.engine.Dismiss(context.Background()))
	f.engine.EvaluatePushed(context.Background(), domain.Notification{NotificationID: "b", Title: "Hello again"})
	f.engine.Reset()

	assert.Equal(t, []Action{ActionShow, ActionDismiss, ActionShow, ActionClear}, actions)
}

// --- restart with persisted store ---

func TestDismissSurvivesRestart(t *testing.T) {
	for _, kind := range []domain.Kind{domain.KindOffer, domain.KindNotification} {
		t.Run(string(kind), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "agent.db")
			ctx := context.Background()

			x := offerAt("x", 10)
			y := offerAt("y", 20)
			nx, ny := notifAt("x", 10), notifAt("y", 20)

			run := func(offerID string, notif *domain.Notification, offers []domain.Offer) *Interstitial {
				store, err := localstore.Open(path)
				require.NoError(t, err)
				defer store.Close()
				f := newFixture(store)
				f.offers.On("FetchActiveOffers", mock.Anything).Return(offers, nil)
				f.notifs.On("Latest", mock.Anything).Return(notif, nil)
				f.feed.On("MarkRead", mock.Anything, mock.Anything).Return(true)

				got := f.engine.Evaluate(ctx)
				if got != nil && got.EntityID == offerID {
					require.NoError(t, f.engine.Dismiss(ctx))
				}
				return got
			}

			if kind == domain.KindOffer {
				first := run("x", nil, []domain.Offer{x})
				require.NotNil(t, first)
				assert.Nil(t, run("", nil, []domain.Offer{x}), "x re-shown after restart")
				later := run("", nil, []domain.Offer{y, x})
				require.NotNil(t, later)
				assert.Equal(t, "y", later.EntityID)
				return
			}
			first := run("x", nx, nil)
			require.NotNil(t, first)
			assert.Nil(t, run("", nx, nil), "x re-shown after restart")
			later := run("", ny, nil)
			require.NotNil(t, later)
			assert.Equal(t, "y", later.EntityID)
		})
	}
}
