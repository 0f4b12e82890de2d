package offer

import (
	"context"
	"errors"
	"testing"

	"github.com/go-hr-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockOffers struct{ mock.Mock }

func (m *mockOffers) Put(ctx context.Context, o *domain.Offer) error {
	return m.Called(ctx, o).Error(0)
}
func (m *mockOffers) ListActive(ctx context.Context) ([]domain.Offer, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]domain.Offer)
	return list, args.Error(1)
}

type mockAudience struct{ mock.Mock }

func (m *mockAudience) EnabledIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error) {
	args := m.Called(ctx, req)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- tests ---

func validReq() domain.CreateOfferRequest {
	return domain.CreateOfferRequest{
		Title:       "Gym membership",
		Provider:    "FitCo",
		Discount:    "30% off",
		Description: "Annual plans only.",
	}
}

func TestCreate_ExplicitAudience(t *testing.T) {
	offers, users, notifier := new(mockOffers), new(mockAudience), new(mockNotifier)
	offers.On("Put", mock.Anything, mock.MatchedBy(func(o *domain.Offer) bool {
		return o.IsActive && o.OfferID != "" && o.Title == "Gym membership"
	})).Return(nil)
	notifier.On("Create", mock.Anything, mock.MatchedBy(func(r domain.CreateNotificationRequest) bool {
		return r.Category == domain.CategoryOffer && r.OfferID != "" && r.Message == "30% off from FitCo. Annual plans only."
	})).Return(&domain.Notification{}, nil).Twice()

	req := validReq()
	req.Audience = []string{"u1", "u2"}
	svc := NewService(ServiceDeps{Offers: offers, Users: users, Notifier: notifier})
	o, sent, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Zero(t, o.CreatedAt.Nanosecond())
	users.AssertNotCalled(t, "EnabledIDs", mock.Anything)
	notifier.AssertExpectations(t)
	for _, c := range notifier.Calls {
		assert.Equal(t, o.OfferID, c.Arguments.Get(1).(domain.CreateNotificationRequest).OfferID)
	}
}

func TestCreate_EmptyAudienceReachesEveryone(t *testing.T) {
	offers, users, notifier := new(mockOffers), new(mockAudience), new(mockNotifier)
	offers.On("Put", mock.Anything, mock.Anything).Return(nil)
	users.On("EnabledIDs", mock.Anything).Return([]string{"u1", "u2", "u3"}, nil)
	notifier.On("Create", mock.Anything, mock.MatchedBy(func(r domain.CreateNotificationRequest) bool {
		return r.UserID == "u2"
	})).Return(nil, errors.New("throttled"))
	notifier.On("Create", mock.Anything, mock.Anything).Return(&domain.Notification{}, nil)

	svc := NewService(ServiceDeps{Offers: offers, Users: users, Notifier: notifier})
	_, sent, err := svc.Create(context.Background(), validReq())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}

func TestCreate_AudienceLookupFailureKeepsOffer(t *testing.T) {
	offers, users, notifier := new(mockOffers), new(mockAudience), new(mockNotifier)
	offers.On("Put", mock.Anything, mock.Anything).Return(nil)
	users.On("EnabledIDs", mock.Anything).Return(nil, errors.New("scan failed"))

	svc := NewService(ServiceDeps{Offers: offers, Users: users, Notifier: notifier})
	o, sent, err := svc.Create(context.Background(), validReq())
	require.NoError(t, err)
	assert.NotNil(t, o)
	assert.Zero(t, sent)
}

func TestCreate_Invalid(t *testing.T) {
	svc := NewService(ServiceDeps{Offers: new(mockOffers)})
	_, _, err := svc.Create(context.Background(), domain.CreateOfferRequest{Provider: "FitCo"})
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestAnnouncement(t *testing.T) {
	assert.Equal(t, "desc", announcement(&domain.Offer{Description: "desc"}))
	assert.Equal(t, "10% off", announcement(&domain.Offer{Discount: "10% off"}))
	assert.Equal(t, "from Acme. desc", announcement(&domain.Offer{Provider: "Acme", Description: "desc"}))
}
