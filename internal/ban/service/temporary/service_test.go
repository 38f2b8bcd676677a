package temporary

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"banguard/internal/ban/allowlist"
	"banguard/internal/ban/models"
	"banguard/internal/ban/ports/mocks"
	"banguard/internal/ban/store"
	dErrors "banguard/pkg/domain-errors"
	"banguard/pkg/platform/sentinel"
	"banguard/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	store   *store.Store
	gateway *mocks.MockGateway
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.fresh()
}

func (s *ServiceSuite) fresh() {
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	var err error
	s.store, err = store.Open(s.ctx, filepath.Join(s.T().TempDir(), "banguard.yaml"))
	s.Require().NoError(err)

	s.gateway = mocks.NewMockGateway(gomock.NewController(s.T()))
	s.service, err = New(s.store, allowlist.Follow(s.store), WithGateway(s.gateway))
	s.Require().NoError(err)
	s.T().Cleanup(s.service.Close)
}

func (s *ServiceSuite) at(d time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(d))
}

func (s *ServiceSuite) expectOffline(name string) {
	s.gateway.EXPECT().CurrentIdentity(gomock.Any(), name).Return(models.Identity{}, false)
}

// apply runs both halves of the protocol for an offline target.
func (s *ServiceSuite) apply(ctx context.Context, admin, target, reason string) *RequestResult {
	first, err := s.service.Request(ctx, admin, target, reason)
	s.Require().NoError(err)
	s.Require().Equal(StatePending, first.State)

	s.expectOffline(target)
	second, err := s.service.Request(ctx, admin, target, "")
	s.Require().NoError(err)
	s.Require().Equal(StateApplied, second.State)
	return second
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *ServiceSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil, allowlist.New(models.AllowlistSettings{}))
		s.Require().Error(err)
		s.Contains(err.Error(), "temporary ban store is required")
	})

	s.Run("nil guard returns error", func() {
		_, err := New(s.store, nil)
		s.Require().Error(err)
		s.Contains(err.Error(), "allow-list guard is required")
	})
}

// =============================================================================
// Confirmation Protocol Tests
// =============================================================================

func (s *ServiceSuite) TestRequest() {
	s.Run("first request is pending and returns the prompt", func() {
		s.fresh()
		result, err := s.service.Request(s.ctx, "mod1", "Suspect", "xray")
		s.Require().NoError(err)

		s.Equal(StatePending, result.State)
		s.Equal(models.DefaultSettings().TempBan.ConfirmationMessage, result.Message)
		s.Nil(result.TempBan)
		s.Equal(1, s.service.PendingCount())
		s.Empty(s.store.TempBans(), "nothing is persisted before confirmation")
	})

	s.Run("second request within the window applies the ban", func() {
		s.fresh()
		result := s.apply(s.ctx, "mod1", "Suspect", "xray")

		s.Equal("Suspect has been temporarily banned for 30 minutes", result.Message)
		s.Require().NotNil(result.TempBan)
		s.Equal("xray", result.TempBan.Reason, "reason comes from the first request")
		s.True(s.now.Add(30 * time.Minute).Equal(result.TempBan.EndTime))
		s.Equal(0, s.service.PendingCount())

		stored := s.store.TempBans()["Suspect"]
		s.True(stored.Active)
		s.Equal(s.now.Add(30*time.Minute).UnixMilli(), stored.EndTime.UnixMilli())
		s.True(s.service.IsActive(s.ctx, models.Identity{Name: "suspect"}))
	})

	s.Run("confirmation matches the target ignoring case", func() {
		s.fresh()
		_, err := s.service.Request(s.ctx, "mod1", "Suspect", "")
		s.Require().NoError(err)

		s.expectOffline("suspect")
		result, err := s.service.Request(s.at(time.Minute), "mod1", "suspect", "")
		s.Require().NoError(err)
		s.Equal(StateApplied, result.State)
		s.Equal(models.DefaultSettings().Defaults.TempBanReason, result.TempBan.Reason)
	})

	s.Run("request after the window closes starts over", func() {
		s.fresh()
		_, err := s.service.Request(s.ctx, "mod1", "Late", "r")
		s.Require().NoError(err)

		result, err := s.service.Request(s.at(3*time.Minute+time.Second), "mod1", "Late", "r")
		s.Require().NoError(err)
		s.Equal(StatePending, result.State)
		s.Empty(s.store.TempBans())
		s.Equal(1, s.service.PendingCount())
	})

	s.Run("confirmation at the deadline still applies", func() {
		s.fresh()
		_, err := s.service.Request(s.ctx, "mod1", "Edge", "r")
		s.Require().NoError(err)

		s.expectOffline("Edge")
		result, err := s.service.Request(s.at(3*time.Minute), "mod1", "Edge", "r")
		s.Require().NoError(err)
		s.Equal(StateApplied, result.State)
	})

	s.Run("connected target is backfilled and disconnected", func() {
		s.fresh()
		_, err := s.service.Request(s.ctx, "mod1", "Online", "r")
		s.Require().NoError(err)

		s.gateway.EXPECT().CurrentIdentity(gomock.Any(), "Online").
			Return(models.Identity{Name: "Online", AccountID: "acc-9", Address: "10.0.0.9"}, true)
		s.gateway.EXPECT().Disconnect(gomock.Any(), "Online", "temporarily banned: r, remaining 30m").Return(nil)

		result, err := s.service.Request(s.ctx, "mod1", "Online", "")
		s.Require().NoError(err)
		s.Equal("acc-9", *result.TempBan.AccountID)

		ban, ok := s.service.Lookup(s.ctx, models.Identity{Name: "Renamed", Address: "10.0.0.9"})
		s.Require().True(ok)
		s.Equal("Online", ban.Name)
	})

	s.Run("protected target creates nothing", func() {
		s.fresh()
		_, err := s.service.Request(s.ctx, "mod1", "Owner", "r")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, models.CodeProtected))
		s.Equal(0, s.service.PendingCount())
		s.Empty(s.store.TempBans())
	})

	s.Run("invalid input is rejected", func() {
		s.fresh()
		_, err := s.service.Request(s.ctx, "mod1", "", "r")
		s.True(dErrors.HasCode(err, models.CodeEmptyIdentifier))

		_, err = s.service.Request(s.ctx, "mod1", "has space", "r")
		s.True(dErrors.HasCode(err, models.CodeInvalidIdentifier))

		_, err = s.service.Request(s.ctx, " ", "Valid", "r")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("active ban refuses new requests with remaining time", func() {
		s.fresh()
		s.apply(s.ctx, "mod1", "Held", "r")

		_, err := s.service.Request(s.at(10*time.Minute), "mod2", "Held", "r")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, models.CodeAlreadyTempBanned))
		s.Contains(err.Error(), "remaining 20m")
		s.Equal(0, s.service.PendingCount())
	})
}

// =============================================================================
// Concurrent Operator Tests
// =============================================================================

func (s *ServiceSuite) TestConcurrentOperators() {
	s.Run("operators keep independent pending entries and the first confirmation wins", func() {
		s.fresh()
		_, err := s.service.Request(s.ctx, "mod1", "Target", "from mod1")
		s.Require().NoError(err)
		_, err = s.service.Request(s.ctx, "mod2", "Target", "from mod2")
		s.Require().NoError(err)
		s.Equal(2, s.service.PendingCount())

		s.expectOffline("Target")
		first, err := s.service.Request(s.ctx, "mod2", "Target", "")
		s.Require().NoError(err)
		s.Equal(StateApplied, first.State)
		s.Equal("from mod2", first.TempBan.Reason)

		_, err = s.service.Request(s.ctx, "mod1", "Target", "")
		s.True(dErrors.HasCode(err, models.CodeAlreadyTempBanned))
		s.Equal(0, s.service.PendingCount(), "loser's pending entry is discarded")
	})

	s.Run("racing confirmations apply exactly once", func() {
		s.fresh()
		admins := []string{"mod1", "mod2", "mod3", "mod4"}
		for _, admin := range admins {
			_, err := s.service.Request(s.ctx, admin, "Contested", "r")
			s.Require().NoError(err)
		}
		s.expectOffline("Contested")

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			applied int
			refused int
		)
		for _, admin := range admins {
			wg.Add(1)
			go func(admin string) {
				defer wg.Done()
				result, err := s.service.Request(s.ctx, admin, "Contested", "")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil && result.State == StateApplied:
					applied++
				case dErrors.HasCode(err, models.CodeAlreadyTempBanned):
					refused++
				}
			}(admin)
		}
		wg.Wait()

		s.Equal(1, applied)
		s.Equal(len(admins)-1, refused)
	})
}

// =============================================================================
// Release Tests
// =============================================================================

func (s *ServiceSuite) TestRelease() {
	s.Run("no active ban is NoActiveTempBan", func() {
		s.fresh()
		err := s.service.Release(s.ctx, "Free")
		s.True(dErrors.HasCode(err, models.CodeNoActiveTempBan))
	})

	s.Run("release ends the ban and keeps the record", func() {
		s.fresh()
		s.apply(s.ctx, "mod1", "Early", "r")

		s.Require().NoError(s.service.Release(s.ctx, "early"))

		s.False(s.service.IsActive(s.ctx, models.Identity{Name: "Early"}))
		s.False(s.store.TempBans()["Early"].Active)
		err := s.service.Release(s.ctx, "Early")
		s.True(dErrors.HasCode(err, models.CodeNoActiveTempBan))
	})

	s.Run("expired ban cannot be released", func() {
		s.fresh()
		s.apply(s.ctx, "mod1", "Done", "r")

		err := s.service.Release(s.at(31*time.Minute), "Done")
		s.True(dErrors.HasCode(err, models.CodeNoActiveTempBan))
	})
}

// =============================================================================
// Query Tests
// =============================================================================

func (s *ServiceSuite) TestQueries() {
	s.Run("expired ban never matches even while active", func() {
		s.fresh()
		s.apply(s.ctx, "mod1", "Old", "r")

		later := s.at(31 * time.Minute)
		s.False(s.service.IsActive(later, models.Identity{Name: "Old"}))
		denied, _ := s.service.CheckLogin(later, models.Identity{Name: "Old"})
		s.False(denied)
		s.True(s.store.TempBans()["Old"].Active)
	})

	s.Run("login check reports remaining time", func() {
		s.fresh()
		s.apply(s.ctx, "mod1", "Wait", "afk farming")

		denied, message := s.service.CheckLogin(s.at(5*time.Minute), models.Identity{Name: "wait"})
		s.True(denied)
		s.Equal("temporarily banned: afk farming, remaining 25m", message)
	})

	s.Run("absent keys never match", func() {
		s.fresh()
		s.apply(s.ctx, "mod1", "Keyless", "r")

		s.False(s.service.IsActive(s.ctx, models.Identity{Name: "Other"}))
	})

	s.Run("lists live names sorted", func() {
		s.fresh()
		s.apply(s.ctx, "mod1", "Zulu", "r")
		s.apply(s.ctx, "mod1", "Alpha", "r")
		s.apply(s.ctx, "mod1", "Mike", "r")
		s.Require().NoError(s.service.Release(s.ctx, "Mike"))

		s.Equal([]string{"Alpha", "Zulu"}, s.service.ListActiveNames(s.ctx))
		s.Empty(s.service.ListActiveNames(s.at(time.Hour)))
	})
}

// =============================================================================
// Sweep Tests
// =============================================================================

func (s *ServiceSuite) TestSweep() {
	s.Run("evicts stale pending entries and deactivates expired bans", func() {
		s.fresh()
		s.apply(s.ctx, "mod1", "Expiring", "r")
		s.apply(s.at(20*time.Minute), "mod1", "Fresh", "r")
		_, err := s.service.Request(s.ctx, "mod1", "Stale", "r")
		s.Require().NoError(err)
		_, err = s.service.Request(s.at(29*time.Minute), "mod2", "Recent", "r")
		s.Require().NoError(err)

		result, err := s.service.Sweep(s.at(31 * time.Minute))
		s.Require().NoError(err)

		s.Equal(1, result.EvictedPending)
		s.Equal([]string{"Expiring"}, result.Expired)
		s.Equal(1, s.service.PendingCount())
		tempBans := s.store.TempBans()
		s.False(tempBans["Expiring"].Active)
		s.True(tempBans["Fresh"].Active)
	})

	s.Run("cleanup loop stops when the context is cancelled", func() {
		s.fresh()
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.service.StartCleanup(ctx, 10*time.Millisecond) }()

		time.Sleep(30 * time.Millisecond)
		cancel()
		s.ErrorIs(<-done, context.Canceled)
	})
}

func (s *ServiceSuite) TestClose() {
	s.Run("close drops pending entries and refuses new requests", func() {
		s.fresh()
		_, err := s.service.Request(s.ctx, "mod1", "Someone", "r")
		s.Require().NoError(err)

		s.service.Close()

		s.Equal(0, s.service.PendingCount())
		_, err = s.service.Request(s.ctx, "mod1", "Someone", "r")
		s.ErrorIs(err, sentinel.ErrUnavailable)
	})
}
