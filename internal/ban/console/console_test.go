package console

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"banguard/internal/ban/allowlist"
	"banguard/internal/ban/models"
	"banguard/internal/ban/service/permanent"
	"banguard/internal/ban/service/temporary"
	"banguard/internal/ban/store"
	"banguard/internal/gateway/memory"
	dErrors "banguard/pkg/domain-errors"
	"banguard/pkg/requestcontext"
)

type ConsoleSuite struct {
	suite.Suite
	ctx     context.Context
	path    string
	store   *store.Store
	gateway *memory.Gateway
	console *Console
}

func TestConsoleSuite(t *testing.T) {
	suite.Run(t, new(ConsoleSuite))
}

func (s *ConsoleSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local))
	s.path = filepath.Join(s.T().TempDir(), "banguard.yaml")

	var err error
	s.store, err = store.Open(s.ctx, s.path)
	s.Require().NoError(err)
	s.gateway = memory.New()
	guard := allowlist.Follow(s.store)

	tempBans, err := temporary.New(s.store, guard, temporary.WithGateway(s.gateway))
	s.Require().NoError(err)
	s.T().Cleanup(tempBans.Close)
	bans, err := permanent.New(s.store, guard, permanent.WithGateway(s.gateway), permanent.WithTempBans(tempBans))
	s.Require().NoError(err)

	s.console, err = New(bans, tempBans, guard, s.store, WithGateway(s.gateway))
	s.Require().NoError(err)
}

func (s *ConsoleSuite) TestBanAndUnban() {
	s.Run("ban reports the term and drops the session", func() {
		s.gateway.Connect(s.ctx, models.Identity{Name: "Cheater", AccountID: "acc-1"})

		msg, err := s.console.Ban(s.ctx, "Cheater", "fly hacks", "")
		s.Require().NoError(err)
		s.Equal("Banned Cheater (permanent): fly hacks", msg)
		s.False(s.gateway.IsConnected(s.ctx, "Cheater"))
		s.Equal([]string{"Cheater"}, s.console.ListBanned(s.ctx))

		denied, reason := s.console.Login(s.ctx, models.Identity{Name: "Alt", AccountID: "acc-1"})
		s.True(denied)
		s.Equal("permanently banned: fly hacks", reason)
	})

	s.Run("fallback duration is reported to the operator", func() {
		msg, err := s.console.Ban(s.ctx, "Vague", "r", "forever")
		s.Require().NoError(err)
		s.Contains(msg, "until 2025/03/02")
		s.Contains(msg, "banning for 1 day instead")
	})

	s.Run("unban reports success then AlreadyUnbanned", func() {
		msg, err := s.console.Unban(s.ctx, "Cheater")
		s.Require().NoError(err)
		s.Equal("Unbanned Cheater", msg)

		_, err = s.console.Unban(s.ctx, "Cheater")
		s.True(dErrors.HasCode(err, models.CodeAlreadyUnbanned))
	})
}

func (s *ConsoleSuite) TestKick() {
	s.Run("offline player is NotConnected", func() {
		_, err := s.console.Kick(s.ctx, "Nobody", "")
		s.True(dErrors.HasCode(err, models.CodeNotConnected))
	})

	s.Run("protected player is refused", func() {
		s.gateway.Connect(s.ctx, models.Identity{Name: "Admin"})
		_, err := s.console.Kick(s.ctx, "Admin", "")
		s.True(dErrors.HasCode(err, models.CodeProtected))
		s.True(s.gateway.IsConnected(s.ctx, "Admin"))
	})

	s.Run("empty reason uses the configured kick reason", func() {
		s.gateway.Connect(s.ctx, models.Identity{Name: "Noisy"})
		msg, err := s.console.Kick(s.ctx, "noisy", "")
		s.Require().NoError(err)

		kickReason := models.DefaultSettings().Defaults.KickReason
		s.Equal("Kicked noisy: "+kickReason, msg)
		drops := s.gateway.Disconnections()
		s.Require().NotEmpty(drops)
		s.Equal(kickReason, drops[len(drops)-1].Message)
	})
}

func (s *ConsoleSuite) TestTempBan() {
	s.Run("two requests apply the ban and release lifts it", func() {
		msg, applied, err := s.console.TempBan(s.ctx, "mod", "Suspect", "xray")
		s.Require().NoError(err)
		s.False(applied)
		s.Equal(models.DefaultSettings().TempBan.ConfirmationMessage, msg)

		msg, applied, err = s.console.TempBan(s.ctx, "mod", "Suspect", "")
		s.Require().NoError(err)
		s.True(applied)
		s.Equal("Suspect has been temporarily banned for 30 minutes", msg)
		s.Equal([]string{"Suspect"}, s.console.ListTempBanned(s.ctx))

		denied, reason := s.console.Login(s.ctx, models.Identity{Name: "suspect"})
		s.True(denied)
		s.Equal("temporarily banned: xray, remaining 30m", reason)

		msg, err = s.console.ReleaseTempBan(s.ctx, "Suspect")
		s.Require().NoError(err)
		s.Equal("Released temporary ban on Suspect", msg)
		s.Empty(s.console.ListTempBanned(s.ctx))
	})

	s.Run("protected target is refused", func() {
		_, _, err := s.console.TempBan(s.ctx, "mod", "Owner", "")
		s.True(dErrors.HasCode(err, models.CodeProtected))
	})
}

func (s *ConsoleSuite) TestReload() {
	s.Run("external edits to the allow list apply after reload", func() {
		s.True(s.console.IsProtected("Admin"))
		s.Require().NoError(os.WriteFile(s.path, []byte("whitelist:\n  enabled: true\n  players: [Mod]\n  protection_message: hands off\n"), 0o644))

		msg, err := s.console.Reload(s.ctx)
		s.Require().NoError(err)
		s.Equal("Reloaded ban data", msg)
		s.False(s.console.IsProtected("Admin"))
		s.True(s.console.IsProtected("Mod"))

		_, err = s.console.Ban(s.ctx, "Mod", "", "")
		s.Equal("hands off", dErrors.Message(err))
	})

	s.Run("reload after close is a persistence error", func() {
		s.Require().NoError(s.store.Close())
		_, err := s.console.Reload(s.ctx)
		s.True(dErrors.HasCode(err, models.CodePersistenceIO))
	})
}

func (s *ConsoleSuite) TestPanicsBecomeInternalErrors() {
	msg, err := s.console.run(s.ctx, "explode", func() (string, error) {
		panic("boom")
	})
	s.Empty(msg)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Contains(err.Error(), "explode failed unexpectedly")
}

func (s *ConsoleSuite) TestNew() {
	_, err := New(nil, nil, nil, nil)
	s.Require().Error(err)
	s.Contains(err.Error(), "ban engines are required")
}
