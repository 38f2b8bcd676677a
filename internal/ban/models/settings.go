package models

import (
	"slices"
	"time"
)

// Settings are the operator-tunable values stored next to the ban tables.
type Settings struct {
	Defaults  DefaultReasons
	TempBan   TempBanSettings
	Allowlist AllowlistSettings
}

type DefaultReasons struct {
	BanReason     string
	KickReason    string
	TempBanReason string
}

type TempBanSettings struct {
	Duration            time.Duration
	ConfirmationMessage string
	ConfirmationTimeout time.Duration
}

type AllowlistSettings struct {
	Enabled           bool
	Names             []string
	ProtectionMessage string
}

// DefaultSettings mirrors the skeleton written for a fresh data file.
func DefaultSettings() Settings {
	return Settings{
		Defaults: DefaultReasons{
			BanReason:     "Violation of server rules",
			KickReason:    "Kicked by an operator",
			TempBanReason: "Temporarily removed, please try again later",
		},
		TempBan: TempBanSettings{
			Duration:            30 * time.Minute,
			ConfirmationMessage: "This removes the player for 30 minutes before they can rejoin. Check the player's surroundings first, then run the same command again to confirm.",
			ConfirmationTimeout: 3 * time.Minute,
		},
		Allowlist: AllowlistSettings{
			Enabled:           true,
			Names:             []string{"Admin", "Owner"},
			ProtectionMessage: "This player is protected by the allow list; the operation was refused.",
		},
	}
}

// Clone returns a copy that shares no slices with s.
func (s Settings) Clone() Settings {
	out := s
	out.Allowlist.Names = slices.Clone(s.Allowlist.Names)
	return out
}
