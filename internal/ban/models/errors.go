package models

import (
	dErrors "banguard/pkg/domain-errors"
)

// Ban-specific error codes. All of them are non-fatal and are shown to the
// operator verbatim.
const (
	CodeEmptyIdentifier   dErrors.Code = "empty_identifier"
	CodeInvalidIdentifier dErrors.Code = "invalid_identifier"
	CodeProtected         dErrors.Code = "protected"
	CodeAlreadyBanned     dErrors.Code = "already_banned"
	CodeAlreadyTempBanned dErrors.Code = "already_temp_banned"
	CodeNoSuchBan         dErrors.Code = "no_such_ban"
	CodeAlreadyUnbanned   dErrors.Code = "already_unbanned"
	CodeNoActiveTempBan   dErrors.Code = "no_active_temp_ban"
	CodeNotConnected      dErrors.Code = "not_connected"
	CodePersistenceIO     dErrors.Code = "persistence_io_failure"
)

// IsIdentifierError reports whether err rejected the player name itself.
func IsIdentifierError(err error) bool {
	return dErrors.HasCode(err, CodeEmptyIdentifier) || dErrors.HasCode(err, CodeInvalidIdentifier)
}

// ErrProtected builds the refusal returned for allow-listed names.
func ErrProtected(message string) error {
	return dErrors.New(CodeProtected, message)
}

// ErrPersistence wraps a store write failure.
func ErrPersistence(err error) error {
	return dErrors.Wrap(err, CodePersistenceIO, "failed to save ban data, try again")
}
