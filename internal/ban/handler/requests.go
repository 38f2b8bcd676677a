package handler

import (
	"strings"

	"banguard/internal/ban/models"
	dErrors "banguard/pkg/domain-errors"
)

// BanRequest is the body of POST /admin/bans.
type BanRequest struct {
	Name     string `json:"name"`
	Reason   string `json:"reason"`
	Duration string `json:"duration"`
}

// Validate only checks shape; name grammar is enforced by the engine.
func (r *BanRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	r.Duration = strings.TrimSpace(r.Duration)
	return nil
}

// KickRequest is the body of POST /admin/kicks.
type KickRequest struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

func (r *KickRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	return nil
}

// TempBanRequest is the body of POST /admin/tempbans. Admin falls back to
// the X-Admin-Name header.
type TempBanRequest struct {
	Admin  string `json:"admin"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

func (r *TempBanRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Admin = strings.TrimSpace(r.Admin)
	r.Name = strings.TrimSpace(r.Name)
	return nil
}

// LoginRequest is the body of POST /gateway/login.
type LoginRequest struct {
	AccountID string `json:"account_id"`
	Address   string `json:"address"`
	Name      string `json:"name"`
}

func (r *LoginRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	r.AccountID = strings.TrimSpace(r.AccountID)
	r.Address = strings.TrimSpace(r.Address)
	return nil
}

func (r *LoginRequest) Identity() models.Identity {
	return models.Identity{AccountID: r.AccountID, Address: r.Address, Name: r.Name}
}

// MessageResponse carries the operator-facing result of a command.
type MessageResponse struct {
	Message string `json:"message"`
}

// TempBanResponse reports which step of the confirmation protocol ran.
type TempBanResponse struct {
	Message string `json:"message"`
	State   string `json:"state"`
}

type NamesResponse struct {
	Names []string `json:"names"`
}

type ProtectedResponse struct {
	Name      string `json:"name"`
	Protected bool   `json:"protected"`
}

type LoginResponse struct {
	Denied  bool   `json:"denied"`
	Message string `json:"message,omitempty"`
}
