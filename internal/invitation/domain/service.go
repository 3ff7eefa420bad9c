package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	seatdomain "github.com/smallbiznis/accessd/internal/seat/domain"
	userdomain "github.com/smallbiznis/accessd/internal/user/domain"
)

type CreateInvitationRequest struct {
	ContractID snowflake.ID
	Email      string
	RoleID     snowflake.ID
	// StoreScope limits the new seat to these stores; empty means every store of the contract.
	StoreScope []seatdomain.StoreAccessInput
}

// Issued carries the plaintext token. It is returned once and never stored.
type Issued struct {
	PlaintextToken string                   `json:"token"`
	ExpiresAt      time.Time                `json:"expires_at"`
	Seat           *seatdomain.ContractSeat `json:"seat"`
}

type SeatSummary struct {
	SeatID       snowflake.ID `json:"seat_id"`
	ContractID   snowflake.ID `json:"contract_id"`
	ContractName string       `json:"contract_name"`
	Email        string       `json:"email"`
	RoleID       snowflake.ID `json:"role_id"`
	RoleName     string       `json:"role_name"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

type ValidateResult struct {
	Valid  bool         `json:"valid"`
	Reason string       `json:"reason,omitempty"`
	Seat   *SeatSummary `json:"seat,omitempty"`
}

type AcceptRequest struct {
	Token       string
	Password    string
	DisplayName string
}

type AcceptResult struct {
	User *userdomain.User         `json:"user"`
	Seat *seatdomain.ContractSeat `json:"seat"`
}

type Service interface {
	CreateInvitation(ctx context.Context, actorID snowflake.ID, req CreateInvitationRequest) (*Issued, error)
	ResendInvitation(ctx context.Context, actorID snowflake.ID, seatID snowflake.ID) (*Issued, error)
	// ValidateInvitation reports token problems in the result; the error is reserved for storage failures.
	ValidateInvitation(ctx context.Context, token string) (ValidateResult, error)
	AcceptInvitation(ctx context.Context, req AcceptRequest) (*AcceptResult, error)
}

var (
	ErrNotPending          = errors.New("invitation_not_pending")
	ErrCredentialsRequired = errors.New("credentials_required")
)
