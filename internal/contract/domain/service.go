package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	CreateContract(ctx context.Context, ownerUserID snowflake.ID, req CreateContractRequest) (*Contract, error)
	GetContract(ctx context.Context, id snowflake.ID) (*Contract, error)
	ListStores(ctx context.Context, contractID snowflake.ID) ([]Store, error)
	GetStoreByPublicID(ctx context.Context, publicID string) (*Store, error)
	AddStore(ctx context.Context, contractID snowflake.ID, req AddStoreRequest) (*Store, error)
	DeleteStore(ctx context.Context, contractID, storeID snowflake.ID) error
	StoreCredentials(ctx context.Context, storeID snowflake.ID) (*IntegrationInput, error)
	TransferOwnership(ctx context.Context, contractID, newOwnerUserID snowflake.ID) (*Contract, error)
	UpdateQuotas(ctx context.Context, contractID snowflake.ID, maxStores, maxUsers int) (*Contract, error)
}

type CreateContractRequest struct {
	Name         string
	BillingEmail string
	ContractType string
}

type AddStoreRequest struct {
	Name        string
	Integration *IntegrationInput
}

// IntegrationInput carries plaintext credentials. Exactly one kind may be set.
type IntegrationInput struct {
	OAuthClientID string `json:"oauth_client_id,omitempty"`
	OAuthSecret   string `json:"oauth_secret,omitempty"`
	APIKey        string `json:"api_key,omitempty"`
}

// Kind validates the credential shape and reports which kind it is.
func (in IntegrationInput) Kind() (IntegrationKind, error) {
	clientID := strings.TrimSpace(in.OAuthClientID)
	secret := strings.TrimSpace(in.OAuthSecret)
	apiKey := strings.TrimSpace(in.APIKey)

	hasOAuth := clientID != "" || secret != ""
	switch {
	case hasOAuth && apiKey != "":
		return IntegrationNone, ErrInvalidIntegration
	case hasOAuth && (clientID == "" || secret == ""):
		return IntegrationNone, ErrInvalidIntegration
	case hasOAuth:
		return IntegrationOAuth, nil
	case apiKey != "":
		return IntegrationAPIKey, nil
	}
	return IntegrationNone, ErrInvalidIntegration
}

var (
	ErrNotFound            = errors.New("contract_not_found")
	ErrStoreNotFound       = errors.New("store_not_found")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidEmail        = errors.New("invalid_billing_email")
	ErrInvalidContractType = errors.New("invalid_contract_type")
	ErrInvalidIntegration  = errors.New("invalid_integration")
	ErrInvalidQuota        = errors.New("invalid_quota")
	ErrQuotaExceeded       = errors.New("store_quota_exceeded")
	ErrOwnerNotEligible    = errors.New("owner_not_eligible")
)
