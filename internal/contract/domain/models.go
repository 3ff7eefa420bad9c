package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Contract is the billing and ownership unit that owns stores and seats.
type Contract struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	Name             string       `gorm:"type:text;not null" json:"name"`
	Slug             string       `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	BillingEmail     string       `gorm:"type:text;not null" json:"billing_email"`
	OwnerID          snowflake.ID `gorm:"column:owner_id;not null;index" json:"owner_id"`
	ContractType     string       `gorm:"type:text;not null" json:"contract_type"`
	MaxStores        int          `gorm:"not null" json:"max_stores"`
	MaxUsers         int          `gorm:"not null" json:"max_users"`
	StripeCustomerID string       `gorm:"type:text" json:"stripe_customer_id,omitempty"`
	CreditBalance    int64        `gorm:"not null" json:"credit_balance"`
	IsDeleted        bool         `gorm:"not null" json:"-"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

func (Contract) TableName() string { return "contracts" }

type IntegrationKind string

const (
	IntegrationNone   IntegrationKind = ""
	IntegrationOAuth  IntegrationKind = "oauth"
	IntegrationAPIKey IntegrationKind = "api_key"
)

// Store is an analytics source owned by a contract. Credentials are sealed at rest.
type Store struct {
	ID                snowflake.ID    `gorm:"primaryKey" json:"id"`
	PublicID          string          `gorm:"column:public_id;type:text;not null;uniqueIndex" json:"public_id"`
	ContractID        snowflake.ID    `gorm:"column:contract_id;not null;index" json:"contract_id"`
	Name              string          `gorm:"type:text;not null" json:"name"`
	IntegrationKind   IntegrationKind `gorm:"column:integration_kind;type:text;not null" json:"integration_kind"`
	OAuthClientID     string          `gorm:"column:oauth_client_id;type:text" json:"-"`
	OAuthSecretSealed string          `gorm:"column:oauth_secret_sealed;type:text" json:"-"`
	APIKeySealed      string          `gorm:"column:api_key_sealed;type:text" json:"-"`
	IsDeleted         bool            `gorm:"not null" json:"-"`
	CreatedAt         time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"not null" json:"updated_at"`
}

func (Store) TableName() string { return "stores" }

func (s Store) HasIntegration() bool {
	return s.IntegrationKind != IntegrationNone
}
