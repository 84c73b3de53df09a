package domain

import "github.com/google/uuid"

type PropertyStatus string

const (
	PropertyStatusDraft               PropertyStatus = "draft"
	PropertyStatusPendingVerification PropertyStatus = "pending_verification"
	PropertyStatusVerified            PropertyStatus = "verified"
	PropertyStatusSuspended           PropertyStatus = "suspended"
)

type CancellationPolicy string

const (
	CancellationPolicyFlexible CancellationPolicy = "flexible"
	CancellationPolicyModerate CancellationPolicy = "moderate"
	CancellationPolicyStrict   CancellationPolicy = "strict"
)

func (p CancellationPolicy) IsValid() bool {
	switch p {
	case CancellationPolicyFlexible, CancellationPolicyModerate, CancellationPolicyStrict:
		return true
	}
	return false
}

// Property is the catalog's view of a listing at quote time. The engine never writes it.
type Property struct {
	ID                 uuid.UUID
	HostID             uuid.UUID
	Title              string
	Status             PropertyStatus
	NightlyPrice       Money
	CleaningFee        Money
	DepositAmount      Money
	MaxGuests          int
	MinNights          int
	CancellationPolicy CancellationPolicy
}
