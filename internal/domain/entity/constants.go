package entity

// ClaimStatus is the disposition of a claim
type ClaimStatus string

const (
	ClaimStatusPending  ClaimStatus = "PENDING"
	ClaimStatusApproved ClaimStatus = "APPROVED"
	ClaimStatusRejected ClaimStatus = "REJECTED"
)

// IsTerminal returns true for APPROVED and REJECTED
func (s ClaimStatus) IsTerminal() bool {
	return s == ClaimStatusApproved || s == ClaimStatusRejected
}

// String returns the string representation of the status
func (s ClaimStatus) String() string {
	return string(s)
}

// Decision is the tri-state outcome of a single vote
type Decision string

const (
	DecisionUndecided Decision = "UNDECIDED"
	DecisionApproved  Decision = "APPROVED"
	DecisionRejected  Decision = "REJECTED"
)

// IsFinal returns true once a reviewer has approved or rejected
func (d Decision) IsFinal() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// IsValid returns true if d is one of the defined decisions
func (d Decision) IsValid() bool {
	switch d {
	case DecisionUndecided, DecisionApproved, DecisionRejected:
		return true
	}
	return false
}

// Role of a directory user
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleManager  Role = "MANAGER"
	RoleEmployee Role = "EMPLOYEE"
)

// IsValid returns true if r is one of the defined roles
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	}
	return false
}

// History action constants
const (
	ActionSubmit       = "SUBMIT"
	ActionVote         = "VOTE"
	ActionReconfigure  = "RECONFIGURE"
	ActionStatusChange = "STATUS_CHANGE"
	ActionAdvisory     = "ADVISORY"
)

// Expense category constants
const (
	CategoryTravel         = "TRAVEL"
	CategoryMeal           = "MEAL"
	CategoryAccommodation  = "ACCOMMODATION"
	CategoryEquipment      = "EQUIPMENT"
	CategoryTransportation = "TRANSPORTATION"
	CategoryEntertainment  = "ENTERTAINMENT"
	CategoryCommunication  = "COMMUNICATION"
	CategoryOther          = "OTHER"
)

// IsValidCategory reports whether c is one of the expense categories
func IsValidCategory(c string) bool {
	switch c {
	case CategoryTravel, CategoryMeal, CategoryAccommodation, CategoryEquipment,
		CategoryTransportation, CategoryEntertainment, CategoryCommunication, CategoryOther:
		return true
	}
	return false
}
