package customers

import "time"

// Status mirrors where a phone is in the onboarding funnel. It is reporting
// data only; dialogue decisions read the conversation state instead.
type Status string

const (
	StatusNew          Status = "new"
	StatusWaitlist     Status = "waitlist"
	StatusBuilding     Status = "building"
	StatusLaunched     Status = "launched"
	StatusExpired      Status = "expired"
	StatusDeployFailed Status = "deploy_failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusWaitlist, StatusBuilding, StatusLaunched, StatusExpired, StatusDeployFailed:
		return true
	}
	return false
}

type Customer struct {
	Phone     string    `json:"phone"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
