package enums

// DisputeStatus mirrors Stripe's dispute status values.
type DisputeStatus string

const (
	DisputeStatusWarningNeedsResponse DisputeStatus = "warning_needs_response"
	DisputeStatusWarningUnderReview   DisputeStatus = "warning_under_review"
	DisputeStatusWarningClosed        DisputeStatus = "warning_closed"
	DisputeStatusNeedsResponse        DisputeStatus = "needs_response"
	DisputeStatusUnderReview          DisputeStatus = "under_review"
	DisputeStatusWon                  DisputeStatus = "won"
	DisputeStatusLost                 DisputeStatus = "lost"
	DisputeStatusPrevented            DisputeStatus = "prevented"
)

// Closed reports whether Stripe considers the dispute resolved.
func (s DisputeStatus) Closed() bool {
	switch s {
	case DisputeStatusWon, DisputeStatusLost, DisputeStatusWarningClosed, DisputeStatusPrevented:
		return true
	}
	return false
}

// FavorsMerchant reports whether the funds stay with the provider.
func (s DisputeStatus) FavorsMerchant() bool {
	return s == DisputeStatusWon || s == DisputeStatusWarningClosed || s == DisputeStatusPrevented
}
