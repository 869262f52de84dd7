package store

// Listing statuses as persisted. "expired" is derived at read time from
// AvailableUntil and never written to the store.
const (
	FoodStatusActive  = "active"
	FoodStatusClosed  = "closed"
	FoodStatusDeleted = "deleted"
)

// Request statuses. Pending is the only state a decision can move out of.
const (
	RequestStatusPending   = "pending"
	RequestStatusAccepted  = "accepted"
	RequestStatusRejected  = "rejected"
	RequestStatusCancelled = "cancelled"
)
