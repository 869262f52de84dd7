// Package disclosure decides when one party's contact details may be
// revealed to another. The policy fails closed: absent an accepted
// request pairing the two users, nothing is disclosed.
package disclosure

import (
	"context"

	"github.com/sharemeal/sharemeal-go/internal/store"
)

// Contact is the subset of a user's profile revealed after acceptance.
type Contact struct {
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone,omitempty"`
}

// PairedByRequest reports whether req is an accepted request that pairs
// viewerID with subjectID, in either role.
func PairedByRequest(viewerID, subjectID string, req *store.FoodRequest) bool {
	if req == nil || req.Status != store.RequestStatusAccepted {
		return false
	}
	if req.OwnerID == viewerID && req.RequesterID == subjectID {
		return true
	}
	if req.RequesterID == viewerID && req.OwnerID == subjectID {
		return true
	}
	return false
}

// ContactFor returns the contact view of subject as seen by the viewer
// through req. Phone is included only when req grants disclosure.
func ContactFor(viewerID string, subject *store.User, req *store.FoodRequest) Contact {
	c := Contact{DisplayName: subject.DisplayName}
	if PairedByRequest(viewerID, subject.ID, req) {
		c.Phone = subject.Phone
	}
	return c
}

// Gate answers disclosure queries against the request collection.
type Gate struct {
	requests store.RequestStore
}

// NewGate creates a Gate backed by the given request store.
func NewGate(requests store.RequestStore) *Gate {
	return &Gate{requests: requests}
}

// Allowed reports whether viewerID may see subjectID's contact details.
// It scans the viewer's requests for an accepted pairing; store errors
// propagate so callers can distinguish "denied" from "unknown".
func (g *Gate) Allowed(ctx context.Context, viewerID, subjectID string) (bool, error) {
	if viewerID == subjectID {
		return true, nil
	}
	reqs, err := g.requests.ListRequestsByParty(ctx, viewerID)
	if err != nil {
		return false, err
	}
	for _, req := range reqs {
		if PairedByRequest(viewerID, subjectID, req) {
			return true, nil
		}
	}
	return false, nil
}
