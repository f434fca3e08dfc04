package listing

import "github.com/garnizeh/estate/pkg/models"

// actor is who may fire a transition.
type actor int

const (
	// actorLister is the owner or agent who owns the listing.
	actorLister actor = iota + 1
	actorAdmin
)

// transitions is the listing workflow. Pairs missing here are invalid.
var transitions = map[models.PropertyStatus]map[models.PropertyStatus]actor{
	models.StatusDraft: {
		models.StatusPendingApproval: actorLister,
	},
	models.StatusPendingApproval: {
		models.StatusApproved: actorAdmin,
		models.StatusRejected: actorAdmin,
	},
	models.StatusApproved: {
		models.StatusSold:   actorLister,
		models.StatusRented: actorLister,
	},
}

// CanTransition reports whether from -> to is in the workflow.
func CanTransition(from, to models.PropertyStatus) bool {
	_, ok := transitions[from][to]
	return ok
}

// Editable reports whether an owner may still change a listing's content.
func Editable(s models.PropertyStatus) bool {
	return s == models.StatusDraft || s == models.StatusPendingApproval
}
