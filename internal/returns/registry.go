package returns

import (
	"github.com/angelmondragon/returns-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/returns-engine/pkg/errors"
)

// edge is one legal transition with the roles allowed to trigger it.
type edge struct {
	to    enums.ReturnStatus
	roles []enums.ActorRole
}

// Registry holds the legal return transition graph. A transition is valid
// only if the (from, to) edge exists and the actor's role is on the edge.
type Registry struct {
	edges map[enums.ReturnStatus][]edge
}

// NewRegistry builds the canonical return lifecycle graph.
func NewRegistry() *Registry {
	return &Registry{
		edges: map[enums.ReturnStatus][]edge{
			enums.ReturnStatusPending: {
				{to: enums.ReturnStatusUnderReview, roles: []enums.ActorRole{enums.ActorRoleAdmin, enums.ActorRoleSystem}},
			},
			enums.ReturnStatusUnderReview: {
				{to: enums.ReturnStatusApprovedAwaitingPickup, roles: []enums.ActorRole{enums.ActorRoleSeller, enums.ActorRoleAdmin}},
				{to: enums.ReturnStatusRejected, roles: []enums.ActorRole{enums.ActorRoleSeller, enums.ActorRoleAdmin}},
			},
			enums.ReturnStatusApprovedAwaitingPickup: {
				{to: enums.ReturnStatusPickupScheduled, roles: []enums.ActorRole{enums.ActorRoleSeller, enums.ActorRoleAdmin, enums.ActorRoleSystem}},
			},
			enums.ReturnStatusPickupScheduled: {
				{to: enums.ReturnStatusPickedUp, roles: []enums.ActorRole{enums.ActorRoleSystem}},
			},
			enums.ReturnStatusPickedUp: {
				{to: enums.ReturnStatusReceivedAtHub, roles: []enums.ActorRole{enums.ActorRoleSystem}},
			},
			enums.ReturnStatusReceivedAtHub: {
				{to: enums.ReturnStatusDeliveredToSeller, roles: []enums.ActorRole{enums.ActorRoleSystem}},
				{to: enums.ReturnStatusReceivedBySeller, roles: []enums.ActorRole{enums.ActorRoleSeller}},
			},
			enums.ReturnStatusDeliveredToSeller: {
				{to: enums.ReturnStatusInspectionApproved, roles: []enums.ActorRole{enums.ActorRoleSeller, enums.ActorRoleAdmin}},
				{to: enums.ReturnStatusInspectionRejected, roles: []enums.ActorRole{enums.ActorRoleSeller, enums.ActorRoleAdmin}},
			},
			enums.ReturnStatusReceivedBySeller: {
				{to: enums.ReturnStatusInspectionApproved, roles: []enums.ActorRole{enums.ActorRoleSeller, enums.ActorRoleAdmin}},
				{to: enums.ReturnStatusInspectionRejected, roles: []enums.ActorRole{enums.ActorRoleSeller, enums.ActorRoleAdmin}},
			},
			enums.ReturnStatusInspectionApproved: {
				{to: enums.ReturnStatusRefundQueued, roles: []enums.ActorRole{enums.ActorRoleAdmin, enums.ActorRoleFinance}},
			},
			enums.ReturnStatusRefundQueued: {
				{to: enums.ReturnStatusRefunded, roles: []enums.ActorRole{enums.ActorRoleFinance, enums.ActorRoleSystem}},
			},
		},
	}
}

// Validate checks that (from, to) is a legal edge triggerable by role.
func (r *Registry) Validate(from, to enums.ReturnStatus, role enums.ActorRole) error {
	if !from.IsValid() || !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown return status").
			WithDetails(map[string]string{"from": from.String(), "to": to.String()})
	}
	if !role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown actor role")
	}

	found := false
	for _, e := range r.edges[from] {
		if e.to != to {
			continue
		}
		found = true
		for _, allowed := range e.roles {
			if allowed == role {
				return nil
			}
		}
	}

	if !found {
		return pkgerrors.New(pkgerrors.CodeIllegalTransition, "transition not allowed").
			WithDetails(map[string]string{"from": from.String(), "to": to.String()})
	}
	return pkgerrors.New(pkgerrors.CodeIllegalTransition, "role may not trigger this transition").
		WithDetails(map[string]string{"from": from.String(), "to": to.String(), "role": role.String()})
}

// Targets lists the statuses reachable from the given status for any role.
func (r *Registry) Targets(from enums.ReturnStatus) []enums.ReturnStatus {
	edges := r.edges[from]
	targets := make([]enums.ReturnStatus, 0, len(edges))
	for _, e := range edges {
		targets = append(targets, e.to)
	}
	return targets
}
