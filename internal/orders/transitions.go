package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// Role is the side of the order the acting user is on.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	// RoleAny is only meaningful as a list filter.
	RoleAny Role = "any"
)

// ParseRoleFilter maps the list query parameter to a Role. Empty means any.
func ParseRoleFilter(value string) (Role, bool) {
	switch Role(value) {
	case "", RoleAny:
		return RoleAny, true
	case RoleBuyer:
		return RoleBuyer, true
	case RoleSeller:
		return RoleSeller, true
	}
	return "", false
}

var transitionTable = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusCreated:         {enums.OrderStatusCancelled},
	enums.OrderStatusAwaitingPayment: {enums.OrderStatusCancelled},
	enums.OrderStatusPaid:            {enums.OrderStatusInProgress, enums.OrderStatusCancelled},
	enums.OrderStatusInProgress:      {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered:       {enums.OrderStatusCompleted},
}

// roleGate names the only role allowed to request a target. Targets missing
// here are not user-requestable through the table at all.
var roleGate = map[enums.OrderStatus]Role{
	enums.OrderStatusInProgress: RoleSeller,
	enums.OrderStatusDelivered:  RoleSeller,
	enums.OrderStatusCompleted:  RoleBuyer,
	enums.OrderStatusCancelled:  RoleBuyer,
}

// CanTransition reports whether the table allows from -> to.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range transitionTable[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// AllowedTargets lists the statuses reachable from the given status.
func AllowedTargets(from enums.OrderStatus) []enums.OrderStatus {
	targets := transitionTable[from]
	out := make([]enums.OrderStatus, len(targets))
	copy(out, targets)
	return out
}

// RoleMayRequest applies the role gate for the target status.
func RoleMayRequest(role Role, target enums.OrderStatus) bool {
	required, gated := roleGate[target]
	if !gated {
		return true
	}
	return required == role
}

// RoleFor resolves the acting user's side of the order.
func RoleFor(order *models.Order, userID uuid.UUID) (Role, bool) {
	if !order.IsParticipant(userID) {
		return "", false
	}
	// self-purchase orders resolve to buyer
	if order.BuyerID == userID {
		return RoleBuyer, true
	}
	return RoleSeller, true
}

// rolesOf returns every side the user occupies. Only self-purchase orders yield two.
func rolesOf(order *models.Order, userID uuid.UUID) []Role {
	var roles []Role
	if order.BuyerID == userID {
		roles = append(roles, RoleBuyer)
	}
	if order.SellerID == userID {
		roles = append(roles, RoleSeller)
	}
	return roles
}

func mayRequest(order *models.Order, userID uuid.UUID, target enums.OrderStatus) bool {
	for _, role := range rolesOf(order, userID) {
		if RoleMayRequest(role, target) {
			return true
		}
	}
	return false
}
