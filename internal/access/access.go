// Package access holds the capability table that gates every operation by
// {action, resource, role}.
package access

import "github.com/example/campuspoints/internal/models"

// Action is a verb applied to a resource.
type Action string

const (
	Create  Action = "create"
	Read    Action = "read"
	List    Action = "list"
	Update  Action = "update"
	Delete  Action = "delete"
	Process Action = "process"
	Flag    Action = "flag"
	Award   Action = "award"
	Manage  Action = "manage"
)

// Resource names a family of records.
type Resource string

const (
	Users        Resource = "users"
	Self         Resource = "self"
	Purchases    Resource = "purchases"
	Adjustments  Resource = "adjustments"
	Transfers    Resource = "transfers"
	Redemptions  Resource = "redemptions"
	Transactions Resource = "transactions"
	Events       Resource = "events"
	Organizers   Resource = "organizers"
	Guests       Resource = "guests"
	Promotions   Resource = "promotions"
	Reports      Resource = "reports"
	Roles        Resource = "roles"
)

type capability struct {
	action   Action
	resource Resource
}

// policy maps a capability to the minimum role holding it.
var policy = map[capability]models.Role{
	{Read, Self}:   models.RoleRegular,
	{Update, Self}: models.RoleRegular,

	{Create, Users}: models.RoleCashier,
	{Read, Users}:   models.RoleCashier,
	{List, Users}:   models.RoleManager,
	{Update, Users}: models.RoleManager,
	{Manage, Roles}: models.RoleSuperuser,

	{Create, Purchases}:    models.RoleCashier,
	{Create, Adjustments}:  models.RoleManager,
	{Create, Transfers}:    models.RoleRegular,
	{Create, Redemptions}:  models.RoleRegular,
	{Process, Redemptions}: models.RoleCashier,
	{List, Transactions}:   models.RoleManager,
	{Read, Transactions}:   models.RoleManager,
	{Flag, Transactions}:   models.RoleManager,

	{Create, Events}:     models.RoleManager,
	{List, Events}:       models.RoleRegular,
	{Read, Events}:       models.RoleRegular,
	{Manage, Events}:     models.RoleManager,
	{Update, Events}:     models.RoleManager,
	{Delete, Events}:     models.RoleManager,
	{Award, Events}:      models.RoleManager,
	{Manage, Organizers}: models.RoleManager,
	{Create, Guests}:     models.RoleManager,
	{Delete, Guests}:     models.RoleManager,

	{Create, Promotions}: models.RoleManager,
	{List, Promotions}:   models.RoleRegular,
	{Read, Promotions}:   models.RoleRegular,
	{Manage, Promotions}: models.RoleManager,
	{Update, Promotions}: models.RoleManager,
	{Delete, Promotions}: models.RoleManager,

	{Read, Reports}: models.RoleManager,
}

// Can reports whether role may perform action on resource. Unknown
// capabilities are denied.
func Can(role models.Role, action Action, resource Resource) bool {
	min, ok := policy[capability{action, resource}]
	if !ok {
		return false
	}
	return role.AtLeast(min)
}

// CanAssign reports whether an actor with role may grant target to another
// user. Managers hand out regular and cashier only.
func CanAssign(role, target models.Role) bool {
	if !target.Valid() {
		return false
	}
	if Can(role, Manage, Roles) {
		return true
	}
	return Can(role, Update, Users) && !target.AtLeast(models.RoleManager)
}
