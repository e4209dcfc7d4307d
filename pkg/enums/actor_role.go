package enums

// ActorRole identifies who is driving an order change.
type ActorRole string

const (
	ActorRoleCustomer       ActorRole = "customer"
	ActorRoleAdmin          ActorRole = "admin"
	ActorRolePaymentHandler ActorRole = "payment_handler"
	ActorRoleSystem         ActorRole = "system"
)

var actorRoles = newClosedSet("actor role",
	ActorRoleCustomer, ActorRoleAdmin, ActorRolePaymentHandler, ActorRoleSystem)

func (a ActorRole) String() string { return string(a) }
func (a ActorRole) IsValid() bool  { return actorRoles.contains(a) }

func ParseActorRole(value string) (ActorRole, error) { return actorRoles.parse(value) }
