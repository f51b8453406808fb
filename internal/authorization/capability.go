package authorization

import "strings"

const (
	ObjectOrganization = "organization"
	ObjectMember       = "member"
	ObjectInvitation   = "invitation"
	ObjectProject      = "project"
	ObjectSubscription = "subscription"
	ObjectBilling      = "billing"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionOrganizationRead   = "organization.read"
	ActionOrganizationUpdate = "organization.update"
	ActionOrganizationDelete = "organization.delete"

	ActionMemberRead   = "member.read"
	ActionMemberUpdate = "member.update"
	ActionMemberDelete = "member.delete"

	ActionInvitationCreate = "invitation.create"
	ActionInvitationCancel = "invitation.cancel"

	ActionProjectCreate = "project.create"
	ActionProjectUpdate = "project.update"
	ActionProjectDelete = "project.delete"

	ActionSubscriptionRead    = "subscription.read"
	ActionSubscriptionUpgrade = "subscription.upgrade"
	ActionSubscriptionCancel  = "subscription.cancel"
	ActionSubscriptionRestore = "subscription.restore"
	ActionSubscriptionSync    = "subscription.sync"

	ActionBillingPortal = "billing.portal"

	ActionAuditLogRead = "audit_log.read"
)

// Billing reference actions, as named by the checkout and portal flows.
const (
	ReferenceUpgradeSubscription = "upgrade-subscription"
	ReferenceCancelSubscription  = "cancel-subscription"
	ReferenceRestoreSubscription = "restore-subscription"
	ReferenceBillingPortal       = "billing-portal"
)

const (
	roleSubjectOwner  = "role:owner"
	roleSubjectAdmin  = "role:admin"
	roleSubjectMember = "role:member"
)

// roleInheritance lists (child, parent) links: owner inherits admin, admin inherits member.
var roleInheritance = [][]string{
	{roleSubjectOwner, roleSubjectAdmin},
	{roleSubjectAdmin, roleSubjectMember},
}

func rolePolicies() [][]string {
	grants := map[string][]string{
		roleSubjectMember: {
			ActionOrganizationRead,
			ActionMemberRead,
			ActionProjectCreate,
			ActionSubscriptionRead,
		},
		roleSubjectAdmin: {
			ActionInvitationCreate,
			ActionInvitationCancel,
			ActionProjectUpdate,
		},
		roleSubjectOwner: {
			ActionMemberUpdate,
			ActionMemberDelete,
			ActionOrganizationUpdate,
			ActionOrganizationDelete,
			ActionProjectDelete,
			ActionSubscriptionUpgrade,
			ActionSubscriptionCancel,
			ActionSubscriptionRestore,
			ActionSubscriptionSync,
			ActionBillingPortal,
			ActionAuditLogRead,
		},
	}

	var policies [][]string
	for _, subject := range []string{roleSubjectMember, roleSubjectAdmin, roleSubjectOwner} {
		for _, capability := range grants[subject] {
			policies = append(policies, []string{subject, objectOf(capability), capability})
		}
	}
	return policies
}

// objectOf returns the part of a capability before the first dot.
func objectOf(capability string) string {
	object, _, _ := strings.Cut(capability, ".")
	return object
}

func roleSubject(role string) string {
	return "role:" + strings.ToLower(strings.TrimSpace(role))
}

func isBillingReferenceAction(action string) bool {
	switch action {
	case ReferenceUpgradeSubscription, ReferenceCancelSubscription, ReferenceRestoreSubscription, ReferenceBillingPortal:
		return true
	default:
		return false
	}
}
