package authz

// defaultPolicies contains the built-in Cedar authorization policies.
// They check principal.grantedActions, which is populated from the scope mapping,
// so custom scope names work without custom policies. A token limited to some
// tenants is refused everything on other tenants.
const defaultPolicies = `
permit(
  principal,
  action == CRMSync::Action::"read",
  resource
) when {
  principal.grantedActions.contains("read")
};

permit(
  principal,
  action == CRMSync::Action::"write",
  resource
) when {
  principal.grantedActions.contains("write")
};

permit(
  principal,
  action == CRMSync::Action::"admin",
  resource
) when {
  principal.grantedActions.contains("admin")
};

forbid(
  principal,
  action,
  resource
) when {
  principal.restricted &&
  resource has tenant &&
  !principal.tenants.contains(resource.tenant)
};
`
