package authz

import (
	"context"
	"fmt"
	"log/slog"

	cedar "github.com/cedar-policy/cedar-go"
)

const (
	cedarNamespace      = "CRMSync"
	defaultResourceType = "Tenant"

	// globalResourceID names the resource of requests that span all tenants
	globalResourceID = "global"
)

type cedarAuthorizer struct {
	policySet *cedar.PolicySet
}

// NewCedarAuthorizer creates a new Cedar-based authorizer.
// If policyBytes is nil, built-in default policies are used.
func NewCedarAuthorizer(policyBytes []byte) (*cedarAuthorizer, error) {
	if policyBytes == nil {
		policyBytes = []byte(defaultPolicies)
	}

	ps, err := cedar.NewPolicySetFromBytes("policies.cedar", policyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Cedar policies: %w", err)
	}

	return &cedarAuthorizer{policySet: ps}, nil
}

// Authorize evaluates the policies for one admin request. The principal
// carries the actions its scopes grant and the tenants it is limited to; a
// tenant resource carries its id so policies can compare the two.
func (a *cedarAuthorizer) Authorize(_ context.Context, req Request) (Decision, error) {
	principalUID := cedar.NewEntityUID(cedar.EntityType(cedarNamespace+"::User"), cedar.String("authenticated"))

	resourceType := req.ResourceType
	if resourceType == "" {
		resourceType = defaultResourceType
	}
	resourceID := req.ResourceID
	if resourceID == "" {
		resourceID = globalResourceID
	}
	resourceUID := cedar.NewEntityUID(cedar.EntityType(cedarNamespace+"::"+resourceType), cedar.String(resourceID))

	resourceAttrs := cedar.RecordMap{}
	if req.ResourceID != "" && resourceType == defaultResourceType {
		resourceAttrs["tenant"] = cedar.String(req.ResourceID)
	}

	entities := cedar.EntityMap{
		principalUID: cedar.Entity{
			UID: principalUID,
			Attributes: cedar.NewRecord(cedar.RecordMap{
				"grantedActions": stringSet(req.GrantedActions),
				"restricted":     cedar.Boolean(req.Tenants != nil),
				"tenants":        stringSet(req.Tenants),
			}),
		},
		resourceUID: cedar.Entity{
			UID:        resourceUID,
			Attributes: cedar.NewRecord(resourceAttrs),
		},
	}

	decision, diagnostic := cedar.Authorize(a.policySet, entities, cedar.Request{
		Principal: principalUID,
		Action:    cedar.NewEntityUID(cedar.EntityType(cedarNamespace+"::Action"), cedar.String(req.Action)),
		Resource:  resourceUID,
		Context:   cedar.NewRecord(cedar.RecordMap{}),
	})

	slog.Debug("Authorization decision",
		"action", req.Action,
		"decision", decision,
		"granted_actions", req.GrantedActions,
		"resource", resourceUID.String(),
		"tenants", req.Tenants,
	)

	var reasons []string
	for _, r := range diagnostic.Reasons {
		reasons = append(reasons, string(r.PolicyID))
	}

	return Decision{
		Allowed: decision == cedar.Allow,
		Reasons: reasons,
	}, nil
}

func stringSet(values []string) cedar.Set {
	items := make([]cedar.Value, len(values))
	for i, v := range values {
		items[i] = cedar.String(v)
	}
	return cedar.NewSet(items...)
}
