// Package conflict decides which version of an entity wins when the
// system-of-record and an external system both changed it since the last sync.
//
// Everything here is a pure function of its inputs so retries of the same
// operation always reach the same decision.
package conflict

import (
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/crmsync/internal/entity"
)

// Policy selects how conflicts are resolved
type Policy string

const (
	// PolicySourcePriority always keeps the system-of-record's version
	PolicySourcePriority Policy = "source-priority"

	// PolicyExternalPriority always keeps the external system's version
	PolicyExternalPriority Policy = "external-priority"

	// PolicyFieldMerge picks each field from the side that modified it last.
	// Ties go to the system-of-record.
	PolicyFieldMerge Policy = "field-merge"
)

// MergedSource is the SourceSystem of an entity assembled from both sides
const MergedSource = "merge"

// Policies lists the supported policies
var Policies = []Policy{PolicySourcePriority, PolicyExternalPriority, PolicyFieldMerge}

// ErrUnknownPolicy is returned for a policy name that is not supported
var ErrUnknownPolicy = errors.New("unknown conflict policy")

// ParsePolicy converts a string into a Policy
func ParsePolicy(s string) (Policy, error) {
	for _, p := range Policies {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Resolve returns the winning entity for local (system-of-record) and remote
// (external system) versions of the same record. The result carries the
// canonical EntityID and never aliases either input.
func Resolve(local, remote *entity.Entity, policy Policy) (*entity.Entity, error) {
	if local == nil || remote == nil {
		return nil, errors.New("both local and remote entities are required")
	}
	if local.Kind != remote.Kind {
		return nil, fmt.Errorf("kind mismatch: %s vs %s", local.Kind, remote.Kind)
	}

	var winner *entity.Entity
	switch policy {
	case PolicySourcePriority:
		winner = local.Clone()
	case PolicyExternalPriority:
		winner = remote.Clone()
	case PolicyFieldMerge:
		winner = merge(local, remote)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}

	winner.EntityID = local.EntityID
	if winner.EntityID == "" {
		winner.EntityID = remote.EntityID
	}
	winner.TenantID = local.TenantID
	winner.ExternalID = ""
	winner.Version = max(local.Version, remote.Version)
	if remote.LastModifiedAt.After(local.LastModifiedAt) {
		winner.LastModifiedAt = remote.LastModifiedAt
	} else {
		winner.LastModifiedAt = local.LastModifiedAt
	}
	return winner, nil
}

func merge(local, remote *entity.Entity) *entity.Entity {
	out := &entity.Entity{
		Kind:            local.Kind,
		Fields:          entity.Fields{},
		FieldModifiedAt: map[string]time.Time{},
	}

	fromLocal, fromRemote := false, false
	for _, def := range entity.Schema(local.Kind) {
		name := def.Name
		lv, inLocal := local.Fields[name]
		rv, inRemote := remote.Fields[name]
		if !inLocal && !inRemote {
			continue
		}

		useRemote := inRemote &&
			(!inLocal || remote.ModifiedAt(name).After(local.ModifiedAt(name)))
		if useRemote {
			out.Fields[name] = cloneValue(rv)
			out.FieldModifiedAt[name] = remote.ModifiedAt(name)
			if !inLocal || !entity.ValuesEqual(lv, rv) {
				fromRemote = true
			}
			continue
		}
		out.Fields[name] = cloneValue(lv)
		out.FieldModifiedAt[name] = local.ModifiedAt(name)
		if !inRemote || !entity.ValuesEqual(lv, rv) {
			fromLocal = true
		}
	}

	switch {
	case fromLocal && fromRemote:
		out.SourceSystem = MergedSource
	case fromRemote:
		out.SourceSystem = remote.SourceSystem
	default:
		out.SourceSystem = local.SourceSystem
	}
	return out
}

func cloneValue(v any) any {
	if list, ok := v.([]string); ok {
		return append([]string(nil), list...)
	}
	return v
}

// Decision is the outcome of resolving a conflict: the winning entity and the
// sides that do not hold it yet
type Decision struct {
	Winner       *entity.Entity
	UpdateLocal  bool
	UpdateRemote bool
}

// Decide resolves the conflict and reports which side(s) must be written
func Decide(local, remote *entity.Entity, policy Policy) (Decision, error) {
	winner, err := Resolve(local, remote, policy)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Winner:       winner,
		UpdateLocal:  !entity.SameFields(local, winner),
		UpdateRemote: !entity.SameFields(remote, winner),
	}, nil
}
