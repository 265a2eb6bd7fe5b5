package engine

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/events"
	"github.com/kode4food/paisley/pkg/util"
)

// Merge policies for variable sets arriving from concurrent branches.
// Strict merges refuse to pick a winner and reject on any conflict
const (
	MergePolicyLastWins  = "last_wins"
	MergePolicyFirstWins = "first_wins"
	MergePolicyStrict    = "strict"
)

var validMergePolicies = util.SetOf(
	MergePolicyLastWins,
	MergePolicyFirstWins,
	MergePolicyStrict,
)

// UpdateVariables applies a variable patch to a state record. Only names
// whose values actually change are reported; a patch that changes nothing
// leaves the version untouched
func (e *Engine) UpdateVariables(
	ctx context.Context, id api.StateID, req *api.UpdateVariablesRequest,
) (*api.StateResult, error) {
	var res *api.StateResult
	var changed []api.Name

	st, err := e.execState(ctx, id,
		func(st *api.WorkflowState, ag *StateAggregator) error {
			if st.ID == "" {
				return fmt.Errorf("%w: %s", ErrStateNotFound, id)
			}

			conflict, err := versionConflict(
				st, ag, "update_variables", req.ExpectedVersion,
			)
			if err != nil || conflict != nil {
				res = conflict
				return err
			}

			changed = changedNames(st.Variables, req.Variables)
			if len(changed) == 0 {
				return nil
			}
			return events.Raise(ag, api.EventVariablesUpdated,
				api.VariablesUpdatedEvent{
					Updates: req.Variables,
					Changed: changed,
					Version: st.Version + 1,
				})
		},
	)
	if err != nil {
		return nil, err
	}
	if res != nil {
		return res, nil
	}

	out := api.OK(st)
	out.Changed = changed
	return out, nil
}

// MergeVariables folds variable sets from concurrent branches into the
// state under the requested conflict policy. Names the sources disagree on
// are reported as conflicts whichever policy applies
func (e *Engine) MergeVariables(
	ctx context.Context, id api.StateID, req *api.MergeRequest,
) (*api.StateResult, error) {
	policy := req.Policy
	if policy == "" {
		policy = MergePolicyLastWins
	}
	if !validMergePolicies.Contains(policy) {
		return api.Invalid([]*api.FieldError{api.NewFieldError(
			"policy", fmt.Sprintf("invalid merge policy %q", policy),
		)}), nil
	}
	if len(req.Sources) == 0 {
		return api.Invalid([]*api.FieldError{api.NewFieldError(
			"sources", "at least one source is required",
		)}), nil
	}

	var res *api.StateResult
	var changed, conflicts []api.Name

	st, err := e.execState(ctx, id,
		func(st *api.WorkflowState, ag *StateAggregator) error {
			if st.ID == "" {
				return fmt.Errorf("%w: %s", ErrStateNotFound, id)
			}

			conflict, err := versionConflict(
				st, ag, "merge_variables", req.ExpectedVersion,
			)
			if err != nil || conflict != nil {
				res = conflict
				return err
			}

			var merged api.Variables
			merged, changed, conflicts = mergeSources(
				st.Variables, req.Sources, policy,
			)
			if policy == MergePolicyStrict && len(conflicts) > 0 {
				res = api.Failed(api.ErrCodeConflict, fmt.Sprintf(
					"merge conflicts on %d variables", len(conflicts),
				))
				res.Conflicts = conflicts
				return nil
			}
			if len(changed) == 0 {
				return nil
			}
			return events.Raise(ag, api.EventVariablesMerged,
				api.VariablesMergedEvent{
					Merged:    merged,
					Changed:   changed,
					Conflicts: conflicts,
					Policy:    policy,
					Sources:   len(req.Sources),
					Version:   st.Version + 1,
				})
		},
	)
	if err != nil {
		return nil, err
	}
	if res != nil {
		return res, nil
	}

	out := api.OK(st)
	out.Changed = changed
	out.Conflicts = conflicts
	return out, nil
}

// mergeSources folds the source sets into the base scope. The policy only
// decides which conflicting value wins; names no source disagrees on merge
// the same way under every policy
func mergeSources(
	base api.Variables, sources []api.Variables, policy string,
) (api.Variables, []api.Name, []api.Name) {
	claimed := api.Variables{}
	conflictSeen := map[api.Name]bool{}
	var conflicts []api.Name

	for _, src := range sources {
		for _, name := range src.Names() {
			val := src[name]
			prev, ok := claimed[name]
			if !ok {
				claimed[name] = val
				continue
			}
			if reflect.DeepEqual(prev, val) {
				continue
			}
			if !conflictSeen[name] {
				conflictSeen[name] = true
				conflicts = append(conflicts, name)
			}
			if policy == MergePolicyLastWins {
				claimed[name] = val
			}
		}
	}
	slices.Sort(conflicts)

	return base.Apply(claimed), changedNames(base, claimed), conflicts
}

// changedNames reports which names in the patch differ from the scope
func changedNames(current, updates api.Variables) []api.Name {
	var res []api.Name
	for _, name := range updates.Names() {
		cur, ok := current[name]
		if !ok || !reflect.DeepEqual(cur, updates[name]) {
			res = append(res, name)
		}
	}
	return res
}
