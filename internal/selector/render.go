package selector

import "github.com/roach88/ballotdesk/internal/value"

// Render converts a selector tree back into its object form.
//
// Parse(Render(s)) is equivalent to s for every tree Parse can produce, and
// structurally identical selectors render to equal objects regardless of the
// key order they were written in. Never renders as {"$never": reason}.
func Render(sel Selector) value.Object {
	switch s := sel.(type) {
	case nil:
		return value.Object{}
	case And:
		out := value.Object{}
		var spill value.Array
		for _, term := range s.Terms {
			if !mergeTerm(out, term) {
				spill = append(spill, Render(term))
			}
		}
		if len(spill) > 0 {
			out["$and"] = spill
		}
		return out
	default:
		out := value.Object{}
		mergeTerm(out, sel)
		return out
	}
}

// mergeTerm adds term into out, reporting false when it would collide with an
// entry already present.
func mergeTerm(out value.Object, term Selector) bool {
	switch t := term.(type) {
	case Eq:
		if _, taken := out[t.Field]; taken {
			return false
		}
		out[t.Field] = t.Value
	case Ne:
		return mergeOp(out, t.Field, OpNe, t.Value)
	case Exists:
		return mergeOp(out, t.Field, OpExists, value.Bool(t.Want))
	case Regex:
		return mergeOp(out, t.Field, OpRegex, value.String(t.Pattern))
	case Or:
		if _, taken := out[OpOr]; taken {
			return false
		}
		branches := make(value.Array, len(t.Branches))
		for i, b := range t.Branches {
			branches[i] = Render(b)
		}
		out[OpOr] = branches
	case Never:
		if _, taken := out["$never"]; taken {
			return false
		}
		out["$never"] = value.String(t.Reason)
	default:
		return false
	}
	return true
}

func mergeOp(out value.Object, field, op string, arg value.Value) bool {
	existing, taken := out[field]
	if !taken {
		out[field] = value.Object{op: arg}
		return true
	}
	ops, ok := existing.(value.Object)
	if !ok || !hasOperatorKey(ops) {
		return false
	}
	if _, dup := ops[op]; dup {
		return false
	}
	ops[op] = arg
	return true
}
