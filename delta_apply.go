package recordbin

import (
	"fmt"
	"reflect"
	"slices"
)

// ApplyTo applies the delta to target. CREATED and REPLACED set the field,
// so replaying them is harmless; REMOVED of an absent field does nothing.
func (d *Delta) ApplyTo(target *Record) error {
	if target.Class == "" {
		target.Class = d.Class
	}
	for _, fc := range d.Fields {
		switch fc.Op {
		case OpCreated, OpReplaced:
			target.SetTyped(fc.Name, fc.Value, fc.Type)
		case OpRemoved:
			target.Remove(fc.Name)
		case OpChanged:
			cur, exists := target.Lookup(fc.Name)
			nv, err := applyNested(fc.Type, cur.Value, fc.Nested)
			if err != nil {
				return fmt.Errorf("%s: %w", fc.Name, err)
			}
			t := fc.Type
			if exists && cur.Type != Any {
				t = cur.Type
			}
			target.SetTyped(fc.Name, nv, t)
		default:
			return fmt.Errorf("%s: invalid delta op %v", fc.Name, fc.Op)
		}
	}
	return nil
}

// applyNested applies a nested delta to the current value of a field or
// element and returns the updated value.
func applyNested(t Type, cur any, nested any) (any, error) {
	switch t {
	case Embedded:
		d, ok := nested.(*Delta)
		if !ok {
			return nil, fmt.Errorf("EMBEDDED change with %T", nested)
		}
		rec, ok := cur.(*Record)
		if !ok || rec == nil {
			if cur != nil {
				return nil, fmt.Errorf("cannot apply embedded delta to %T", cur)
			}
			rec = NewRecord(d.Class)
		}
		return rec, d.ApplyTo(rec)
	case LinkBag:
		bd, ok := nested.(*BagDelta)
		if !ok {
			return nil, fmt.Errorf("LINKBAG change with %T", nested)
		}
		bag, ok := cur.(*RidBag)
		if !ok || bag == nil {
			if cur != nil {
				return nil, fmt.Errorf("cannot apply bag delta to %T", cur)
			}
			bag = NewEmbeddedRidBag()
		}
		return bag, bd.ApplyTo(bag)
	}

	cd, ok := nested.(*CollectionDelta)
	if !ok {
		return nil, fmt.Errorf("%v change with %T", t, nested)
	}
	switch t {
	case EmbeddedList:
		list, err := currentList(cur)
		if err != nil {
			return nil, err
		}
		return applyListDelta(list, cd)
	case EmbeddedSet:
		list, err := currentList(cur)
		if err != nil {
			return nil, err
		}
		set, err := applySetDelta(list, cd)
		return EmbeddedSetValue(set), err
	case EmbeddedMap:
		m, err := currentMap(cur)
		if err != nil {
			return nil, err
		}
		return applyMapDelta(m, cd)
	case LinkListType:
		rids, err := currentRIDs(cur)
		if err != nil {
			return nil, err
		}
		return applyLinkListDelta(rids, cd)
	case LinkSetType:
		rids, err := currentRIDs(cur)
		if err != nil {
			return nil, err
		}
		return applyLinkSetDelta(rids, cd), nil
	case LinkMapType:
		m, ok := toLinkMap(cur)
		if !ok && cur != nil {
			return nil, fmt.Errorf("cannot apply link map delta to %T", cur)
		}
		lm := make(LinkMap, len(m))
		for k, v := range m {
			lm[k] = v
		}
		return applyLinkMapDelta(lm, cd), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrDeltaUnsupported, t)
	}
}

func currentList(cur any) ([]any, error) {
	if cur == nil {
		return nil, nil
	}
	list, ok := toList(cur)
	if !ok {
		return nil, fmt.Errorf("cannot apply collection delta to %T", cur)
	}
	return slices.Clone(list), nil
}

func currentMap(cur any) (map[string]any, error) {
	m := make(map[string]any)
	if cur == nil {
		return m, nil
	}
	src, ok := toMap(cur)
	if !ok {
		return nil, fmt.Errorf("cannot apply map delta to %T", cur)
	}
	for k, v := range src {
		m[k] = v
	}
	return m, nil
}

func currentRIDs(cur any) ([]RID, error) {
	if cur == nil {
		return nil, nil
	}
	rids, ok := toRIDs(cur)
	if !ok {
		return nil, fmt.Errorf("cannot apply link collection delta to %T", cur)
	}
	return slices.Clone(rids), nil
}

func applyListDelta(list []any, cd *CollectionDelta) ([]any, error) {
	for _, ec := range cd.Changes {
		switch ec.Op {
		case OpCreated:
			list = append(list, ec.Value)
		case OpReplaced:
			switch {
			case ec.Pos < len(list):
				list[ec.Pos] = ec.Value
			case ec.Pos == len(list):
				list = append(list, ec.Value)
			default:
				return nil, fmt.Errorf("replaced position %d out of range (%d elements)", ec.Pos, len(list))
			}
		case OpRemoved:
			if ec.Pos < len(list) {
				list = slices.Delete(list, ec.Pos, ec.Pos+1)
			}
		}
	}
	for _, ec := range cd.Nested {
		if ec.Pos >= len(list) {
			return nil, fmt.Errorf("changed position %d out of range (%d elements)", ec.Pos, len(list))
		}
		nv, err := applyNested(ec.Type, list[ec.Pos], ec.Delta)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", ec.Pos, err)
		}
		list[ec.Pos] = nv
	}
	return list, nil
}

func applySetDelta(set []any, cd *CollectionDelta) ([]any, error) {
	for _, ec := range cd.Changes {
		i := slices.IndexFunc(set, func(e any) bool { return reflect.DeepEqual(e, ec.Value) })
		switch ec.Op {
		case OpCreated:
			if i < 0 {
				set = append(set, ec.Value)
			}
		case OpRemoved:
			if i >= 0 {
				set = slices.Delete(set, i, i+1)
			}
		}
	}
	for _, ec := range cd.Nested {
		if ec.Pos >= len(set) {
			return nil, fmt.Errorf("changed set element %d out of range (%d elements)", ec.Pos, len(set))
		}
		nv, err := applyNested(ec.Type, set[ec.Pos], ec.Delta)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", ec.Pos, err)
		}
		set[ec.Pos] = nv
	}
	return set, nil
}

func applyMapDelta(m map[string]any, cd *CollectionDelta) (map[string]any, error) {
	for _, ec := range cd.Changes {
		switch ec.Op {
		case OpCreated, OpReplaced:
			m[ec.Key] = ec.Value
		case OpRemoved:
			delete(m, ec.Key)
		}
	}
	for _, ec := range cd.Nested {
		nv, err := applyNested(ec.Type, m[ec.Key], ec.Delta)
		if err != nil {
			return nil, fmt.Errorf("[%q]: %w", ec.Key, err)
		}
		m[ec.Key] = nv
	}
	return m, nil
}

func applyLinkListDelta(rids []RID, cd *CollectionDelta) (LinkList, error) {
	for _, ec := range cd.Changes {
		rid, _ := ec.Value.(RID)
		switch ec.Op {
		case OpCreated:
			rids = append(rids, rid)
		case OpReplaced:
			switch {
			case ec.Pos < len(rids):
				rids[ec.Pos] = rid
			case ec.Pos == len(rids):
				rids = append(rids, rid)
			default:
				return nil, fmt.Errorf("replaced position %d out of range (%d links)", ec.Pos, len(rids))
			}
		case OpRemoved:
			if ec.Pos < len(rids) {
				rids = slices.Delete(rids, ec.Pos, ec.Pos+1)
			}
		}
	}
	return LinkList(rids), nil
}

func applyLinkSetDelta(rids []RID, cd *CollectionDelta) LinkSet {
	for _, ec := range cd.Changes {
		rid, _ := ec.Value.(RID)
		i := slices.Index(rids, rid)
		switch ec.Op {
		case OpCreated:
			if i < 0 {
				rids = append(rids, rid)
			}
		case OpRemoved:
			if i >= 0 {
				rids = slices.Delete(rids, i, i+1)
			}
		}
	}
	return LinkSet(rids)
}

func applyLinkMapDelta(m LinkMap, cd *CollectionDelta) LinkMap {
	for _, ec := range cd.Changes {
		switch ec.Op {
		case OpCreated, OpReplaced:
			rid, _ := ec.Value.(RID)
			m[ec.Key] = rid
		case OpRemoved:
			delete(m, ec.Key)
		}
	}
	return m
}
