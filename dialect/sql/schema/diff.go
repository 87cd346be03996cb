package schema

import (
	"fmt"

	"github.com/loamdb/loam/schema"
)

// Diff computes the ordered step sequence that evolves the old snapshot
// into the new one. Table creations come first in forward foreign-key
// dependency order, table drops next in reverse dependency order, and
// column-level changes on surviving tables last, so referential
// constraints hold at every intermediate point. Diffing a snapshot
// against itself yields no steps.
func Diff(old, new *schema.Snapshot) ([]Step, error) {
	if old == nil {
		old = &schema.Snapshot{}
	}
	if new == nil {
		new = &schema.Snapshot{}
	}
	var steps []Step

	created := make([]schema.ModelSnapshot, 0)
	for _, m := range new.Models {
		if _, ok := old.Model(m.Table); !ok {
			created = append(created, m)
		}
	}
	ordered, err := sortByDeps(created)
	if err != nil {
		return nil, err
	}
	for _, m := range ordered {
		steps = append(steps, &CreateTable{Model: m})
	}

	dropped := make([]schema.ModelSnapshot, 0)
	for _, m := range old.Models {
		if _, ok := new.Model(m.Table); !ok {
			dropped = append(dropped, m)
		}
	}
	ordered, err = sortByDeps(dropped)
	if err != nil {
		return nil, err
	}
	for i := len(ordered) - 1; i >= 0; i-- {
		steps = append(steps, &DropTable{Model: ordered[i]})
	}

	for _, m := range new.Models {
		prev, ok := old.Model(m.Table)
		if !ok {
			continue
		}
		steps = append(steps, diffModel(prev, m)...)
	}
	return steps, nil
}

// DiffRegistry diffs a persisted snapshot against the sealed registry.
func DiffRegistry(old *schema.Snapshot, reg *schema.Registry) ([]Step, error) {
	cur, err := reg.Snapshot()
	if err != nil {
		return nil, err
	}
	return Diff(old, cur)
}

// diffModel emits column and index changes for a surviving table.
// Removals come before additions so a column or index can be replaced
// within one migration.
func diffModel(old, new schema.ModelSnapshot) []Step {
	var steps []Step
	for _, f := range old.Fields {
		if _, ok := new.Field(f.Name); !ok {
			steps = append(steps, &DropColumn{Table: new.Table, Field: f})
		}
	}
	for _, f := range new.Fields {
		prev, ok := old.Field(f.Name)
		if !ok {
			steps = append(steps, &AddColumn{Table: new.Table, Field: f})
			continue
		}
		if fieldChanged(prev, f) {
			steps = append(steps, &AlterColumnType{Table: new.Table, Field: f, Prev: prev, Model: new})
		}
	}
	for _, idx := range old.Indexes {
		if _, ok := findIndex(new, idx.Name); !ok {
			steps = append(steps, &DropIndex{Table: new.Table, Index: idx})
		}
	}
	for _, idx := range new.Indexes {
		prev, ok := findIndex(old, idx.Name)
		if !ok {
			steps = append(steps, &AddIndex{Table: new.Table, Index: idx})
			continue
		}
		if indexChanged(prev, idx) {
			steps = append(steps, &DropIndex{Table: new.Table, Index: prev}, &AddIndex{Table: new.Table, Index: idx})
		}
	}
	return steps
}

func fieldChanged(old, new schema.FieldSnapshot) bool {
	return old.Type != new.Type ||
		old.Nullable != new.Nullable ||
		old.Unique != new.Unique ||
		old.Ref != new.Ref ||
		fmt.Sprint(old.Default) != fmt.Sprint(new.Default)
}

func findIndex(m schema.ModelSnapshot, name string) (schema.IndexSnapshot, bool) {
	for _, idx := range m.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return schema.IndexSnapshot{}, false
}

func indexChanged(old, new schema.IndexSnapshot) bool {
	if old.Unique != new.Unique || len(old.Columns) != len(new.Columns) {
		return true
	}
	for i := range old.Columns {
		if old.Columns[i] != new.Columns[i] {
			return true
		}
	}
	return false
}

// sortByDeps orders models so every foreign-key target precedes its
// referrer. References outside the set (to surviving tables) impose no
// ordering. The sort is stable with respect to the input, so identical
// snapshots always diff to identical step sequences.
func sortByDeps(models []schema.ModelSnapshot) ([]schema.ModelSnapshot, error) {
	inSet := make(map[string]int, len(models)) // table -> position
	for i, m := range models {
		inSet[m.Table] = i
	}
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make([]int, len(models))
	out := make([]schema.ModelSnapshot, 0, len(models))
	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("schema: foreign-key cycle through table %q", models[i].Table)
		}
		state[i] = visiting
		for _, f := range models[i].Fields {
			if f.Type != schema.TypeForeignKey.String() || f.RefTable == models[i].Table {
				continue
			}
			if j, ok := inSet[f.RefTable]; ok {
				if err := visit(j); err != nil {
					return err
				}
			}
		}
		state[i] = done
		out = append(out, models[i])
		return nil
	}
	for i := range models {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return out, nil
}
