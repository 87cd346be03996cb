// Package schema defines the declarative model layer of loam.
//
// Models are described at process start by building immutable
// ModelDescriptor values and registering them on an explicitly
// constructed Registry, which is then sealed:
//
//	user, err := schema.NewModel("User").
//	    Fields(
//	        schema.Int("id").PrimaryKey(),
//	        schema.Text("name"),
//	        schema.Int("age").Nullable(),
//	    ).
//	    Build()
//	...
//	r := schema.NewRegistry()
//	if err := r.Register(user); err != nil { ... }
//	if err := r.Seal(); err != nil { ... }
//
// After sealing the registry is read-only and can be shared freely; every
// downstream component (query building, DDL generation, migration
// diffing, row decoding) takes it by reference. There is no implicit
// process-global registry.
//
// A sealed registry can be captured as a Snapshot, a plain-data form that
// encodes to YAML. Snapshots are what migration tooling persists and
// diffs against.
package schema
