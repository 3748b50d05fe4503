// Package entry implements the entry registry: named, deduplicated stacks of
// resolved source files together with their destination mapping.
//
// A registry is configured once with an absolute source root (which must
// exist) and a destination root (created on first definition). Tasks create a
// stack under their own name and insert literal paths or doublestar globs
// into it. Every admitted Entry lies under the source root, exists on disk at
// insertion time and maps to
//
//	join(destination, dir(relative path))
//
// Stacks guarantee set membership by source path only; iteration order is
// not part of the contract.
package entry
