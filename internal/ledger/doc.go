// Package ledger holds the mutable working list of instructions during
// one compile pass. It knows nothing about sequences: it compresses,
// sorts, places blocks, fills wait gaps and assigns addresses on
// whatever instructions the compiler hands it. Every destructive pass
// keeps the prior list on an undo stack for diagnostics.
package ledger
