// Package imago translates AI agent definitions between heterogeneous
// framework schemas through one canonical graph representation, and persists
// every version of that graph with full bi-temporal semantics.
//
// Valid time (when a fact was true in reality) is tracked independently of
// transaction time (when the system recorded it), so a caller can ask what
// an agent looked like on date X combined with what the system believed on
// date Y. History is append-only: corrections and late-arriving facts are
// recorded as new graph versions that supersede, split, or merge their
// predecessors without ever rewriting them.
//
// The Client composes the store, the translation orchestrator, the conflict
// resolver and the specification registry; pkg/query adds the temporal
// operators (AsOf, ValidAt, Between, Coalesce) over the same records.
package imago
