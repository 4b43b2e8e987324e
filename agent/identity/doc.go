// Package identity issues rotating anonymous identities for agents.
//
// Each (tenant, agent) pair maps to one opaque anonymous ID that stays stable
// for a validity window and is superseded by a freshly minted ID once the
// window expires. Discovery-facing code depends only on [Anonymizer]; the
// reverse lookup lives behind [Resolver] and is wired exclusively into the
// delegation service.
package identity
