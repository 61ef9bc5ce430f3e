// Package directory defines the identity and address types of the grain
// directory, plus the collaborator interfaces the cache maintainer talks to:
// the partition resolver (who owns a grain) and the validation client
// (batched freshness lookups against an owning silo).
package directory

// GrainID is the globally unique identity of an addressable grain.
// Opaque to this module; it is only ever used as a key.
type GrainID string

// SiloAddress identifies a cluster node. Used both as the owner key when
// batching refresh lookups and as the RPC destination.
type SiloAddress string

// VersionTag is the generation counter an owning silo assigns to a
// directory entry. It is only ever produced by the owner; this module
// stores and echoes it back, never invents one.
type VersionTag int64

// NotOwnedTag is the reserved tag an owner returns to disclaim ownership
// of a grain ("I am not the owner anymore").
const NotOwnedTag VersionTag = -1

// ActivationAddress locates a live activation of a grain on a silo.
// Complete=false marks a placeholder address (no real activation behind
// it); such addresses only appear in validation verdicts, never as
// routable targets.
type ActivationAddress struct {
	Grain      GrainID
	Silo       SiloAddress
	Activation string
	Complete   bool
}

// LookupRequest is one element of a per-owner refresh batch: the grain to
// validate and the version tag this node last received for it.
type LookupRequest struct {
	Grain GrainID
	Tag   VersionTag
}

// Verdict is an owner's answer for a single batched grain.
//
// The encoding is fixed:
//
//	Address.Complete            -> authoritative new/changed activation, adopt
//	!Complete && Tag == NotOwnedTag -> owner no longer serves this grain, drop
//	!Complete && Tag >= 0       -> unchanged since the tag that was sent, extend freshness
type Verdict struct {
	Address ActivationAddress
	Tag     VersionTag
}

// Authoritative reports whether the verdict carries a fresh activation
// address that must replace the cached one.
func (v Verdict) Authoritative() bool { return v.Address.Complete }

// NotOwned reports whether the owner disclaimed ownership of the grain.
func (v Verdict) NotOwned() bool { return !v.Address.Complete && v.Tag == NotOwnedTag }

// Unchanged reports whether the entry is unchanged and only its freshness
// window should be extended.
func (v Verdict) Unchanged() bool { return !v.Address.Complete && v.Tag >= 0 }
