package directory

import "context"

// PartitionResolver answers "which silo owns this grain's directory
// partition right now". Implementations must be cheap and synchronous:
// the cache maintainer calls it once per cached entry per scan.
//
// ok=false means no owner is resolvable (remote owner unknown, or the
// local node is shutting down); the caller skips the grain this cycle.
type PartitionResolver interface {
	ResolveOwner(id GrainID) (owner SiloAddress, ok bool)
}

// ValidationClient sends one batched "look up many" request to an owning
// silo and returns per-grain verdicts. Transport framing, retries and
// timeouts are the implementation's problem; the maintainer treats an
// error as "no verdicts this cycle" and moves on.
//
// Grains present in the request but absent from the returned verdicts are
// left untouched by the caller.
type ValidationClient interface {
	LookupMany(ctx context.Context, owner SiloAddress, batch []LookupRequest) ([]Verdict, error)
}
