package crdt

import "github.com/Polqt/causalcrdt/polog"

// Outcome reports what Apply did with an incoming event at the log level —
// distinct from the replica-level outcomes in spec §6 (Delivered, Buffered,
// Duplicate, ProtocolFault), which wrap this one.
type Outcome int

const (
	// Applied means the event was attached and, where applicable,
	// existing events it rendered redundant were dropped.
	Applied Outcome = iota
	// Discarded means an existing event rendered the incoming one
	// redundant (r0), so it was attached and then immediately dropped.
	Discarded
)

// Apply is the default effect() behavior from spec §4.3: attach the new
// event, then run the type's redundancy predicates against the rest of the
// unstable log. It is the single place every concrete CRDT's Effect path
// funnels through, so the quadratic-scan short-circuits in Policy are
// honored uniformly.
func Apply(log *polog.Log, c PureCRDT, e polog.Event) (Outcome, error) {
	id, err := log.Attach(e)
	if err != nil {
		return Applied, err
	}
	_ = id
	newID := e.ID()
	policy := c.Policy()

	if !policy.DisableRWhenNotRedundant {
		discard := false
		log.IterUnstable(func(existing polog.Event) {
			if discard || existing.ID() == newID {
				return
			}
			if c.SelfRedundant(e, existing, log) {
				discard = true
			}
		})
		if discard {
			log.Drop(newID)
			return Discarded, nil
		}
	}

	if !policy.DisableRWhenRedundant {
		var toDrop []polog.EventID
		log.IterUnstable(func(existing polog.Event) {
			existingID := existing.ID()
			if existingID == newID {
				return
			}
			if c.Redundant(e, existing, log) {
				toDrop = append(toDrop, existingID)
			}
		})
		for _, d := range toDrop {
			log.Drop(d)
		}
	}

	return Applied, nil
}
