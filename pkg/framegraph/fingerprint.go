package framegraph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// fingerprint computes a SHA-256 hash over a canonical textual encoding
// of the plan. Two compilations of the same declarations hash equal, so
// the fingerprint doubles as a determinism check.
//
// Uses the full 64-hex-char hash to prevent collisions.
func fingerprint(plan *Plan) string {
	var b strings.Builder

	for i, pass := range plan.Graph.Passes {
		fmt.Fprintf(&b, "pass %d %s queue=%s\n", i, pass.Name, pass.Queue)
		for _, a := range pass.Accesses {
			fmt.Fprintf(&b, "  access res=%d mode=%s stage=%s access=%s layout=%s\n",
				a.Resource, a.Mode, a.Stage, a.Access, a.Layout)
		}
	}
	for _, e := range plan.Graph.Edges {
		fmt.Fprintf(&b, "edge %d->%d res=%d kind=%d\n", e.From, e.To, e.Resource, e.Kind)
	}
	for i, bp := range plan.Sync.Barriers {
		if bp.Empty() {
			continue
		}
		fmt.Fprintf(&b, "barrier %d src=%s dst=%s\n", i, bp.SrcStages, bp.DstStages)
		for _, bs := range bp.Buffers {
			fmt.Fprintf(&b, "  buf res=%d %s->%s\n", bs.Resource, bs.SrcAccess, bs.DstAccess)
		}
		for _, is := range bp.Images {
			fmt.Fprintf(&b, "  img res=%d %s->%s %s->%s\n",
				is.Resource, is.SrcAccess, is.DstAccess, is.OldLayout, is.NewLayout)
		}
	}
	for _, bd := range plan.Placement.Boundaries {
		fmt.Fprintf(&b, "boundary res=%d->%d pass=%d->%d\n",
			bd.Retiring, bd.Incoming, bd.RetiringLast, bd.IncomingFirst)
	}

	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}
