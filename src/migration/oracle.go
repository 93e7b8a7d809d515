package migration

// SkipOutput reports whether the local server must not produce output for a
// message addressed to a migrating client, because the destination has taken,
// or will take, responsibility for that message. SkipOutput means the client
// is pseudo-remote; false means pseudo-local.
//
// m is the migration attached to the target client (nil if it is not
// migrating), locallyConnected whether the target has a local connection or
// line buffer here, and source the server the message originated from.
//
// The result only makes sense while processing a single message. SkipOutput
// has no side effects. When it returns an InvariantViolation the result is
// false: a duplicate is better than a lost message.
func SkipOutput(topo Topology, m *Migration, locallyConnected bool, source string) (bool, error) {
	// Messages for non-migrating clients are not affected.
	if m == nil {
		return false, nil
	}

	self := topo.Self()

	// Clients migrating here are only pseudo-remote until the flip made them
	// local. This is only called once the flip was processed, so it should
	// always resolve to false.
	if m.Destination == self {
		return !locallyConnected, nil
	}

	// Before the flip the destination is not buffering anything.
	if !m.FlipSent() {
		return false, nil
	}

	if m.FullyAcked() {
		return true, nil
	}

	nextAck, err := NextAck(topo, m)
	if err != nil {
		return false, err
	}

	// If the next server to ack sits on the path from the origin to here, the
	// message crossed it before the flip did.
	for cur := source; cur != self; {
		if cur == nextAck {
			return false, nil
		}
		parent, ok := topo.Parent(cur)
		if !ok {
			return false, newErrorf(InvariantViolation, m.Client,
				"message origin %q is not connected to %s", source, self)
		}
		cur = parent
	}

	// The server that forwards the message towards the destination does so
	// after forwarding the flip.
	return true, nil
}

// NextAck returns the closest server to here, on the direct path to the
// destination, that has not acknowledged the flip yet. It is never the local
// server.
func NextAck(topo Topology, m *Migration) (string, error) {
	self := topo.Self()
	for cur := m.Destination; ; {
		if cur == self {
			return "", newErrorf(InvariantViolation, m.Client,
				"furthest ack %q is not between %s and %s", m.FurthestAck, self, m.Destination)
		}
		parent, ok := topo.Parent(cur)
		if !ok {
			return "", newErrorf(InvariantViolation, m.Client,
				"destination %q is not connected to %s", m.Destination, self)
		}
		if parent == m.FurthestAck {
			return cur, nil
		}
		cur = parent
	}
}
