package migration

// Advance records that server acknowledged the flip of m. The frontier only
// moves forward: acks from servers off the direct path, from servers not
// further than the current frontier, or received before the flip was sent,
// are ignored. It reports whether FurthestAck changed.
func Advance(topo Topology, m *Migration, server string) bool {
	if !m.FlipSent() || server == m.FurthestAck {
		return false
	}

	if !onDirectPath(topo, m.Destination, server) {
		return false
	}

	if topo.Depth(server) <= topo.Depth(m.FurthestAck) {
		return false
	}

	m.FurthestAck = server
	return true
}
