// Package node implements a relay server.
//
// A Node sits in a tree of servers. Clients connect to one server; lines they
// send are flooded through the tree and output by the server the recipient is
// connected to. Each server only talks to its neighbors in the tree, over
// links that keep requests in order.
//
// Migration
//
// A client can be moved from one server (the source) to another (the
// destination) without disconnecting from the network:
//
//  1. The source offers the migration to the client (MIGRATE START) and waits
//     for its confirmation (MIGRATE OK, cf. ConfirmMigration).
//
//  2. The source ships the local-only state of the client to the destination
//     (Handoff), which replies when it has registered it (HandoffDone).
//
//  3. The source floods the flip. From then on the destination buffers the
//     output of the client. Every server on the direct path acknowledges the
//     flip to the source.
//
//  4. When the destination has acknowledged, the source tells the client to
//     reconnect (MIGRATE PROCEED) and closes its connection.
//
//  5. The client connects to the destination and presents its resume token
//     (cf. Resume). The buffered output is flushed and the source is told to
//     release its record (Resumed).
//
// While the flip propagates, both the source and the destination receive the
// lines addressed to the client. migration.SkipOutput decides which of the two
// outputs each line, so that the client sees every line exactly once and in
// order.
package node
