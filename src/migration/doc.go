// Package migration implements live client migration between two servers of
// a relay tree.
//
// A migration moves a connected client from a source server (OLD) to a
// destination server (NEW) with the client's cooperation:
//
//  1. OLD sends MIGRATE START to the client. The client answers MIGRATE OK,
//     which is the last client message OLD processes.
//  2. OLD hands off the local-only state it keeps about the client
//     (capabilities, monitor lists, ...) to NEW.
//  3. Once NEW confirms the handoff, OLD broadcasts a "flip" declaring that NEW
//     is now responsible for the client. Every server acknowledges the flip
//     back to OLD. NEW starts buffering output for the client as soon as it
//     processes the flip.
//  4. When NEW's acknowledgement arrives, OLD sends MIGRATE PROCEED and closes
//     the connection.
//  5. The client connects to NEW and presents its resume token. NEW hands the
//     new connection over to the migrating client and drains the buffer.
//
// Output responsibility
//
// While the flip propagates, OLD still holds a connection to the client and
// must decide, for every message it processes, whether NEW will produce output
// for that message. Only OLD, NEW and the servers between them (the direct
// path) matter. Every message enters the direct path at exactly one server,
// and every link is FIFO, so if a direct path server sees a message before the
// flip, NEW sees the message before the flip too, and OLD sees the message
// before that server's ack. OLD therefore only needs the furthest server on
// the direct path that acknowledged the flip: the next server to ack is the
// point where the race between the message and the flip is decided. If that
// server is on the path from the message's origin to OLD, the message got
// there first and OLD produces output; otherwise NEW does.
//
//             ME---A---B---C---NEW
//                       \
//                        X (origin)
//
// With A or B next to ack, NEW sees the message before the flip and ME
// delivers it. With C next to ack, NEW sees the flip first and ME skips it.
//
// It is not enough to look at the ack status of the origin server: a message
// from a server hanging off ME, received right after ME sent the flip, will
// reach NEW after the flip even though that server has not acked yet.
package migration
