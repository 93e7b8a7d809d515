// Package tree holds the spanning tree of relay servers as seen from one
// server.
//
// The network is a tree: every server but the root has exactly one uplink,
// and there is a unique path between any two servers. A Tree is built from the
// list of servers and their uplinks (tree.json) and then re-rooted at the local
// server, so that Parent(x) is the neighbor through which x reaches self. With
// that orientation the path from any server to self is found by chasing
// parents, and the "direct path" between self and another server is simply
// PathToSelf(other) reversed.
//
// Nodes live in an arena indexed by name; each stores the index of its parent.
// All traversals are index-chasing loops bounded by the depth of the tree.
package tree
