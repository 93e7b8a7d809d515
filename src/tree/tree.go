package tree

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownServer is returned when a name is not part of the tree.
	ErrUnknownServer = errors.New("unknown server")
	// ErrNoRoot is returned when no server, or more than one, lacks an uplink.
	ErrNoRoot = errors.New("tree must have exactly one root")
)

const noParent = -1

type node struct {
	server *Server
	parent int
	depth  int
}

// Tree is the server network rooted at the local server. It is immutable once
// built; membership changes produce a new Tree.
type Tree struct {
	self    int
	nodes   []node
	byName  map[string]int
	servers []*Server
}

// NewTree validates the servers, checking that names are unique, every uplink
// exists, there is a single root and no cycle, then re-roots the tree at self.
func NewTree(self string, servers []*Server) (*Tree, error) {
	byName := make(map[string]int, len(servers))
	for i, s := range servers {
		if s.Name == "" {
			return nil, fmt.Errorf("server %d has no name", i)
		}
		if _, ok := byName[s.Name]; ok {
			return nil, fmt.Errorf("duplicate server %s", s.Name)
		}
		byName[s.Name] = i
	}

	if _, ok := byName[self]; !ok {
		return nil, fmt.Errorf("%w: self %s", ErrUnknownServer, self)
	}

	adjacency := make([][]int, len(servers))
	roots := 0
	for i, s := range servers {
		if s.Uplink == "" {
			roots++
			continue
		}
		up, ok := byName[s.Uplink]
		if !ok {
			return nil, fmt.Errorf("%w: uplink %s of %s", ErrUnknownServer, s.Uplink, s.Name)
		}
		if up == i {
			return nil, fmt.Errorf("server %s is its own uplink", s.Name)
		}
		adjacency[i] = append(adjacency[i], up)
		adjacency[up] = append(adjacency[up], i)
	}
	if roots != 1 {
		return nil, ErrNoRoot
	}

	// n-1 edges and a single root: the graph is a tree iff it is connected.
	t := &Tree{
		self:    byName[self],
		nodes:   make([]node, len(servers)),
		byName:  byName,
		servers: servers,
	}
	for i, s := range servers {
		t.nodes[i] = node{server: s, parent: noParent, depth: -1}
	}

	t.nodes[t.self].depth = 0
	queue := []int{t.self}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[cur] {
			if t.nodes[next].depth != -1 {
				continue
			}
			t.nodes[next].parent = cur
			t.nodes[next].depth = t.nodes[cur].depth + 1
			queue = append(queue, next)
		}
	}

	for _, n := range t.nodes {
		if n.depth == -1 {
			return nil, fmt.Errorf("server %s is not connected to %s (cycle in uplinks?)", n.server.Name, self)
		}
	}

	return t, nil
}

// Self returns the name of the local server.
func (t *Tree) Self() string {
	return t.nodes[t.self].server.Name
}

// Len returns the number of servers in the tree.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Contains reports whether name is part of the tree.
func (t *Tree) Contains(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Server returns the tree entry for name.
func (t *Tree) Server(name string) (*Server, bool) {
	i, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return t.nodes[i].server, true
}

// Servers returns the entries the tree was built from, in file order.
func (t *Tree) Servers() []*Server {
	return t.servers
}

// Parent returns the server through which name reaches self. Self, and names
// outside the tree, have no parent.
func (t *Tree) Parent(name string) (string, bool) {
	i, ok := t.byName[name]
	if !ok || t.nodes[i].parent == noParent {
		return "", false
	}
	return t.nodes[t.nodes[i].parent].server.Name, true
}

// Depth returns the number of links between name and self, or -1 for unknown
// servers.
func (t *Tree) Depth(name string) int {
	i, ok := t.byName[name]
	if !ok {
		return -1
	}
	return t.nodes[i].depth
}

// PathToSelf returns the servers visited when walking from name up to self,
// both ends included.
func (t *Tree) PathToSelf(name string) ([]string, error) {
	i, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, name)
	}
	path := make([]string, 0, t.nodes[i].depth+1)
	for ; i != noParent; i = t.nodes[i].parent {
		path = append(path, t.nodes[i].server.Name)
	}
	return path, nil
}

// DirectPath returns the path from self to dest, both ends included.
func (t *Tree) DirectPath(dest string) ([]string, error) {
	path, err := t.PathToSelf(dest)
	if err != nil {
		return nil, err
	}
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return path, nil
}

// OnDirectPath reports whether name lies on the path between self and dest,
// both ends included.
func (t *Tree) OnDirectPath(name, dest string) bool {
	target, ok := t.byName[name]
	if !ok {
		return false
	}
	i, ok := t.byName[dest]
	if !ok {
		return false
	}
	// name is on the path iff it is an ancestor of dest (or dest itself)
	for ; i != noParent; i = t.nodes[i].parent {
		if i == target {
			return true
		}
	}
	return false
}

// NextHop returns the neighbor of self through which messages for name must
// be sent.
func (t *Tree) NextHop(name string) (string, error) {
	i, ok := t.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownServer, name)
	}
	if i == t.self {
		return "", fmt.Errorf("no hop from %s to itself", name)
	}
	for t.nodes[i].parent != t.self {
		i = t.nodes[i].parent
	}
	return t.nodes[i].server.Name, nil
}

// Neighbors returns the servers directly linked to self.
func (t *Tree) Neighbors() []string {
	res := []string{}
	for _, n := range t.nodes {
		if n.parent == t.self {
			res = append(res, n.server.Name)
		}
	}
	return res
}
