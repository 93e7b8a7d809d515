package tree

import (
	"errors"
	"io/ioutil"
	"os"
	"reflect"
	"testing"
)

// ME---A---B---C---DEST
//      |    \
//      W     X
func chain() []*Server {
	return []*Server{
		NewServer("me", "addr-me", ""),
		NewServer("a", "addr-a", "me"),
		NewServer("b", "addr-b", "a"),
		NewServer("c", "addr-c", "b"),
		NewServer("dest", "addr-dest", "c"),
		NewServer("w", "addr-w", "a"),
		NewServer("x", "addr-x", "b"),
	}
}

func TestNewTreeRootedAtSelf(t *testing.T) {
	tr, err := NewTree("me", chain())
	if err != nil {
		t.Fatal(err)
	}

	if tr.Self() != "me" {
		t.Fatalf("self should be me, not %s", tr.Self())
	}

	if _, ok := tr.Parent("me"); ok {
		t.Fatalf("self should not have a parent")
	}

	parents := map[string]string{
		"a":    "me",
		"b":    "a",
		"c":    "b",
		"dest": "c",
		"w":    "a",
		"x":    "b",
	}
	for child, parent := range parents {
		p, ok := tr.Parent(child)
		if !ok || p != parent {
			t.Fatalf("parent of %s should be %s, not %s", child, parent, p)
		}
	}

	if d := tr.Depth("dest"); d != 4 {
		t.Fatalf("depth of dest should be 4, not %d", d)
	}
	if d := tr.Depth("nobody"); d != -1 {
		t.Fatalf("depth of unknown server should be -1, not %d", d)
	}
}

func TestTreeReRooting(t *testing.T) {
	tr, err := NewTree("c", chain())
	if err != nil {
		t.Fatal(err)
	}

	// seen from c, me is reached through b then a
	path, err := tr.PathToSelf("me")
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{"me", "a", "b", "c"}
	if !reflect.DeepEqual(path, expected) {
		t.Fatalf("path should be %v, not %v", expected, path)
	}

	neighbors := tr.Neighbors()
	if len(neighbors) != 2 {
		t.Fatalf("c should have 2 neighbors, not %v", neighbors)
	}
}

func TestDirectPathAndNextHop(t *testing.T) {
	tr, err := NewTree("me", chain())
	if err != nil {
		t.Fatal(err)
	}

	path, err := tr.DirectPath("dest")
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{"me", "a", "b", "c", "dest"}
	if !reflect.DeepEqual(path, expected) {
		t.Fatalf("direct path should be %v, not %v", expected, path)
	}

	for _, name := range expected {
		if !tr.OnDirectPath(name, "dest") {
			t.Fatalf("%s should be on the direct path", name)
		}
	}
	for _, name := range []string{"w", "x", "nobody"} {
		if tr.OnDirectPath(name, "dest") {
			t.Fatalf("%s should not be on the direct path", name)
		}
	}

	for _, name := range []string{"a", "b", "x", "dest"} {
		hop, err := tr.NextHop(name)
		if err != nil {
			t.Fatal(err)
		}
		if hop != "a" {
			t.Fatalf("next hop to %s should be a, not %s", name, hop)
		}
	}

	if _, err := tr.NextHop("me"); err == nil {
		t.Fatalf("NextHop to self should fail")
	}
	if _, err := tr.NextHop("nobody"); !errors.Is(err, ErrUnknownServer) {
		t.Fatalf("NextHop to unknown server should fail with ErrUnknownServer, not %v", err)
	}
}

func TestNewTreeValidation(t *testing.T) {
	cases := map[string][]*Server{
		"duplicate": {
			NewServer("me", "", ""),
			NewServer("me", "", ""),
		},
		"unknown uplink": {
			NewServer("me", "", ""),
			NewServer("a", "", "ghost"),
		},
		"two roots": {
			NewServer("me", "", ""),
			NewServer("a", "", ""),
		},
		"cycle": {
			NewServer("me", "", ""),
			NewServer("a", "", "b"),
			NewServer("b", "", "a"),
		},
		"self loop": {
			NewServer("me", "", ""),
			NewServer("a", "", "a"),
		},
		"no self": {
			NewServer("a", "", ""),
		},
	}

	for name, servers := range cases {
		if _, err := NewTree("me", servers); err == nil {
			t.Fatalf("%s: NewTree should fail", name)
		}
	}
}

func TestJSONTree(t *testing.T) {
	dir, err := ioutil.TempDir("", "relay")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	store := NewJSONTree(dir)

	// Try a read, should get nothing
	if _, err := store.Servers(); err == nil {
		t.Fatalf("store.Servers() should generate an error")
	}

	if err := store.Write(chain()); err != nil {
		t.Fatalf("err: %v", err)
	}

	servers, err := store.Servers()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !reflect.DeepEqual(servers, chain()) {
		t.Fatalf("servers should be %v, not %v", chain(), servers)
	}

	tr, err := store.Tree("x")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if hop, _ := tr.NextHop("me"); hop != "b" {
		t.Fatalf("seen from x, next hop to me should be b, not %s", hop)
	}
}
