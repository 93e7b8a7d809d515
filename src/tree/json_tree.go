package tree

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"sync"
)

const jsonTreePath = "tree.json"

// JSONTree is used to provide tree persistence on disk in the form of a JSON
// file.
type JSONTree struct {
	l    sync.Mutex
	path string
}

// NewJSONTree creates a new JSONTree with reference to a base directory where
// the JSON file resides.
func NewJSONTree(base string) *JSONTree {
	return &JSONTree{
		path: filepath.Join(base, jsonTreePath),
	}
}

// Servers parses the underlying JSON file.
func (j *JSONTree) Servers() ([]*Server, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	var servers []*Server
	if len(buf) == 0 {
		return servers, nil
	}

	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&servers); err != nil {
		return nil, err
	}

	return servers, nil
}

// Tree parses the underlying JSON file and returns the tree rooted at self.
func (j *JSONTree) Tree(self string) (*Tree, error) {
	servers, err := j.Servers()
	if err != nil {
		return nil, err
	}
	return NewTree(self, servers)
}

// Write persists a list of servers to the JSON file.
func (j *JSONTree) Write(servers []*Server) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(servers); err != nil {
		return err
	}

	return ioutil.WriteFile(j.path, buf.Bytes(), 0644)
}
