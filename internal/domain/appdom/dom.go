package appdom

import (
	"errors"
	"fmt"
	"sort"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// NodeType tags what a node represents
type NodeType string

const (
	TypeApp        NodeType = "app"
	TypePage       NodeType = "page"
	TypeElement    NodeType = "element"
	TypeQuery      NodeType = "query"
	TypeConnection NodeType = "connection"
	TypeTheme      NodeType = "theme"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrNotAQuery    = errors.New("node is not a query")
)

// Node is one entry of an app DOM. Query nodes carry the data source they
// run against, the data-source specific query and its default parameters.
type Node struct {
	ID         string         `json:"id"`
	Type       NodeType       `json:"type"`
	Name       string         `json:"name"`
	ParentID   string         `json:"parentId,omitempty"`
	ParentProp string         `json:"parentProp,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`

	DataSource   string         `json:"dataSource,omitempty"`
	ConnectionID string         `json:"connectionId,omitempty"`
	Query        map[string]any `json:"query,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
}

// Dom is a flat node table rooted at an app node.
type Dom struct {
	Root  string           `json:"root"`
	Nodes map[string]*Node `json:"nodes"`
}

// New returns a DOM holding only an app node.
func New(name string) *Dom {
	root := &Node{ID: uuid.NewString(), Type: TypeApp, Name: name}
	return &Dom{
		Root:  root.ID,
		Nodes: map[string]*Node{root.ID: root},
	}
}

// Get looks a node up by id.
func (d *Dom) Get(id string) (*Node, bool) {
	if d == nil {
		return nil, false
	}
	n, ok := d.Nodes[id]
	return n, ok
}

// Add inserts n under parent, assigning an id when n has none.
func (d *Dom) Add(parent string, prop string, n *Node) (*Node, error) {
	if _, ok := d.Nodes[parent]; !ok {
		return nil, fmt.Errorf("parent %q: %w", parent, ErrNodeNotFound)
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.ParentID, n.ParentProp = parent, prop
	d.Nodes[n.ID] = n
	return n, nil
}

// Children returns the nodes attached to parent under prop, ordered by id.
// An empty prop matches every prop.
func (d *Dom) Children(parent, prop string) []*Node {
	var out []*Node
	for _, n := range d.Nodes {
		if n.ParentID == parent && (prop == "" || n.ParentProp == prop) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// QueryNode returns the query node with the given id.
func (d *Dom) QueryNode(id string) (*Node, error) {
	n, ok := d.Get(id)
	if !ok {
		return nil, fmt.Errorf("query %q: %w", id, ErrNodeNotFound)
	}
	if n.Type != TypeQuery {
		return nil, fmt.Errorf("%q: %w", id, ErrNotAQuery)
	}
	return n, nil
}

// Validate checks that the root is an app node and that every other node
// hangs off an existing parent.
func (d *Dom) Validate() error {
	if d == nil || len(d.Nodes) == 0 {
		return errors.New("appdom: empty dom")
	}
	root, ok := d.Nodes[d.Root]
	if !ok || root.Type != TypeApp {
		return fmt.Errorf("appdom: root %q is not an app node", d.Root)
	}
	for key, n := range d.Nodes {
		if n == nil || n.ID != key {
			return fmt.Errorf("appdom: node key %q does not match its id", key)
		}
		if key == d.Root {
			continue
		}
		if _, ok := d.Nodes[n.ParentID]; !ok {
			return fmt.Errorf("appdom: node %q has unknown parent %q", key, n.ParentID)
		}
		if n.Type == TypeQuery && n.DataSource == "" {
			return fmt.Errorf("appdom: query %q has no data source", key)
		}
	}
	return nil
}

// Clone returns a deep copy. Stored DOMs are never shared with callers.
func (d *Dom) Clone() (*Dom, error) {
	if d == nil {
		return nil, nil
	}
	data, err := sonic.ConfigStd.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("appdom: clone: %w", err)
	}
	var out Dom
	if err := sonic.ConfigStd.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("appdom: clone: %w", err)
	}
	return &out, nil
}
