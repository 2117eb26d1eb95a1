// Package entity holds in-memory object graphs of mapped entities.
//
// The evaluator queries a Graph directly; the store saves and loads the same
// Instances to and from SQLite; fixtures build Graphs by hand.
package entity

import (
	"fmt"
	"sort"
)

// Instance is one entity object.
//
// Values holds scalar fields (string, int64, bool, time.Time or nil),
// references (*Instance or nil) and join-table collections ([]*Instance)
// by member name. Inverse collections are never stored; they are derived
// from the element side's reference.
type Instance struct {
	Entity string
	ID     string
	Values map[string]any
}

// New creates an empty instance.
func New(entity, id string) *Instance {
	return &Instance{Entity: entity, ID: id, Values: map[string]any{}}
}

// Set assigns a member and returns the instance for chaining.
func (i *Instance) Set(member string, v any) *Instance {
	if n, ok := v.(int); ok {
		v = int64(n)
	}
	i.Values[member] = v
	return i
}

// Get returns a member value.
func (i *Instance) Get(member string) (any, bool) {
	v, ok := i.Values[member]
	return v, ok
}

// Add appends elements to a collection member.
func (i *Instance) Add(member string, elems ...*Instance) *Instance {
	cur, _ := i.Values[member].([]*Instance)
	i.Values[member] = append(cur, elems...)
	return i
}

// Label is a short human-readable name: the Name field when present,
// otherwise the ID.
func (i *Instance) Label() string {
	if i == nil {
		return "null"
	}
	if name, ok := i.Values["Name"].(string); ok {
		return name
	}
	return i.ID
}

func (i *Instance) String() string {
	return fmt.Sprintf("%s(%s)", i.Entity, i.Label())
}

// Graph is a set of instances grouped by entity, kept in insertion order.
// Graphs are built once and then only read; they are not safe for
// concurrent mutation.
type Graph struct {
	byEntity map[string][]*Instance
	byID     map[string]*Instance
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{byEntity: map[string][]*Instance{}, byID: map[string]*Instance{}}
}

// Add registers instances. Adding an ID twice is an error.
func (g *Graph) Add(instances ...*Instance) error {
	for _, inst := range instances {
		key := inst.Entity + "/" + inst.ID
		if _, exists := g.byID[key]; exists {
			return fmt.Errorf("duplicate %s id %q", inst.Entity, inst.ID)
		}
		g.byID[key] = inst
		g.byEntity[inst.Entity] = append(g.byEntity[inst.Entity], inst)
	}
	return nil
}

// All returns the instances of an entity in insertion order.
func (g *Graph) All(entity string) []*Instance {
	return g.byEntity[entity]
}

// Find returns the instance with the given ID.
func (g *Graph) Find(entity, id string) (*Instance, bool) {
	inst, ok := g.byID[entity+"/"+id]
	return inst, ok
}

// Entities returns the entity names present in the graph, sorted.
func (g *Graph) Entities() []string {
	names := make([]string, 0, len(g.byEntity))
	for name := range g.byEntity {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
