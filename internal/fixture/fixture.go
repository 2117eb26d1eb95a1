// Package fixture builds the datasets scenarios and tests run against.
package fixture

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/condpush/internal/entity"
	"github.com/roach88/condpush/internal/store"
	"github.com/roach88/condpush/internal/testutil"
)

// IDGenerator assigns instance IDs. store.UUIDv7Generator and
// testutil.SequentialIDs both satisfy it.
type IDGenerator interface {
	NewID(entity string) string
}

// Dataset is an object graph plus the order its instances must be saved in
// so that references always point at rows that already exist.
type Dataset struct {
	Name  string
	Graph *entity.Graph
	order []*entity.Instance
	named map[string]*entity.Instance
}

func newDataset(name string) *Dataset {
	return &Dataset{Name: name, Graph: entity.NewGraph(), named: map[string]*entity.Instance{}}
}

// add registers an instance under "<Entity>:<label>" for lookup in tests.
func (d *Dataset) add(ids IDGenerator, inst *entity.Instance) *entity.Instance {
	if inst.ID == "" {
		inst.ID = ids.NewID(inst.Entity)
	}
	if err := d.Graph.Add(inst); err != nil {
		// IDs come from the generator, so a duplicate is a generator bug.
		panic(err)
	}
	d.order = append(d.order, inst)
	d.named[inst.Entity+":"+inst.Label()] = inst
	return inst
}

// Get returns an instance by entity and label, e.g. Get("Employee", "Andy").
func (d *Dataset) Get(entityName, label string) (*entity.Instance, bool) {
	inst, ok := d.named[entityName+":"+label]
	return inst, ok
}

// Instances returns every instance in save order.
func (d *Dataset) Instances() []*entity.Instance {
	return d.order
}

// Seed saves the dataset in one transaction.
func (d *Dataset) Seed(ctx context.Context, s *store.Store) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, inst := range d.order {
		if err := tx.Save(ctx, inst); err != nil {
			return fmt.Errorf("seed %s: %w", d.Name, err)
		}
	}
	return tx.Commit()
}

// DateTimeEpoch is the first instant of the "datetime" dataset.
var DateTimeEpoch = time.Date(2017, 10, 1, 12, 30, 45, 123456789, time.UTC)

// builders maps dataset names used by scenario files to constructors.
var builders = map[string]func(IDGenerator) *Dataset{
	"gh1879": GH1879,
	"datetime": func(ids IDGenerator) *Dataset {
		// Sub-millisecond steps so scale-3 columns lose digits on every row.
		clock := testutil.NewDeterministicClock(DateTimeEpoch, time.Hour+1500*time.Microsecond)
		return DateTimeSeries(ids, clock, 3)
	},
}

// ByName builds a named dataset.
func ByName(name string, ids IDGenerator) (*Dataset, error) {
	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown dataset %q (known: %v)", name, Names())
	}
	if ids == nil {
		ids = store.UUIDv7Generator{}
	}
	return build(ids), nil
}

// Names lists the known dataset names, sorted.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
