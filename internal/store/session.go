package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/condpush/internal/entity"
	"github.com/roach88/condpush/internal/schema"
)

// ErrNotFound is returned by Load when no row has the requested ID.
var ErrNotFound = errors.New("entity not found")

// Tx is a write transaction. Instances referenced by a saved instance must
// be saved first, in the same or an earlier transaction.
type Tx struct {
	store *Store
	tx    *sql.Tx
	saved int
}

// Begin starts a write transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{store: s, tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	t.store.logger.Debug("transaction committed", "saved", t.saved)
	return nil
}

// Rollback aborts the transaction. It is safe to call after Commit.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Save inserts an instance and its join-collection links. An instance
// without an ID receives one from the store's IDGenerator.
func (t *Tx) Save(ctx context.Context, inst *entity.Instance) error {
	e, ok := t.store.model.Entity(inst.Entity)
	if !ok {
		return fmt.Errorf("save: unknown entity %q", inst.Entity)
	}
	if inst.ID == "" {
		inst.ID = t.store.ids.NewID(inst.Entity)
	}

	cols := []string{schema.IDColumn}
	args := []any{inst.ID}
	for _, f := range e.Fields {
		v, err := t.store.encodeField(f, inst.Values[f.Name])
		if err != nil {
			return fmt.Errorf("save %s.%s: %w", inst.Entity, f.Name, err)
		}
		cols = append(cols, f.Column)
		args = append(args, v)
	}
	for _, r := range e.References {
		cols = append(cols, r.Column)
		ref, _ := inst.Values[r.Name].(*entity.Instance)
		if ref == nil {
			args = append(args, nil)
			continue
		}
		if ref.ID == "" {
			return fmt.Errorf("save %s.%s: referenced %s has not been saved", inst.Entity, r.Name, ref.Entity)
		}
		args = append(args, ref.ID)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		e.Table, strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s: %w", inst.Entity, err)
	}

	for _, c := range e.Collections {
		if c.Join == "" {
			continue
		}
		elems, _ := inst.Values[c.Name].([]*entity.Instance)
		linkQuery := fmt.Sprintf("INSERT INTO %s (%s, %s, position) VALUES (?, ?, ?)",
			c.Join, c.OwnerColumn, c.ElementColumn)
		for pos, elem := range elems {
			if elem.ID == "" {
				return fmt.Errorf("save %s.%s: element %d has not been saved", inst.Entity, c.Name, pos)
			}
			if _, err := t.tx.ExecContext(ctx, linkQuery, inst.ID, elem.ID, pos); err != nil {
				return fmt.Errorf("link %s.%s: %w", inst.Entity, c.Name, err)
			}
		}
	}

	t.saved++
	return nil
}

func (s *Store) encodeField(f schema.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case schema.ScalarDateTime:
		tv, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("expected time.Time, got %T", v)
		}
		scale := f.Scale
		if !s.dialect.SupportsDateTimeScale() {
			scale = schema.NoScale
		}
		return s.dialect.FormatDateTime(tv, scale), nil
	case schema.ScalarBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case schema.ScalarInt:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		}
		return nil, fmt.Errorf("expected int, got %T", v)
	default:
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return str, nil
	}
}

// Load reads one instance and everything reachable from it through
// references and join collections.
func (s *Store) Load(ctx context.Context, entityName, id string) (*entity.Instance, error) {
	l := &loader{store: s, cache: map[string]*entity.Instance{}}
	return l.load(ctx, entityName, id)
}

// LoadGraph reads every row of every entity into a graph.
func (s *Store) LoadGraph(ctx context.Context) (*entity.Graph, error) {
	l := &loader{store: s, cache: map[string]*entity.Instance{}}
	g := entity.NewGraph()
	for _, e := range s.model.Entities() {
		ids, err := s.rowIDs(ctx, e)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			inst, err := l.load(ctx, e.Name, id)
			if err != nil {
				return nil, err
			}
			if err := g.Add(inst); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

func (s *Store) rowIDs(ctx context.Context, e *schema.Entity) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM %s ORDER BY %s COLLATE BINARY ASC", schema.IDColumn, e.Table, schema.IDColumn))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", e.Name, err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s id: %w", e.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// loader keeps an identity map so shared and cyclic references resolve to
// one Instance per row.
type loader struct {
	store *Store
	cache map[string]*entity.Instance
}

func (l *loader) load(ctx context.Context, entityName, id string) (*entity.Instance, error) {
	key := entityName + "/" + id
	if inst, ok := l.cache[key]; ok {
		return inst, nil
	}
	e, ok := l.store.model.Entity(entityName)
	if !ok {
		return nil, fmt.Errorf("load: unknown entity %q", entityName)
	}

	cols := make([]string, 0, len(e.Fields)+len(e.References))
	for _, f := range e.Fields {
		cols = append(cols, f.Column)
	}
	for _, r := range e.References {
		cols = append(cols, r.Column)
	}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	inst := entity.New(entityName, id)
	if len(cols) > 0 {
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", strings.Join(cols, ", "), e.Table, schema.IDColumn)
		if err := l.store.db.QueryRowContext(ctx, query, id).Scan(ptrs...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%s %q: %w", entityName, id, ErrNotFound)
			}
			return nil, fmt.Errorf("load %s: %w", entityName, err)
		}
	} else if err := l.exists(ctx, e, id); err != nil {
		return nil, err
	}
	l.cache[key] = inst

	for i, f := range e.Fields {
		v, err := l.store.dialect.Decode(f.Kind, raw[i])
		if err != nil {
			return nil, fmt.Errorf("load %s.%s: %w", entityName, f.Name, err)
		}
		inst.Values[f.Name] = v
	}
	for i, r := range e.References {
		refID, err := l.store.dialect.Decode(schema.ScalarString, raw[len(e.Fields)+i])
		if err != nil {
			return nil, fmt.Errorf("load %s.%s: %w", entityName, r.Name, err)
		}
		if refID == nil {
			inst.Values[r.Name] = nil
			continue
		}
		ref, err := l.load(ctx, r.Target, refID.(string))
		if err != nil {
			return nil, err
		}
		inst.Values[r.Name] = ref
	}
	for _, c := range e.Collections {
		if c.Join == "" {
			continue
		}
		elems, err := l.links(ctx, c, id)
		if err != nil {
			return nil, fmt.Errorf("load %s.%s: %w", entityName, c.Name, err)
		}
		inst.Values[c.Name] = elems
	}
	return inst, nil
}

func (l *loader) exists(ctx context.Context, e *schema.Entity, id string) error {
	var found string
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", schema.IDColumn, e.Table, schema.IDColumn)
	if err := l.store.db.QueryRowContext(ctx, query, id).Scan(&found); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s %q: %w", e.Name, id, ErrNotFound)
		}
		return fmt.Errorf("load %s: %w", e.Name, err)
	}
	return nil
}

func (l *loader) links(ctx context.Context, c schema.Collection, ownerID string) ([]*entity.Instance, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY position ASC",
		c.ElementColumn, c.Join, c.OwnerColumn)
	rows, err := l.store.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	elems := make([]*entity.Instance, 0, len(ids))
	for _, id := range ids {
		elem, err := l.load(ctx, c.Of, id)
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
	return elems, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
