package schema

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

//go:embed default.cue
var defaultCUE string

// Error is a schema loading failure with source position.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	defaultOnce  sync.Once
	defaultModel *Model
)

// Default returns the embedded model used by the GH1879 scenarios and the
// date-time fixtures.
func Default() *Model {
	defaultOnce.Do(func() {
		m, err := Compile(defaultCUE)
		if err != nil {
			panic(fmt.Sprintf("embedded schema is invalid: %v", err))
		}
		defaultModel = m
	})
	return defaultModel
}

// DefaultSource returns the CUE text of the embedded model.
func DefaultSource() string {
	return defaultCUE
}

// Compile builds a model from CUE source text.
func Compile(src string) (*Model, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename("schema.cue"))
	return FromValue(v)
}

// Load builds a model from the top-level .cue files in dir.
func Load(dir string) (*Model, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	// Files are passed explicitly so schema files without a package clause
	// load as one instance.
	files := make([]string, len(matches))
	for i, m := range matches {
		abs, err := filepath.Abs(m)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", m, err)
		}
		files[i] = abs
	}
	sort.Strings(files)

	ctx := cuecontext.New()
	instances := load.Instances(files, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}
	return FromValue(ctx.BuildInstance(inst))
}

// FromValue builds and validates a model from a CUE value holding an
// "entity" struct.
func FromValue(v cue.Value) (*Model, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	entitiesVal := v.LookupPath(cue.ParsePath("entity"))
	if !entitiesVal.Exists() {
		return nil, &Error{Field: "entity", Message: "no entities defined", Pos: v.Pos()}
	}
	iter, err := entitiesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var entities []*Entity
	for iter.Next() {
		e, err := compileEntity(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}

	m := newModel(entities)
	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func compileEntity(name string, v cue.Value) (*Entity, error) {
	e := &Entity{Name: name, Pos: v.Pos()}

	table, err := optionalString(v, "table")
	if err != nil {
		return nil, err
	}
	if table == "" {
		table = ColumnName(name)
	}
	e.Table = table

	if err := eachField(v, "fields", func(label string, fv cue.Value) error {
		f, err := compileField(label, fv)
		if err != nil {
			return err
		}
		e.Fields = append(e.Fields, f)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := eachField(v, "references", func(label string, rv cue.Value) error {
		target, err := rv.String()
		if err != nil {
			return &Error{Field: "references." + label, Message: "reference target must be an entity name", Pos: rv.Pos()}
		}
		e.References = append(e.References, Reference{
			Name:   label,
			Target: target,
			Column: ForeignKeyColumn(label),
		})
		return nil
	}); err != nil {
		return nil, err
	}

	if err := eachField(v, "collections", func(label string, cv cue.Value) error {
		c, err := compileCollection(name, label, cv)
		if err != nil {
			return err
		}
		e.Collections = append(e.Collections, c)
		return nil
	}); err != nil {
		return nil, err
	}

	return e, nil
}

var fieldTypePattern = regexp.MustCompile(`^(string|int|bool|datetime)(?:\((\d+)\))?$`)

// compileField parses "string", "int", "bool", "datetime" or "datetime(N)".
// Floats are rejected: query constants have no float representation.
func compileField(name string, v cue.Value) (Field, error) {
	s, err := v.String()
	if err != nil {
		return Field{}, &Error{Field: "fields." + name, Message: "field type must be a string such as \"string\" or \"datetime(3)\"", Pos: v.Pos()}
	}
	match := fieldTypePattern.FindStringSubmatch(s)
	if match == nil {
		return Field{}, &Error{Field: "fields." + name, Message: fmt.Sprintf("unsupported field type %q", s), Pos: v.Pos()}
	}
	f := Field{Name: name, Column: ColumnName(name), Kind: ScalarKind(match[1]), Scale: NoScale}
	if match[2] != "" {
		if f.Kind != ScalarDateTime {
			return Field{}, &Error{Field: "fields." + name, Message: fmt.Sprintf("only datetime accepts a scale, got %q", s), Pos: v.Pos()}
		}
		scale, err := strconv.Atoi(match[2])
		if err != nil {
			return Field{}, &Error{Field: "fields." + name, Message: err.Error(), Pos: v.Pos()}
		}
		f.Scale = scale
	}
	return f, nil
}

func compileCollection(owner, name string, v cue.Value) (Collection, error) {
	c := Collection{Name: name}
	of, err := optionalString(v, "of")
	if err != nil {
		return Collection{}, err
	}
	if of == "" {
		return Collection{}, &Error{Field: "collections." + name + ".of", Message: "element entity is required", Pos: v.Pos()}
	}
	c.Of = of
	if c.Join, err = optionalString(v, "join"); err != nil {
		return Collection{}, err
	}
	if c.Inverse, err = optionalString(v, "inverse"); err != nil {
		return Collection{}, err
	}
	if c.Join != "" {
		c.OwnerColumn = ForeignKeyColumn(owner)
		c.ElementColumn = ForeignKeyColumn(of)
		if c.OwnerColumn == c.ElementColumn {
			c.ElementColumn = ForeignKeyColumn(name)
		}
	}
	return c, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &Error{Field: path, Message: "must be a string", Pos: fv.Pos()}
	}
	return s, nil
}

func eachField(v cue.Value, path string, fn func(label string, fv cue.Value) error) error {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return nil
	}
	iter, err := sv.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Label(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &Error{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
