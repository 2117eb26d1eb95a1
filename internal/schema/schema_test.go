package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/condpush/internal/expr"
)

func TestDefault(t *testing.T) {
	m := Default()

	var names []string
	for _, e := range m.Entities() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Client", "DateTimeClass", "Employee", "Issue", "Project"}, names)

	emp, ok := m.Entity("Employee")
	require.True(t, ok)
	assert.Equal(t, "employee", emp.Table)

	f, ok := emp.Field("ReviewAsPrimary")
	require.True(t, ok)
	assert.Equal(t, "review_as_primary", f.Column)
	assert.Equal(t, ScalarBool, f.Kind)
	assert.Equal(t, NoScale, f.Scale)

	c, ok := emp.Collection("ReviewIssues")
	require.True(t, ok)
	assert.Equal(t, "employee_review_issue", c.Join)
	assert.Equal(t, "employee_id", c.OwnerColumn)
	assert.Equal(t, "issue_id", c.ElementColumn)

	issue, ok := m.Entity("Issue")
	require.True(t, ok)
	r, ok := issue.Reference("Client")
	require.True(t, ok)
	assert.Equal(t, "client_id", r.Column)

	dt, ok := m.Entity("DateTimeClass")
	require.True(t, ok)
	assert.Equal(t, "date_time_class", dt.Table)
	scaled, ok := dt.Field("ValueWithScale")
	require.True(t, ok)
	assert.Equal(t, ScalarDateTime, scaled.Kind)
	assert.Equal(t, 3, scaled.Scale)

	assert.Same(t, m, Default(), "default model is built once")
	assert.Contains(t, DefaultSource(), "entity: Employee")
}

func TestColumnName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Name", "name"},
		{"Id", "id"},
		{"ReviewAsPrimary", "review_as_primary"},
		{"DateTimeClass", "date_time_class"},
		{"ValueWithScale", "value_with_scale"},
		{"HTTPServer", "http_server"},
		{"already_snake", "already_snake"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ColumnName(tt.in))
		})
	}
	assert.Equal(t, "project_id", ForeignKeyColumn("Project"))
}

func TestMember(t *testing.T) {
	m := Default()

	tests := []struct {
		member string
		kind   MemberKind
		typ    expr.Type
	}{
		{"Id", MemberID, expr.StringType},
		{"Name", MemberField, expr.StringType},
		{"ReviewAsPrimary", MemberField, expr.BoolType},
		{"WorkIssues", MemberCollection, expr.SequenceOf(expr.EntityOf("Issue"))},
	}
	for _, tt := range tests {
		t.Run(tt.member, func(t *testing.T) {
			mem, err := m.Member("Employee", tt.member)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, mem.Kind)

			typ, err := m.ResolveMember("Employee", tt.member)
			require.NoError(t, err)
			assert.True(t, tt.typ.Equal(typ), "want %s, got %s", tt.typ, typ)
		})
	}

	typ, err := m.ResolveMember("Issue", "Project")
	require.NoError(t, err)
	assert.Equal(t, expr.EntityOf("Project"), typ)

	_, err = m.Member("Employee", "Salaries")
	assert.EqualError(t, err, `entity Employee has no member "Salaries"`)

	_, err = m.Member("Manager", "Name")
	assert.EqualError(t, err, `unknown entity "Manager"`)
}

func TestCompileDefaults(t *testing.T) {
	m, err := Compile(`
entity: OrderLine: {
	fields: {Quantity: "int", PlacedAt: "datetime(0)"}
}
`)
	require.NoError(t, err)
	e, ok := m.Entity("OrderLine")
	require.True(t, ok)
	assert.Equal(t, "order_line", e.Table, "table defaults to the snake_case entity name")

	f, ok := e.Field("PlacedAt")
	require.True(t, ok)
	assert.Equal(t, "placed_at", f.Column)
	assert.Equal(t, 0, f.Scale)
	assert.Equal(t, expr.DateTimeType, f.Type())
}

func TestCompileSelfJoin(t *testing.T) {
	m, err := Compile(`
entity: Person: {
	fields: Name: "string"
	collections: Friends: {of: "Person", join: "person_friend"}
}
`)
	require.NoError(t, err)
	p, _ := m.Entity("Person")
	c, ok := p.Collection("Friends")
	require.True(t, ok)
	assert.Equal(t, "person_id", c.OwnerColumn)
	assert.Equal(t, "friends_id", c.ElementColumn, "element column falls back to the collection name")
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		message string
	}{
		{"no entities", `other: 1`, "no entities defined"},
		{"float field", `entity: A: fields: Price: "float"`, `unsupported field type "float"`},
		{"scale on string", `entity: A: fields: Name: "string(3)"`, "only datetime accepts a scale"},
		{"non-string field type", `entity: A: fields: Name: 3`, "field type must be a string"},
		{"reference not a name", `entity: A: references: B: 1`, "reference target must be an entity name"},
		{"collection without element", `entity: A: collections: Bs: {join: "a_b"}`, "element entity is required"},
		{"cue syntax", `entity: {`, "cue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestCompileErrorHasPosition(t *testing.T) {
	_, err := Compile("entity: A: {\n\tfields: Price: \"float\"\n}\n")
	require.Error(t, err)

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "fields.Price", se.Field)
	assert.True(t, se.Pos.IsValid())
	assert.Equal(t, 2, se.Pos.Line())
}

func TestValidateReportsEveryProblem(t *testing.T) {
	_, err := Compile(`
entity: Client: {
	table: "client"
	fields: Name: "string"
	references: Name: "Client"
}
entity: Other: {
	table: "client"
	fields: At: "datetime(12)"
	references: Owner: "Nobody"
	collections: {
		Ghosts: {of: "Ghost", join: "other_ghost"}
		Both: {of: "Client", join: "other_client", inverse: "Owner"}
		Neither: {of: "Client"}
		Missing: {of: "Client", inverse: "Parent"}
		Links: {of: "Client", join: "client"}
	}
}
`)
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)

	msg := err.Error()
	for _, want := range []string{
		`entity Client: duplicate member "Name"`,
		`entity Other: table "client" already used by Client`,
		`entity Other: field At: scale 12 out of range 0..9`,
		`entity Other: reference Owner targets unknown entity "Nobody"`,
		`entity Other: collection Ghosts of unknown entity "Ghost"`,
		`entity Other: collection Both sets both join and inverse`,
		`entity Other: collection Neither needs join or inverse`,
		`entity Other: collection Missing: Client has no reference "Parent"`,
		`entity Other: join table "client" collides with entity`,
	} {
		assert.Contains(t, msg, want)
	}
	assert.Len(t, merr.Errors, 9)
}

func TestValidateInverseTarget(t *testing.T) {
	_, err := Compile(`
entity: A: {
	fields: Name: "string"
	collections: Cs: {of: "C", inverse: "B"}
}
entity: B: fields: Name: "string"
entity: C: references: B: "B"
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity A: collection Cs: C.B targets B")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.cue"), []byte(`
entity: Author: {
	fields: Name: "string"
	collections: Books: {of: "Book", inverse: "Author"}
}
entity: Book: {
	fields: Title: "string"
	references: Author: "Author"
}
`), 0o644))

	m, err := Load(dir)
	require.NoError(t, err)
	author, ok := m.Entity("Author")
	require.True(t, ok)
	books, ok := author.Collection("Books")
	require.True(t, ok)
	assert.Equal(t, "Author", books.Inverse)
	assert.Empty(t, books.Join)
}

func entityNames(m *Model) []string {
	var names []string
	for _, e := range m.Entities() {
		names = append(names, e.Name)
	}
	return names
}

func TestLoadEmbeddedSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.cue"), []byte(DefaultSource()), 0o644))

	m, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, entityNames(Default()), entityNames(m))
}

func TestLoadMergesFilesWithoutPackageClause(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "author.cue"), []byte(`
entity: Author: {
	fields: Name: "string"
	collections: Books: {of: "Book", inverse: "Author"}
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "book.cue"), []byte(`
entity: Book: {
	fields: Title: "string"
	references: Author: "Author"
}
`), 0o644))

	m, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Author", "Book"}, entityNames(m))
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope"))
		assert.ErrorContains(t, err, "schema directory")
	})

	t.Run("file instead of directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "model.cue")
		require.NoError(t, os.WriteFile(path, []byte("entity: {}"), 0o644))
		_, err := Load(path)
		assert.ErrorContains(t, err, "not a directory")
	})

	t.Run("no cue files", func(t *testing.T) {
		_, err := Load(t.TempDir())
		assert.ErrorContains(t, err, "no CUE files found")
	})
}
