package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/condpush/internal/ir"
)

func employeeEnv() *Env {
	var env *Env
	return env.Bind("e", EntityOf("Employee"))
}

func TestCheck(t *testing.T) {
	c := NewChecker(testModel)
	e := Param("e")

	tests := []struct {
		name string
		node Node
		want Type
	}{
		{"scalar member", Member(e, "Name"), StringType},
		{"collection member", Member(e, "ReviewIssues"), SequenceOf(EntityOf("Issue"))},
		{"reference chain", Member(Member(Call(Member(e, "WorkIssues"), MethodFirst), "Client"), "Name"), StringType},
		{"conditional over collections", gh1879Receiver(), SequenceOf(EntityOf("Issue"))},
		{"any over conditional", Call(gh1879Receiver(), MethodAny, clientIsBeta()), BoolType},
		{"count", Call(gh1879Receiver(), MethodCount), IntType},
		{"string length", Member(Member(e, "Name"), "Length"), IntType},
		{"string method", Call(Member(e, "Name"), MethodStartsWith, Const(ir.IRString("A"))), BoolType},
		{
			"group by key",
			Call(Member(e, "WorkIssues"), MethodGroupBy, Lam("i", Member(Param("i"), "Client"))),
			SequenceOf(GroupOf(EntityOf("Client"), EntityOf("Issue"))),
		},
		{
			"record",
			New{Fields: []Field{{Name: "Name", Value: Member(e, "Name")}}},
			RecordOf(FieldType{Name: "Name", Type: StringType}),
		},
		{"null against entity", Eq(Member(Call(Member(e, "WorkIssues"), MethodFirst), "Client"), Const(ir.IRNull{})), BoolType},
		{"conditional with null branch", Cond(Member(e, "ReviewAsPrimary"), Member(e, "Name"), Const(nil)), StringType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Check(tt.node, employeeEnv())
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestCheckErrors(t *testing.T) {
	c := NewChecker(testModel)
	e := Param("e")

	tests := []struct {
		name    string
		node    Node
		message string
	}{
		{"unbound", Member(Param("z"), "Name"), `unbound parameter "z"`},
		{"unknown member", Member(e, "Salary"), `no member "Salary"`},
		{"non-bool condition", Cond(Member(e, "Name"), e, e), "condition must be bool"},
		{
			"incompatible branches",
			Cond(Member(e, "ReviewAsPrimary"), Member(e, "ReviewIssues"), Member(e, "Projects")),
			"incompatible types seq<Issue> and seq<Project>",
		},
		{"predicate not bool", Call(Member(e, "WorkIssues"), MethodWhere, Lam("i", Member(Param("i"), "Name"))), "must return bool"},
		{"method on entity", Call(e, MethodAny), "not defined on Employee"},
		{"order by entity", Call(Member(e, "WorkIssues"), MethodOrderBy, Lam("i", Member(Param("i"), "Client"))), "cannot order by Client"},
		{"int versus string", Eq(Member(e, "Name"), Const(ir.IRInt(1))), "cannot compare string with int"},
		{"nil", nil, "nil expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Check(tt.node, employeeEnv())
			require.Error(t, err)
			assert.True(t, IsTypeError(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestCheckWithoutResolver(t *testing.T) {
	_, err := NewChecker(nil).Check(Member(Param("e"), "Name"), employeeEnv())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no schema")
}

func TestBindLambda(t *testing.T) {
	c := NewChecker(testModel)
	env, err := c.BindLambda(SequenceOf(EntityOf("Issue")), clientIsBeta(), nil)
	require.NoError(t, err)
	got, ok := env.Lookup("i")
	require.True(t, ok)
	assert.Equal(t, EntityOf("Issue"), got)

	_, err = c.BindLambda(StringType, clientIsBeta(), nil)
	assert.Error(t, err)

	_, err = c.BindLambda(SequenceOf(EntityOf("Issue")), Lambda{Params: []Parameter{{Name: "a"}, {Name: "b"}}, Body: Param("a")}, nil)
	assert.Error(t, err)
}

func TestUnify(t *testing.T) {
	got, ok := Unify(NullType, EntityOf("Client"))
	require.True(t, ok)
	assert.Equal(t, EntityOf("Client"), got)

	_, ok = Unify(NullType, IntType)
	assert.False(t, ok, "int is not nullable")

	_, ok = Unify(SequenceOf(EntityOf("Issue")), SequenceOf(EntityOf("Project")))
	assert.False(t, ok)

	got, ok = Unify(SequenceOf(EntityOf("Issue")), SequenceOf(EntityOf("Issue")))
	require.True(t, ok)
	assert.Equal(t, "seq<Issue>", got.String())
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "group<int, Employee>", GroupOf(IntType, EntityOf("Employee")).String())
	assert.Equal(t, "{Name: string, Beta: bool}", RecordOf(
		FieldType{Name: "Name", Type: StringType},
		FieldType{Name: "Beta", Type: BoolType},
	).String())
}
