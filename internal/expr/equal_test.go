package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/condpush/internal/ir"
)

func TestEqual(t *testing.T) {
	a := Call(gh1879Receiver(), MethodAny, clientIsBeta())
	b := Call(gh1879Receiver(), MethodAny, clientIsBeta())
	assert.True(t, Equal(a, b))

	c := Call(gh1879Receiver(), MethodCount)
	assert.False(t, Equal(a, c))

	// Pointer and value forms compare equal.
	assert.True(t, Equal(&a, b))
	assert.True(t, Equal(Member(Param("e"), "Name"), &MemberAccess{Target: &Parameter{Name: "e"}, Member: "Name"}))

	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, Param("e")))
}

func TestEqualConstants(t *testing.T) {
	assert.True(t, Equal(Const(ir.IRNull{}), Const(nil)))
	assert.True(t, Equal(Const(ir.IRInt(3)), Const(ir.IRInt(3))))
	assert.False(t, Equal(Const(ir.IRInt(3)), Const(ir.IRString("3"))))
	assert.False(t, Equal(Const(ir.IRBool(true)), Const(ir.IRBool(false))))
}

func TestWalkPreOrder(t *testing.T) {
	n := Call(Member(Param("e"), "WorkIssues"), MethodAny, clientIsBeta())

	var kinds []string
	Walk(n, func(node Node) bool {
		kinds = append(kinds, Format(node))
		return true
	})
	require.NotEmpty(t, kinds)
	assert.Equal(t, Format(n), kinds[0])
	assert.Equal(t, "e.WorkIssues", kinds[1])
	assert.Equal(t, "e", kinds[2])
	assert.Equal(t, `i => i.Client.Name == "Beta"`, kinds[3])
}

func TestWalkSkipsChildren(t *testing.T) {
	n := Call(gh1879Receiver(), MethodAny, clientIsBeta())

	visited := 0
	Walk(n, func(node Node) bool {
		visited++
		_, isLambda := node.(Lambda)
		return !isLambda
	})

	all := 0
	Walk(n, func(Node) bool { all++; return true })
	assert.Less(t, visited, all)
}

func TestChildren(t *testing.T) {
	cond := gh1879Receiver()
	children := Children(cond)
	require.Len(t, children, 3)
	assert.True(t, Equal(children[0], cond.Test))

	assert.Nil(t, Children(Param("e")))
	assert.Len(t, Children(Call(Param("s"), MethodAny, clientIsBeta())), 2)
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(Call(gh1879Receiver(), MethodAny, clientIsBeta()))
	require.NoError(t, err)
	b, err := Fingerprint(Call(gh1879Receiver(), MethodAny, clientIsBeta()))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Fingerprint(Call(gh1879Receiver(), MethodCount))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	// null and the string "null" must not collide.
	n1, err := Fingerprint(Const(ir.IRNull{}))
	require.NoError(t, err)
	n2, err := Fingerprint(Const(ir.IRString("null")))
	require.NoError(t, err)
	assert.NotEqual(t, n1, n2)

	_, err = Fingerprint(nil)
	assert.Error(t, err)
}
