package expr

import (
	"fmt"

	"github.com/roach88/condpush/internal/ir"
)

// stubResolver is a tiny GH1879-shaped model so expr tests do not depend
// on the schema package.
type stubResolver map[string]map[string]Type

func (r stubResolver) ResolveMember(entity, member string) (Type, error) {
	members, ok := r[entity]
	if !ok {
		return Type{}, fmt.Errorf("unknown entity %q", entity)
	}
	t, ok := members[member]
	if !ok {
		return Type{}, fmt.Errorf("entity %s has no member %q", entity, member)
	}
	return t, nil
}

var testModel = stubResolver{
	"Employee": {
		"Name":            StringType,
		"ReviewAsPrimary": BoolType,
		"ReviewIssues":    SequenceOf(EntityOf("Issue")),
		"WorkIssues":      SequenceOf(EntityOf("Issue")),
		"Projects":        SequenceOf(EntityOf("Project")),
	},
	"Project": {
		"Name":   StringType,
		"Issues": SequenceOf(EntityOf("Issue")),
	},
	"Issue": {
		"Name":   StringType,
		"Client": EntityOf("Client"),
	},
	"Client": {
		"Name": StringType,
	},
}

// gh1879Receiver builds
//
//	e.ReviewAsPrimary ? e.ReviewIssues : e.Projects.Any() ? e.Projects.SelectMany(x => x.Issues) : e.WorkIssues
func gh1879Receiver() Conditional {
	e := Param("e")
	return Cond(
		Member(e, "ReviewAsPrimary"),
		Member(e, "ReviewIssues"),
		Cond(
			Call(Member(e, "Projects"), MethodAny),
			Call(Member(e, "Projects"), MethodSelectMany, Lam("x", Member(Param("x"), "Issues"))),
			Member(e, "WorkIssues"),
		),
	)
}

// clientIsBeta builds i => i.Client.Name == "Beta".
func clientIsBeta() Lambda {
	return Lam("i", Eq(Member(Member(Param("i"), "Client"), "Name"), Const(ir.IRString("Beta"))))
}
