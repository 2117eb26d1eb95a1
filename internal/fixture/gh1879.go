package fixture

import "github.com/roach88/condpush/internal/entity"

// GH1879 builds the employee / issue / project / client graph the
// conditional pushdown scenarios query.
//
//	Issue  Client  Project
//	1      -       -
//	2      Alpha   Apple
//	3      Alpha   Apple
//	4      Alpha   Banana
//	5      Beta    Cherry
//
//	Employee  ReviewAsPrimary  ReviewIssues  WorkIssues  Projects
//	Andy      true             1, 2, 5       3           Apple, Banana
//	Bart      false            3             4, 5        Banana, Cherry
//	Carl      true             3             1, 4, 5     Cherry
//	Dorn      false            3             1, 4        -
func GH1879(ids IDGenerator) *Dataset {
	d := newDataset("gh1879")

	alpha := d.add(ids, entity.New("Client", "").Set("Name", "Alpha"))
	beta := d.add(ids, entity.New("Client", "").Set("Name", "Beta"))

	apple := d.add(ids, entity.New("Project", "").Set("Name", "Apple"))
	banana := d.add(ids, entity.New("Project", "").Set("Name", "Banana"))
	cherry := d.add(ids, entity.New("Project", "").Set("Name", "Cherry"))

	issue := func(name string, client, project *entity.Instance) *entity.Instance {
		inst := entity.New("Issue", "").Set("Name", name)
		inst.Set("Client", client).Set("Project", project)
		return d.add(ids, inst)
	}
	i1 := issue("1", nil, nil)
	i2 := issue("2", alpha, apple)
	i3 := issue("3", alpha, apple)
	i4 := issue("4", alpha, banana)
	i5 := issue("5", beta, cherry)

	employee := func(name string, reviewAsPrimary bool) *entity.Instance {
		return entity.New("Employee", "").Set("Name", name).Set("ReviewAsPrimary", reviewAsPrimary)
	}
	d.add(ids, employee("Andy", true).
		Add("ReviewIssues", i1, i2, i5).
		Add("WorkIssues", i3).
		Add("Projects", apple, banana))
	d.add(ids, employee("Bart", false).
		Add("ReviewIssues", i3).
		Add("WorkIssues", i4, i5).
		Add("Projects", banana, cherry))
	d.add(ids, employee("Carl", true).
		Add("ReviewIssues", i3).
		Add("WorkIssues", i1, i4, i5).
		Add("Projects", cherry))
	d.add(ids, employee("Dorn", false).
		Add("ReviewIssues", i3).
		Add("WorkIssues", i1, i4).
		Add("Projects"))

	return d
}
