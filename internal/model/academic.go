package model

import "fmt"

// Branch is one branch of a program with its number of semesters.
type Branch struct {
	Name      string `json:"name"`
	Semesters int    `json:"semesters"`
}

// Program groups branches.
type Program struct {
	Name     string   `json:"name"`
	Branches []Branch `json:"branches"`
}

// Programs is the academic catalog materials are filed under.
var Programs = []Program{
	{Name: "B.Tech", Branches: []Branch{
		{Name: "CSE", Semesters: 8},
		{Name: "ECE", Semesters: 8},
		{Name: "EEE", Semesters: 8},
		{Name: "ME", Semesters: 8},
		{Name: "CE", Semesters: 8},
		{Name: "IT", Semesters: 8},
	}},
	{Name: "M.Tech", Branches: []Branch{
		{Name: "CSE", Semesters: 4},
		{Name: "ECE", Semesters: 4},
		{Name: "Structural", Semesters: 4},
		{Name: "Thermal", Semesters: 4},
	}},
	{Name: "MBA", Branches: []Branch{
		{Name: "General", Semesters: 4},
	}},
}

// ValidateAcademic checks that branch belongs to program and that semester is
// within the branch's range.
func ValidateAcademic(program, branch string, semester int) error {
	for _, p := range Programs {
		if p.Name != program {
			continue
		}
		for _, b := range p.Branches {
			if b.Name != branch {
				continue
			}
			if semester < 1 || semester > b.Semesters {
				return fmt.Errorf("semester must be between 1 and %d", b.Semesters)
			}
			return nil
		}
		return fmt.Errorf("invalid branch %q for program %q", branch, program)
	}
	return fmt.Errorf("invalid program %q", program)
}
