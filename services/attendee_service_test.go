package services

import (
	"errors"
	"strings"
	"testing"
)

func TestImportAttendees(t *testing.T) {
	csv := "\ufeffName,Employee_ID,Contractor\n" +
		"John Doe,EMP001,ABC Construction Ltd\n" +
		",EMP002,XYZ Builders\n" +
		"Jane Smith,EMP001,XYZ Builders\n" +
		"  Mike Johnson , EMP003 ,\n"

	res, err := ImportAttendees(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.TotalCount != 2 || len(res.Attendees) != 2 {
		t.Fatalf("attendees = %+v", res.Attendees)
	}
	if res.Attendees[1] != (Attendee{Name: "Mike Johnson", EmpID: "EMP003"}) {
		t.Errorf("second attendee = %+v", res.Attendees[1])
	}
	if len(res.Errors) != 2 {
		t.Fatalf("errors = %+v", res.Errors)
	}
	if res.Errors[0].Row != 2 || !strings.Contains(res.Errors[0].Error, "Missing required fields") {
		t.Errorf("first error = %+v", res.Errors[0])
	}
	if res.Errors[1].Row != 3 || !strings.Contains(res.Errors[1].Error, "Duplicate employee ID") {
		t.Errorf("second error = %+v", res.Errors[1])
	}
}

func TestImportAttendeesWithoutValidRows(t *testing.T) {
	for name, body := range map[string]string{
		"empty":       "",
		"header only": "name,empId,contractor\n",
		"all invalid": "name,empId\nJohn,\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := ImportAttendees(strings.NewReader(body)); !errors.Is(err, ErrNoAttendees) {
				t.Errorf("expected ErrNoAttendees, got %v", err)
			}
		})
	}
}

func TestImportAttendeesTemplate(t *testing.T) {
	res, err := ImportAttendees(strings.NewReader(AttendeeTemplate))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.TotalCount != 3 || len(res.Errors) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestValidateAttendees(t *testing.T) {
	out := ValidateAttendees([]Attendee{
		{Name: "John Doe", EmpID: "EMP001"},
		{Name: "Jane", EmpID: ""},
		{Name: "J", EmpID: "EMP002"},
		{Name: "Jim Beam", EmpID: "E1"},
		{Name: "Johnny", EmpID: "EMP001"},
		{Name: " Ann Lee ", EmpID: " EMP004 "},
	})
	if out.Total != 6 || out.Valid != 2 || out.Invalid != 3 || out.Duplicates != 1 {
		t.Fatalf("totals = %d/%d/%d/%d", out.Total, out.Valid, out.Invalid, out.Duplicates)
	}
	if got := out.Results.Valid[1].Attendee; got.Name != "Ann Lee" || got.EmpID != "EMP004" {
		t.Errorf("valid entry not trimmed: %+v", got)
	}
	if out.Results.Duplicates[0].Index != 4 {
		t.Errorf("duplicate index = %d", out.Results.Duplicates[0].Index)
	}
}
