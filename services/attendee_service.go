package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrNoAttendees = errors.New("no valid attendees found in CSV file")

// AttendeeTemplate is served as the sample import file.
const AttendeeTemplate = `name,empId,contractor
John Doe,EMP001,ABC Construction Ltd
Jane Smith,EMP002,XYZ Builders
Mike Johnson,EMP003,Metro Contractors
`

type Attendee struct {
	Name       string `json:"name"`
	EmpID      string `json:"empId"`
	Contractor string `json:"contractor"`
}

type RowError struct {
	Row   int               `json:"row"`
	Error string            `json:"error"`
	Data  map[string]string `json:"data,omitempty"`
}

type ImportResult struct {
	Attendees  []Attendee `json:"attendees"`
	TotalCount int        `json:"totalCount"`
	Errors     []RowError `json:"errors"`
}

// header aliases, matched case-insensitively
var attendeeColumns = map[string][]string{
	"name":       {"name"},
	"empId":      {"empid", "emp_id", "employeeid", "employee_id"},
	"contractor": {"contractor"},
}

// ImportAttendees parses an attendee CSV. Rows without a name or employee ID
// and repeated employee IDs are reported and skipped.
func ImportAttendees(r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoAttendees
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for field, aliases := range attendeeColumns {
			for _, a := range aliases {
				if h == a {
					if _, seen := cols[field]; !seen {
						cols[field] = i
					}
				}
			}
		}
	}

	res := &ImportResult{Attendees: []Attendee{}}
	seen := map[string]bool{}
	for row := 1; ; row++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", row, err)
		}
		cell := func(field string) string {
			i, ok := cols[field]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		a := Attendee{Name: cell("name"), EmpID: cell("empId"), Contractor: cell("contractor")}
		data := map[string]string{"name": a.Name, "empId": a.EmpID, "contractor": a.Contractor}
		switch {
		case a.Name == "" || a.EmpID == "":
			res.Errors = append(res.Errors, RowError{Row: row, Error: "Missing required fields: name and empId are required", Data: data})
		case seen[a.EmpID]:
			res.Errors = append(res.Errors, RowError{Row: row, Error: "Duplicate employee ID: " + a.EmpID, Data: data})
		default:
			seen[a.EmpID] = true
			res.Attendees = append(res.Attendees, a)
		}
	}
	res.TotalCount = len(res.Attendees)
	if res.TotalCount == 0 {
		return res, ErrNoAttendees
	}
	return res, nil
}

type AttendeeCheck struct {
	Index    int      `json:"index"`
	Attendee Attendee `json:"attendee"`
	Error    string   `json:"error,omitempty"`
}

type AttendeeValidation struct {
	Total      int `json:"total"`
	Valid      int `json:"valid"`
	Invalid    int `json:"invalid"`
	Duplicates int `json:"duplicates"`
	Results    struct {
		Valid      []AttendeeCheck `json:"valid"`
		Invalid    []AttendeeCheck `json:"invalid"`
		Duplicates []AttendeeCheck `json:"duplicates"`
	} `json:"results"`
}

// ValidateAttendees sorts a batch into valid, invalid and duplicate entries.
func ValidateAttendees(batch []Attendee) *AttendeeValidation {
	out := &AttendeeValidation{Total: len(batch)}
	out.Results.Valid = []AttendeeCheck{}
	out.Results.Invalid = []AttendeeCheck{}
	out.Results.Duplicates = []AttendeeCheck{}
	seen := map[string]bool{}
	for i, a := range batch {
		a.Name = strings.TrimSpace(a.Name)
		a.EmpID = strings.TrimSpace(a.EmpID)
		a.Contractor = strings.TrimSpace(a.Contractor)
		check := AttendeeCheck{Index: i, Attendee: a}
		switch {
		case a.Name == "" || a.EmpID == "":
			check.Error = "Missing required fields: name and empId are required"
			out.Results.Invalid = append(out.Results.Invalid, check)
		case seen[a.EmpID]:
			check.Error = "Duplicate employee ID in batch: " + a.EmpID
			out.Results.Duplicates = append(out.Results.Duplicates, check)
		case len(a.Name) < 2:
			seen[a.EmpID] = true
			check.Error = "Name must be at least 2 characters long"
			out.Results.Invalid = append(out.Results.Invalid, check)
		case len(a.EmpID) < 3:
			seen[a.EmpID] = true
			check.Error = "Employee ID must be at least 3 characters long"
			out.Results.Invalid = append(out.Results.Invalid, check)
		default:
			seen[a.EmpID] = true
			out.Results.Valid = append(out.Results.Valid, check)
		}
	}
	out.Valid = len(out.Results.Valid)
	out.Invalid = len(out.Results.Invalid)
	out.Duplicates = len(out.Results.Duplicates)
	return out
}
