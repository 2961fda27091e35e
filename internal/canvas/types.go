package canvas

import (
	"encoding/json"
	"strings"
)

// Account is a Canvas account or sub-account.
type Account struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	ParentAccountID *int64 `json:"parent_account_id"`
	RootAccountID   *int64 `json:"root_account_id"`
}

// IsRoot reports whether the account has no parent.
func (a Account) IsRoot() bool {
	return a.ParentAccountID == nil
}

// Term is an enrollment term as returned by /accounts/:id/terms.
type Term struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	SISTermID string `json:"sis_term_id"`
}

// termsPage is the envelope of one page of the terms endpoint.
type termsPage struct {
	EnrollmentTerms []Term `json:"enrollment_terms"`
}

// Course is one row of the account course listing.
type Course struct {
	ID               int64  `json:"id"`
	AccountID        int64  `json:"account_id"`
	Name             string `json:"name"`
	CourseCode       string `json:"course_code"`
	WorkflowState    string `json:"workflow_state"`
	DefaultView      string `json:"default_view"`
	EnrollmentTermID int64  `json:"enrollment_term_id"`
}

// CourseDetail is the single-course payload with the optional includes.
type CourseDetail struct {
	ID            int64   `json:"id"`
	SyllabusBody  *string `json:"syllabus_body"`
	TotalStudents *int    `json:"total_students"`
	Tabs          []Tab   `json:"tabs"`
}

// Tab is one course navigation entry. Hidden keeps the raw value so that the
// presence of the key can be told apart from its absence.
type Tab struct {
	ID         string          `json:"id"`
	Label      string          `json:"label"`
	Visibility string          `json:"visibility"`
	Hidden     json.RawMessage `json:"hidden,omitempty"`
}

// HasHidden reports whether the payload carried a hidden key at all.
func (t Tab) HasHidden() bool {
	return len(t.Hidden) > 0
}

// Includes selects the optional fields requested from the course endpoint.
type Includes struct {
	SyllabusBody  bool
	TotalStudents bool
	Tabs          bool
}

// Values returns the include[] query values in a fixed order.
func (i Includes) Values() []string {
	var out []string
	if i.SyllabusBody {
		out = append(out, "syllabus_body")
	}
	if i.TotalStudents {
		out = append(out, "total_students")
	}
	if i.Tabs {
		out = append(out, "tabs")
	}
	return out
}

func (i Includes) String() string {
	return strings.Join(i.Values(), ",")
}
