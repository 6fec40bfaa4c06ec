package models

import "encoding/json"

// Course represents a course whose content can be shared
// Maps to: course table
type Course struct {
	ID        int64  `db:"id" json:"id"`
	ShortName string `db:"shortname" json:"shortname"`
	FullName  string `db:"fullname" json:"fullname"`

	// Summary may contain HTML; it is stripped to plain text before being
	// sent as the resource description
	Summary string `db:"summary" json:"summary"`
}

// CourseModule represents a single activity within a course
// Maps to: course_module table
type CourseModule struct {
	ID       int64  `db:"id" json:"id"`
	CourseID int64  `db:"courseid" json:"courseid"`
	Name     string `db:"name" json:"name"`

	// Module type, e.g. "assign", "quiz", "forum"
	ModName string `db:"modname" json:"modname"`

	// Summary may contain HTML, stripped before sending
	Summary string `db:"summary" json:"summary"`

	// Opaque serialized module content included in backup archives
	Content json.RawMessage `db:"content" json:"content"`
}
