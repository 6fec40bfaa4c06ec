package models

import (
	"fmt"
	"os"
	"time"
)

// ShareFormat is the serialization used to package a resource for transfer
type ShareFormat int

const (
	// ShareFormatBackup shares the content as a backup archive (.mbz)
	ShareFormatBackup ShareFormat = 0
)

// ResourceType distinguishes what kind of resource a share refers to
type ResourceType string

const (
	ResourceTypeCourse   ResourceType = "course"
	ResourceTypeActivity ResourceType = "activity"
)

// ShareStatus tracks the lifecycle of one share attempt
type ShareStatus int

const (
	ShareStatusInProgress ShareStatus = 0
	ShareStatusSent       ShareStatus = 1
	ShareStatusError      ShareStatus = 2
)

// ShareProgress is the persisted, append-only record of one share attempt,
// surfaced to the end user as share history
// Maps to: moodlenet_share_progress table
type ShareProgress struct {
	ID     int64 `db:"id" json:"id"`
	UserID int64 `db:"userid" json:"userid"`

	// Resource reference: course id always set, cm id only for activities
	Type     ResourceType `db:"type" json:"type"`
	CourseID int64        `db:"courseid" json:"courseid"`
	CMID     *int64       `db:"cmid" json:"cmid,omitempty"`

	// Draft resource URL on the remote instance, empty until sent
	ResourceURL string `db:"resourceurl" json:"resourceurl"`

	Status      ShareStatus `db:"status" json:"status"`
	TimeCreated time.Time   `db:"timecreated" json:"timecreated"`
}

// SelectorKind tags the resource selector variant
type SelectorKind string

const (
	SelectorSingle  SelectorKind = "single"
	SelectorWhole   SelectorKind = "whole"
	SelectorPartial SelectorKind = "partial"
)

// ResourceSelector identifies what is being shared: one activity, a whole
// course, or a named subset of a course's activities
type ResourceSelector struct {
	Kind     SelectorKind
	CourseID int64
	CMIDs    []int64
}

// SingleActivity selects one activity in a course
func SingleActivity(courseID, cmID int64) ResourceSelector {
	return ResourceSelector{Kind: SelectorSingle, CourseID: courseID, CMIDs: []int64{cmID}}
}

// WholeCourse selects a full course
func WholeCourse(courseID int64) ResourceSelector {
	return ResourceSelector{Kind: SelectorWhole, CourseID: courseID}
}

// PartialCourse selects a subset of a course's activities
func PartialCourse(courseID int64, cmIDs []int64) ResourceSelector {
	return ResourceSelector{Kind: SelectorPartial, CourseID: courseID, CMIDs: cmIDs}
}

// ResourceType returns the audit resource type for the selector
func (s ResourceSelector) ResourceType() ResourceType {
	if s.Kind == SelectorSingle {
		return ResourceTypeActivity
	}
	return ResourceTypeCourse
}

// PackagedResource is the transient archive file produced for one share
// attempt. Ownership transfers to the caller of the packager, who must delete
// it once the attempt completes.
type PackagedResource struct {
	Path     string
	Filename string
	MimeType string
	Size     int64
}

// Delete removes the temporary file. It is idempotent: deleting an already
// removed file is not an error.
func (p *PackagedResource) Delete() error {
	if p == nil || p.Path == "" {
		return nil
	}
	if err := os.Remove(p.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete packaged resource %s: %w", p.Path, err)
	}
	return nil
}

// Warning is the structured failure surfaced to the caller, mirroring the
// {item, warningcode, message} triple of the web service layer
type Warning struct {
	Item        string `json:"item"`
	WarningCode string `json:"warningcode"`
	Message     string `json:"message"`
}

// Warning codes for failed share attempts
const (
	WarningPermission      = "errorpermission"
	WarningInvalidFormat   = "errorinvalidformat"
	WarningInvalidCMIDs    = "errorinvalidcmids"
	WarningIssuerDisabled  = "errorissuernotenabled"
	WarningOAuthClient     = "erroroauthclient"
	WarningPackaging       = "errorpackaging"
	WarningFileSizeLimit   = "errorfilesizelimit"
	WarningSendFailed      = "errorsending"
	WarningTransportFailed = "errortransport"
)
