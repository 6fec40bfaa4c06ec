package service

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/HuongNV13/moodle/cmd/moodlenet/repository"
	"github.com/HuongNV13/moodle/common/logger"
	"github.com/HuongNV13/moodle/common/models"
)

// MimeTypeBackup is the content type of a packaged backup archive
const MimeTypeBackup = "application/vnd.moodle.backup"

// ErrInvalidSelection is returned when a selector names no usable activities:
// an unknown course, an activity outside the course, or a partial selection
// that matches nothing.
var ErrInvalidSelection = errors.New("selection contains no valid activities")

var filenameSafe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// courseSource is the subset of the course repository the packager reads
type courseSource interface {
	GetCourse(ctx context.Context, id int64) (*models.Course, error)
	GetModuleInCourse(ctx context.Context, cmID, courseID int64) (*models.CourseModule, error)
	ListModules(ctx context.Context, courseID int64) ([]*models.CourseModule, error)
}

// Packager produces the transient backup archive for one share attempt.
// The same packager serves single-activity, whole-course and partial-course
// selections; the selector decides which modules are marked included.
type Packager struct {
	courses courseSource
	tempDir string
	log     *logger.Logger
}

// NewPackager creates a packager writing archives under tempDir
func NewPackager(courses courseSource, tempDir string, log *logger.Logger) *Packager {
	return &Packager{
		courses: courses,
		tempDir: tempDir,
		log:     log,
	}
}

// backupManifest is the moodle_backup.xml root written into every archive.
// Every course module appears once; excluded ones carry included=0 and no
// content entry.
type backupManifest struct {
	XMLName    xml.Name           `xml:"moodle_backup"`
	CourseID   int64              `xml:"course>id"`
	ShortName  string             `xml:"course>shortname"`
	FullName   string             `xml:"course>fullname"`
	BackupTime int64              `xml:"information>backup_time"`
	Activities []manifestActivity `xml:"activities>activity"`
}

type manifestActivity struct {
	ID       int64  `xml:"id,attr"`
	ModName  string `xml:"modname,attr"`
	Title    string `xml:"title"`
	Included int    `xml:"included"`
}

// Package builds the .mbz archive for the selection and returns it as a
// temporary file. Ownership of the file transfers to the caller.
func (p *Packager) Package(ctx context.Context, selector models.ResourceSelector) (*models.PackagedResource, error) {
	if selector.Kind == models.SelectorPartial && len(selector.CMIDs) == 0 {
		return nil, ErrInvalidSelection
	}

	course, err := p.courses.GetCourse(ctx, selector.CourseID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidSelection
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load course %d: %w", selector.CourseID, err)
	}

	modules, included, err := p.resolveModules(ctx, selector)
	if err != nil {
		return nil, err
	}

	blob, err := p.writeArchive(course, selector, modules, included)
	if err != nil {
		return nil, err
	}

	p.log.Info("packaged resource",
		"course_id", course.ID,
		"kind", string(selector.Kind),
		"modules", len(modules),
		"size", blob.Size,
	)
	return blob, nil
}

// resolveModules loads the course modules relevant to the selector and marks
// which of them are included in the archive content.
func (p *Packager) resolveModules(ctx context.Context, selector models.ResourceSelector) ([]*models.CourseModule, map[int64]bool, error) {
	included := make(map[int64]bool)

	if selector.Kind == models.SelectorSingle {
		module, err := p.courses.GetModuleInCourse(ctx, selector.CMIDs[0], selector.CourseID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidSelection
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load module %d: %w", selector.CMIDs[0], err)
		}
		included[module.ID] = true
		return []*models.CourseModule{module}, included, nil
	}

	modules, err := p.courses.ListModules(ctx, selector.CourseID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list modules for course %d: %w", selector.CourseID, err)
	}

	switch selector.Kind {
	case models.SelectorWhole:
		for _, m := range modules {
			included[m.ID] = true
		}
	case models.SelectorPartial:
		selected := make(map[int64]bool, len(selector.CMIDs))
		for _, id := range selector.CMIDs {
			selected[id] = true
		}
		for _, m := range modules {
			if selected[m.ID] {
				included[m.ID] = true
			}
		}
		// A selection naming only foreign or deleted modules is a caller
		// error, not an empty backup.
		if len(included) == 0 {
			return nil, nil, ErrInvalidSelection
		}
	}

	return modules, included, nil
}

// writeArchive writes the manifest plus the content entries of the included
// modules into a fresh temp file. On any failure the partial file is removed.
func (p *Packager) writeArchive(
	course *models.Course,
	selector models.ResourceSelector,
	modules []*models.CourseModule,
	included map[int64]bool,
) (*models.PackagedResource, error) {
	file, err := os.CreateTemp(p.tempDir, "moodlenet-*.mbz")
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}

	fail := func(err error) (*models.PackagedResource, error) {
		file.Close()
		os.Remove(file.Name())
		return nil, err
	}

	zw := zip.NewWriter(file)

	manifest := backupManifest{
		CourseID:   course.ID,
		ShortName:  course.ShortName,
		FullName:   course.FullName,
		BackupTime: time.Now().Unix(),
	}
	for _, m := range modules {
		entry := manifestActivity{ID: m.ID, ModName: m.ModName, Title: m.Name}
		if included[m.ID] {
			entry.Included = 1
		}
		manifest.Activities = append(manifest.Activities, entry)
	}

	manifestXML, err := xml.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fail(fmt.Errorf("failed to marshal backup manifest: %w", err))
	}

	w, err := zw.Create("moodle_backup.xml")
	if err != nil {
		return fail(fmt.Errorf("failed to create manifest entry: %w", err))
	}
	if _, err := w.Write(append([]byte(xml.Header), manifestXML...)); err != nil {
		return fail(fmt.Errorf("failed to write manifest entry: %w", err))
	}

	for _, m := range modules {
		if !included[m.ID] {
			continue
		}
		w, err := zw.Create(fmt.Sprintf("activities/%s_%d/module.json", m.ModName, m.ID))
		if err != nil {
			return fail(fmt.Errorf("failed to create module entry: %w", err))
		}
		content := m.Content
		if len(content) == 0 {
			content = []byte("{}")
		}
		if _, err := w.Write(content); err != nil {
			return fail(fmt.Errorf("failed to write module entry: %w", err))
		}
	}

	if err := zw.Close(); err != nil {
		return fail(fmt.Errorf("failed to finalize archive: %w", err))
	}
	if err := file.Close(); err != nil {
		return fail(fmt.Errorf("failed to close archive file: %w", err))
	}

	info, err := os.Stat(file.Name())
	if err != nil {
		os.Remove(file.Name())
		return nil, fmt.Errorf("failed to stat archive file: %w", err)
	}

	return &models.PackagedResource{
		Path:     file.Name(),
		Filename: archiveFilename(course, selector, modules),
		MimeType: MimeTypeBackup,
		Size:     info.Size(),
	}, nil
}

// archiveFilename derives a stable, filesystem-safe name for the upload part
func archiveFilename(course *models.Course, selector models.ResourceSelector, modules []*models.CourseModule) string {
	base := course.ShortName
	if selector.Kind == models.SelectorSingle && len(modules) == 1 {
		base = fmt.Sprintf("%s-%s", course.ShortName, modules[0].Name)
	}
	base = filenameSafe.ReplaceAllString(base, "_")
	return fmt.Sprintf("backup-%s-%s.mbz", base, time.Now().Format("20060102-150405"))
}
