package service

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HuongNV13/moodle/cmd/moodlenet/repository"
	"github.com/HuongNV13/moodle/common/logger"
	"github.com/HuongNV13/moodle/common/models"
)

type stubCourses struct {
	course  *models.Course
	modules []*models.CourseModule
}

func (s *stubCourses) GetCourse(ctx context.Context, id int64) (*models.Course, error) {
	if s.course == nil || s.course.ID != id {
		return nil, repository.ErrNotFound
	}
	return s.course, nil
}

func (s *stubCourses) GetModuleInCourse(ctx context.Context, cmID, courseID int64) (*models.CourseModule, error) {
	for _, m := range s.modules {
		if m.ID == cmID && m.CourseID == courseID {
			return m, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubCourses) ListModules(ctx context.Context, courseID int64) ([]*models.CourseModule, error) {
	var out []*models.CourseModule
	for _, m := range s.modules {
		if m.CourseID == courseID {
			out = append(out, m)
		}
	}
	return out, nil
}

func testPackager(t *testing.T) (*Packager, *stubCourses) {
	t.Helper()
	courses := &stubCourses{
		course: &models.Course{ID: testCourseID, ShortName: "hist101", FullName: "History 101"},
		modules: []*models.CourseModule{
			{ID: 1, CourseID: testCourseID, Name: "Intro", ModName: "page", Content: []byte(`{"text":"intro"}`)},
			{ID: 2, CourseID: testCourseID, Name: "Quiz", ModName: "quiz", Content: []byte(`{"questions":3}`)},
			{ID: 3, CourseID: testCourseID, Name: "Forum", ModName: "forum"},
		},
	}
	return NewPackager(courses, t.TempDir(), logger.New("error", "text")), courses
}

// readManifest opens the produced archive and decodes its manifest
func readManifest(t *testing.T, blob *models.PackagedResource) (backupManifest, []string) {
	t.Helper()

	zr, err := zip.OpenReader(blob.Path)
	require.NoError(t, err)
	defer zr.Close()

	var manifest backupManifest
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		if f.Name != "moodle_backup.xml" {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		require.NoError(t, xml.Unmarshal(data, &manifest))
	}
	return manifest, names
}

func includedFlags(m backupManifest) map[int64]int {
	flags := make(map[int64]int)
	for _, a := range m.Activities {
		flags[a.ID] = a.Included
	}
	return flags
}

func TestPackage_WholeCourse(t *testing.T) {
	p, _ := testPackager(t)

	blob, err := p.Package(context.Background(), models.WholeCourse(testCourseID))
	require.NoError(t, err)
	defer blob.Delete()

	assert.Equal(t, MimeTypeBackup, blob.MimeType)
	assert.Positive(t, blob.Size)
	assert.Contains(t, blob.Filename, "hist101")

	manifest, names := readManifest(t, blob)
	assert.Equal(t, testCourseID, manifest.CourseID)
	assert.Equal(t, map[int64]int{1: 1, 2: 1, 3: 1}, includedFlags(manifest))
	assert.Contains(t, names, "activities/page_1/module.json")
	assert.Contains(t, names, "activities/quiz_2/module.json")
	assert.Contains(t, names, "activities/forum_3/module.json")
}

func TestPackage_PartialCourse(t *testing.T) {
	p, _ := testPackager(t)

	blob, err := p.Package(context.Background(), models.PartialCourse(testCourseID, []int64{1}))
	require.NoError(t, err)
	defer blob.Delete()

	// Every module is listed, only the selected one carries content
	manifest, names := readManifest(t, blob)
	assert.Equal(t, map[int64]int{1: 1, 2: 0, 3: 0}, includedFlags(manifest))
	assert.Contains(t, names, "activities/page_1/module.json")
	assert.NotContains(t, names, "activities/quiz_2/module.json")
	assert.NotContains(t, names, "activities/forum_3/module.json")
}

func TestPackage_SingleActivity(t *testing.T) {
	p, _ := testPackager(t)

	blob, err := p.Package(context.Background(), models.SingleActivity(testCourseID, 2))
	require.NoError(t, err)
	defer blob.Delete()

	manifest, names := readManifest(t, blob)
	assert.Equal(t, map[int64]int{2: 1}, includedFlags(manifest))
	assert.Contains(t, names, "activities/quiz_2/module.json")
	assert.Contains(t, blob.Filename, "Quiz")
}

func TestPackage_InvalidSelections(t *testing.T) {
	p, _ := testPackager(t)

	tests := []struct {
		name     string
		selector models.ResourceSelector
	}{
		{"empty partial selection", models.PartialCourse(testCourseID, nil)},
		{"partial naming only foreign modules", models.PartialCourse(testCourseID, []int64{99, 100})},
		{"unknown course", models.WholeCourse(999)},
		{"activity outside the course", models.SingleActivity(testCourseID, 99)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Package(context.Background(), tt.selector)
			assert.ErrorIs(t, err, ErrInvalidSelection)
		})
	}
}

func TestPackagedResource_DeleteIsIdempotent(t *testing.T) {
	p, _ := testPackager(t)

	blob, err := p.Package(context.Background(), models.WholeCourse(testCourseID))
	require.NoError(t, err)

	require.NoError(t, blob.Delete())
	require.NoError(t, blob.Delete())
	assert.NoFileExists(t, blob.Path)
}
