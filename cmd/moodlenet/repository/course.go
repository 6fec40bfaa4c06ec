package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/HuongNV13/moodle/common/db"
	"github.com/HuongNV13/moodle/common/models"
	"github.com/jackc/pgx/v5"
)

// CourseRepository handles database operations for courses and their modules
type CourseRepository struct {
	db *db.DB
}

// NewCourseRepository creates a new course repository
func NewCourseRepository(database *db.DB) *CourseRepository {
	return &CourseRepository{db: database}
}

// GetCourse retrieves a course by its ID
func (r *CourseRepository) GetCourse(ctx context.Context, id int64) (*models.Course, error) {
	query := `
		SELECT id, shortname, fullname, summary
		FROM course
		WHERE id = $1
	`

	course := &models.Course{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&course.ID,
		&course.ShortName,
		&course.FullName,
		&course.Summary,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	return course, nil
}

// GetModuleInCourse retrieves a module by ID, scoped to a course. ErrNotFound
// when the module does not exist or belongs to a different course.
func (r *CourseRepository) GetModuleInCourse(ctx context.Context, cmID, courseID int64) (*models.CourseModule, error) {
	query := `
		SELECT id, courseid, name, modname, summary, content
		FROM course_module
		WHERE id = $1 AND courseid = $2
	`

	module := &models.CourseModule{}
	err := r.db.QueryRow(ctx, query, cmID, courseID).Scan(
		&module.ID,
		&module.CourseID,
		&module.Name,
		&module.ModName,
		&module.Summary,
		&module.Content,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course module: %w", err)
	}

	return module, nil
}

// ListModules retrieves all modules in a course ordered by id
func (r *CourseRepository) ListModules(ctx context.Context, courseID int64) ([]*models.CourseModule, error) {
	query := `
		SELECT id, courseid, name, modname, summary, content
		FROM course_module
		WHERE courseid = $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list course modules: %w", err)
	}
	defer rows.Close()

	var modules []*models.CourseModule
	for rows.Next() {
		module := &models.CourseModule{}
		err := rows.Scan(
			&module.ID,
			&module.CourseID,
			&module.Name,
			&module.ModName,
			&module.Summary,
			&module.Content,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course module: %w", err)
		}
		modules = append(modules, module)
	}

	return modules, rows.Err()
}

// GetUserRole returns the role a user holds in a course, or empty string when
// the user is not enrolled
func (r *CourseRepository) GetUserRole(ctx context.Context, userID, courseID int64) (string, error) {
	query := `
		SELECT role
		FROM course_enrolment
		WHERE userid = $1 AND courseid = $2
	`

	var role string
	err := r.db.QueryRow(ctx, query, userID, courseID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get user role: %w", err)
	}

	return role, nil
}
