// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dojo-hub/progression-engine/internal/domain/graduation"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPUTE PROGRESSION QUERY
// Derives degree, next-degree target and belt eligibility from raw attendance
// and activity records.
// ══════════════════════════════════════════════════════════════════════════════

// ComputeProgressionQuery selects a student in a course.
type ComputeProgressionQuery struct {
	StudentID string
	CourseID  string
}

// Validate checks the query.
func (q ComputeProgressionQuery) Validate() error {
	if q.StudentID == "" || q.CourseID == "" {
		return shared.InvalidInput("query", "ComputeProgression", "student_id and course_id are required")
	}
	return nil
}

// ProgressionView adds belt and degree history to the calculator output.
type ProgressionView struct {
	graduation.ProgressionResult

	CurrentBelt     string `json:"current_belt"`
	NextBelt        string `json:"next_belt"`
	DegreesRecorded []int  `json:"degrees_recorded"`

	Requirements graduation.Requirements `json:"requirements"`
}

// ComputeProgressionHandler reads everything the calculator needs.
type ComputeProgressionHandler struct {
	enrollments  student.EnrollmentRepository
	courses      student.CourseRepository
	requirements graduation.RequirementsRepository
	attendance   graduation.AttendanceRepository
	activities   graduation.ActivityRepository
	degrees      graduation.DegreeRepository
	graduations  graduation.GraduationRepository
	clock        func() time.Time
}

// NewComputeProgressionHandler creates a new ComputeProgressionHandler.
func NewComputeProgressionHandler(
	enrollments student.EnrollmentRepository,
	courses student.CourseRepository,
	requirements graduation.RequirementsRepository,
	attendance graduation.AttendanceRepository,
	activities graduation.ActivityRepository,
	degrees graduation.DegreeRepository,
	graduations graduation.GraduationRepository,
	clock func() time.Time,
) *ComputeProgressionHandler {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &ComputeProgressionHandler{
		enrollments:  enrollments,
		courses:      courses,
		requirements: requirements,
		attendance:   attendance,
		activities:   activities,
		degrees:      degrees,
		graduations:  graduations,
		clock:        clock,
	}
}

// Compute runs the calculator. Courses without stored requirements use
// graduation.DefaultRequirements.
func (h *ComputeProgressionHandler) Compute(ctx context.Context, studentID, courseID string) (*graduation.ProgressionResult, *graduation.Requirements, error) {
	enr, err := h.enrollments.GetByStudentCourse(ctx, studentID, courseID)
	if err != nil {
		return nil, nil, err
	}

	var (
		course     *student.Course
		req        graduation.Requirements
		attendance []graduation.AttendanceRecord
		activities []graduation.ActivityRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := h.courses.GetByID(gctx, courseID)
		if err != nil {
			return fmt.Errorf("load course: %w", err)
		}
		course = c
		return nil
	})
	g.Go(func() error {
		r, err := h.requirements.Get(gctx, courseID)
		switch {
		case err == nil:
			req = *r
		case shared.IsNotFound(err):
			req = graduation.DefaultRequirements(courseID)
		default:
			return fmt.Errorf("load requirements: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		list, err := h.attendance.ListByStudentCourse(gctx, studentID, courseID)
		if err != nil {
			return fmt.Errorf("load attendance: %w", err)
		}
		attendance = list
		return nil
	})
	g.Go(func() error {
		list, err := h.activities.ListByStudentCourse(gctx, studentID, courseID)
		if err != nil {
			return fmt.Errorf("load activities: %w", err)
		}
		activities = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	res := graduation.Calculate(graduation.ProgressionInput{
		StudentID:    studentID,
		CourseID:     courseID,
		TotalLessons: course.TotalLessons,
		Requirements: req,
		Attendance:   attendance,
		Activities:   activities,
		EnrolledAt:   enr.EnrolledAt,
		Now:          h.clock(),
	})
	return &res, &req, nil
}

// Handle executes the query.
func (h *ComputeProgressionHandler) Handle(ctx context.Context, q ComputeProgressionQuery) (*ProgressionView, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	res, req, err := h.Compute(ctx, q.StudentID, q.CourseID)
	if err != nil {
		return nil, shared.WrapError("query", "ComputeProgression", kindOf(err), "failed to compute progression", err)
	}

	view := &ProgressionView{ProgressionResult: *res, Requirements: *req, NextBelt: req.ToBelt}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		latest, err := h.graduations.Latest(gctx, q.StudentID, q.CourseID)
		if err != nil {
			return fmt.Errorf("load graduation: %w", err)
		}
		view.CurrentBelt = graduation.CurrentBelt(latest, req.FromBelt)
		return nil
	})
	g.Go(func() error {
		list, err := h.degrees.ListByStudentCourse(gctx, q.StudentID, q.CourseID)
		if err != nil {
			return fmt.Errorf("load degrees: %w", err)
		}
		view.DegreesRecorded = make([]int, 0, len(list))
		for _, d := range list {
			view.DegreesRecorded = append(view.DegreesRecorded, d.Degree)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, shared.WrapError("query", "ComputeProgression", kindOf(err), "failed to load belt history", err)
	}
	if view.CurrentBelt == req.ToBelt {
		view.NextBelt = ""
	}
	return view, nil
}

// kindOf keeps NotFound visible to callers and maps everything else to
// ServiceUnavailable.
func kindOf(err error) error {
	switch {
	case shared.IsNotFound(err):
		return shared.ErrNotFound
	case shared.IsValidation(err):
		return shared.ErrValidation
	default:
		return shared.ErrServiceUnavailable
	}
}
