package jobs

import (
	"context"
	"fmt"

	"github.com/dojo-hub/progression-engine/internal/application/command"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/pkg/logger"
)

// DegreeRecorder records reached degrees under the student's lock.
// Implemented by engine.Engine.
type DegreeRecorder interface {
	RecordDegrees(ctx context.Context, cmd command.RecordDegreeCommand) (*command.RecordDegreeResult, error)
}

// BackfillStats summarizes one course pass.
type BackfillStats struct {
	Enrollments int
	Recorded    int
	Failed      int
}

// BackfillDegreesJob records degrees reached without a check-in, for example
// after requirements were lowered or activity executions were imported.
type BackfillDegreesJob struct {
	enrollments student.EnrollmentRepository
	recorder    DegreeRecorder
	courses     []string
	log         *logger.Logger
}

// NewBackfillDegreesJob creates the job for a fixed set of courses.
func NewBackfillDegreesJob(enrollments student.EnrollmentRepository, recorder DegreeRecorder, courses []string, log *logger.Logger) *BackfillDegreesJob {
	if log == nil {
		log = logger.Nop()
	}
	return &BackfillDegreesJob{
		enrollments: enrollments,
		recorder:    recorder,
		courses:     courses,
		log:         log.With(logger.Component("backfill_degrees")),
	}
}

// Name implements scheduler.Job.
func (j *BackfillDegreesJob) Name() string { return "backfill_degrees" }

// Run backfills every configured course.
func (j *BackfillDegreesJob) Run(ctx context.Context) error {
	for _, courseID := range j.courses {
		if _, err := j.BackfillCourse(ctx, courseID); err != nil {
			return err
		}
	}
	return nil
}

// BackfillCourse records degrees for every active enrollment of a course.
// Failures are logged per student and the pass continues; only a failed
// listing or a cancelled context aborts it.
func (j *BackfillDegreesJob) BackfillCourse(ctx context.Context, courseID string) (BackfillStats, error) {
	var stats BackfillStats
	enrollments, err := j.enrollments.ListByCourse(ctx, courseID)
	if err != nil {
		return stats, fmt.Errorf("list enrollments of %s: %w", courseID, err)
	}

	for _, enr := range enrollments {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if !enr.IsActive() {
			continue
		}
		stats.Enrollments++
		res, err := j.recorder.RecordDegrees(ctx, command.RecordDegreeCommand{StudentID: enr.StudentID, CourseID: courseID})
		if err != nil {
			stats.Failed++
			j.log.Warn("degree backfill failed", logger.StudentID(enr.StudentID), logger.CourseID(courseID), logger.Err(err))
			continue
		}
		stats.Recorded += len(res.Recorded)
	}

	j.log.Info("degree backfill finished",
		logger.CourseID(courseID),
		logger.Int("enrollments", stats.Enrollments),
		logger.Int("recorded", stats.Recorded),
		logger.Int("failed", stats.Failed),
	)
	return stats, nil
}
