package saga

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/graduation"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
)

// enrollmentFanOut bounds concurrent per-enrollment reads.
const enrollmentFanOut = 4

// StateLoader assembles the aggregate view achievement rules read.
type StateLoader struct {
	students    student.Repository
	enrollments student.EnrollmentRepository
	attendance  graduation.AttendanceRepository
	techniques  gamification.TechniqueProgressRepository
	challenges  gamification.ChallengeRepository
}

// NewStateLoader creates a StateLoader.
func NewStateLoader(
	students student.Repository,
	enrollments student.EnrollmentRepository,
	attendance graduation.AttendanceRepository,
	techniques gamification.TechniqueProgressRepository,
	challenges gamification.ChallengeRepository,
) *StateLoader {
	return &StateLoader{
		students:    students,
		enrollments: enrollments,
		attendance:  attendance,
		techniques:  techniques,
		challenges:  challenges,
	}
}

// Load reads the student's post-mutation state across every enrollment.
func (l *StateLoader) Load(ctx context.Context, studentID string, now time.Time) (*gamification.StudentState, error) {
	st := &gamification.StudentState{StudentID: studentID, Now: now}

	var enrollments []*student.Enrollment

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := l.students.GetByID(gctx, studentID)
		if err != nil {
			return fmt.Errorf("load student: %w", err)
		}
		st.TotalXP = int(s.TotalXP)
		st.Level = int(s.GlobalLevel)
		return nil
	})
	g.Go(func() error {
		checkIns, err := l.attendance.ListCheckIns(gctx, studentID)
		if err != nil {
			return fmt.Errorf("load check-ins: %w", err)
		}
		st.CheckIns = checkIns
		return nil
	})
	g.Go(func() error {
		list, err := l.enrollments.ListByStudent(gctx, studentID)
		if err != nil {
			return fmt.Errorf("load enrollments: %w", err)
		}
		enrollments = list
		return nil
	})
	g.Go(func() error {
		n, err := l.students.CountReferrals(gctx, studentID)
		if err != nil {
			return fmt.Errorf("count referrals: %w", err)
		}
		st.Referrals = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(enrollmentFanOut)
	for _, enr := range enrollments {
		enr := enr
		if enr.Status == student.EnrollmentCompleted {
			st.CompletedCourses++
		}

		g.Go(func() error {
			techniques, err := l.techniques.ListByEnrollment(gctx, enr.ID)
			if err != nil {
				return fmt.Errorf("load techniques of %s: %w", enr.ID, err)
			}
			attempts, err := l.challenges.ListAttemptsByEnrollment(gctx, enr.ID)
			if err != nil {
				return fmt.Errorf("load attempts of %s: %w", enr.ID, err)
			}

			mu.Lock()
			defer mu.Unlock()
			for _, t := range techniques {
				st.Techniques = append(st.Techniques, *t)
			}
			for _, a := range attempts {
				st.Attempts = append(st.Attempts, *a)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return st, nil
}
