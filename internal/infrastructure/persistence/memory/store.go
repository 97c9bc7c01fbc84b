// Package memory implements every repository of the engine over maps guarded
// by one mutex. It backs tests and dry runs; uniqueness rules match the
// PostgreSQL schema.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/graduation"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/pkg/timeutil"
)

// Store holds all engine state. Values are copied in and out so callers never
// share memory with the store.
type Store struct {
	mu sync.RWMutex

	students    map[string]student.Student
	enrollments map[string]student.Enrollment
	courses     map[string]student.Course

	definitions  map[string]gamification.AchievementDefinition
	unlocks      map[[2]string]gamification.AchievementUnlock
	transactions []gamification.PointsTransaction
	challenges   map[string]gamification.ChallengeDefinition
	attempts     map[[2]string]gamification.ChallengeAttempt
	evaluations  []gamification.Evaluation
	techniques   map[[2]string]gamification.TechniqueProgress

	requirements map[string]graduation.Requirements
	attendance   []graduation.AttendanceRecord
	activities   []graduation.ActivityRecord
	degrees      map[degreeKey]graduation.DegreeAchievement
	graduations  []graduation.BeltGraduation
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		students:     make(map[string]student.Student),
		enrollments:  make(map[string]student.Enrollment),
		courses:      make(map[string]student.Course),
		definitions:  make(map[string]gamification.AchievementDefinition),
		unlocks:      make(map[[2]string]gamification.AchievementUnlock),
		challenges:   make(map[string]gamification.ChallengeDefinition),
		attempts:     make(map[[2]string]gamification.ChallengeAttempt),
		techniques:   make(map[[2]string]gamification.TechniqueProgress),
		requirements: make(map[string]graduation.Requirements),
		degrees:      make(map[degreeKey]graduation.DegreeAchievement),
	}
}

// Repository views over the same state.

func (s *Store) Students() *StudentRepo { return &StudentRepo{s} }
func (s *Store) Enrollments() *EnrollmentRepo { return &EnrollmentRepo{s} }
func (s *Store) Courses() *CourseRepo { return &CourseRepo{s} }
func (s *Store) Achievements() *AchievementRepo { return &AchievementRepo{s} }
func (s *Store) Transactions() *TransactionRepo { return &TransactionRepo{s} }
func (s *Store) Challenges() *ChallengeRepo { return &ChallengeRepo{s} }
func (s *Store) Evaluations() *EvaluationRepo { return &EvaluationRepo{s} }
func (s *Store) Techniques() *TechniqueRepo { return &TechniqueRepo{s} }
func (s *Store) Requirements() *RequirementsRepo { return &RequirementsRepo{s} }
func (s *Store) Attendance() *AttendanceRepo { return &AttendanceRepo{s} }
func (s *Store) Activities() *ActivityRepo { return &ActivityRepo{s} }
func (s *Store) Degrees() *DegreeRepo { return &DegreeRepo{s} }
func (s *Store) Graduations() *GraduationRepo { return &GraduationRepo{s} }

var (
	_ student.Repository                       = (*StudentRepo)(nil)
	_ student.EnrollmentRepository             = (*EnrollmentRepo)(nil)
	_ student.CourseRepository                 = (*CourseRepo)(nil)
	_ gamification.AchievementRepository       = (*AchievementRepo)(nil)
	_ gamification.TransactionLog              = (*TransactionRepo)(nil)
	_ gamification.ChallengeRepository         = (*ChallengeRepo)(nil)
	_ gamification.EvaluationRepository        = (*EvaluationRepo)(nil)
	_ gamification.TechniqueProgressRepository = (*TechniqueRepo)(nil)
	_ graduation.RequirementsRepository        = (*RequirementsRepo)(nil)
	_ graduation.AttendanceRepository          = (*AttendanceRepo)(nil)
	_ graduation.ActivityRepository            = (*ActivityRepo)(nil)
	_ graduation.DegreeRepository              = (*DegreeRepo)(nil)
	_ graduation.GraduationRepository          = (*GraduationRepo)(nil)
)

func alreadyExists(domain, op string) error {
	return shared.NewDomainError(domain, op, shared.ErrAlreadyExists, "duplicate key")
}

func staleStudent(id string) error {
	return shared.NewDomainError("student", "SaveProgress", shared.ErrConcurrentModification,
		"student "+id+" changed since it was read")
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepo implements student.Repository.
type StudentRepo struct{ s *Store }

func (r *StudentRepo) Create(_ context.Context, st *student.Student) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.students[st.ID]; ok {
		return alreadyExists("student", "Create")
	}
	r.s.students[st.ID] = *st
	return nil
}

func (r *StudentRepo) GetByID(_ context.Context, id string) (*student.Student, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.students[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return &st, nil
}

func (r *StudentRepo) SaveProgress(_ context.Context, st *student.Student) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.students[st.ID]
	if !ok {
		return shared.ErrStudentNotFound
	}
	if cur.Version != st.Version {
		return staleStudent(st.ID)
	}
	st.Version++
	cur.Version = st.Version
	cur.TotalXP = st.TotalXP
	cur.GlobalLevel = st.GlobalLevel
	cur.CurrentStreak = st.CurrentStreak
	cur.LongestStreak = st.LongestStreak
	cur.LastActivityDate = st.LastActivityDate
	cur.UpdatedAt = st.UpdatedAt
	r.s.students[st.ID] = cur
	return nil
}

func (r *StudentRepo) ListTopByXP(_ context.Context, organizationID string, limit int) ([]*student.Student, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*student.Student, 0)
	for _, st := range r.s.students {
		if organizationID == "" || st.OrganizationID == organizationID {
			st := st
			out = append(out, &st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalXP != out[j].TotalXP {
			return out[i].TotalXP > out[j].TotalXP
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *StudentRepo) CountReferrals(_ context.Context, id string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, st := range r.s.students {
		if st.ReferredBy == id {
			n++
		}
	}
	return n, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENTS AND COURSES
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepo implements student.EnrollmentRepository.
type EnrollmentRepo struct{ s *Store }

func (r *EnrollmentRepo) Create(_ context.Context, e *student.Enrollment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.enrollments[e.ID]; ok {
		return alreadyExists("student", "CreateEnrollment")
	}
	for _, cur := range r.s.enrollments {
		if cur.StudentID == e.StudentID && cur.CourseID == e.CourseID {
			return alreadyExists("student", "CreateEnrollment")
		}
	}
	r.s.enrollments[e.ID] = *e
	return nil
}

func (r *EnrollmentRepo) GetByID(_ context.Context, id string) (*student.Enrollment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.enrollments[id]
	if !ok {
		return nil, shared.ErrEnrollmentNotFound
	}
	return &e, nil
}

func (r *EnrollmentRepo) GetActiveByStudent(_ context.Context, studentID string) (*student.Enrollment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var best *student.Enrollment
	for _, e := range r.s.enrollments {
		if e.StudentID != studentID || !e.IsActive() {
			continue
		}
		if best == nil || e.EnrolledAt.After(best.EnrolledAt) {
			e := e
			best = &e
		}
	}
	if best == nil {
		return nil, shared.ErrEnrollmentNotFound
	}
	return best, nil
}

func (r *EnrollmentRepo) GetByStudentCourse(_ context.Context, studentID, courseID string) (*student.Enrollment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, e := range r.s.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID {
			return &e, nil
		}
	}
	return nil, shared.ErrEnrollmentNotFound
}

func (r *EnrollmentRepo) ListByStudent(_ context.Context, studentID string) ([]*student.Enrollment, error) {
	return r.list(func(e student.Enrollment) bool { return e.StudentID == studentID }), nil
}

func (r *EnrollmentRepo) ListByCourse(_ context.Context, courseID string) ([]*student.Enrollment, error) {
	return r.list(func(e student.Enrollment) bool { return e.CourseID == courseID }), nil
}

func (r *EnrollmentRepo) list(match func(student.Enrollment) bool) []*student.Enrollment {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*student.Enrollment, 0)
	for _, e := range r.s.enrollments {
		if match(e) {
			e := e
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnrolledAt.Before(out[j].EnrolledAt) })
	return out
}

func (r *EnrollmentRepo) Save(_ context.Context, e *student.Enrollment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.enrollments[e.ID]; !ok {
		return shared.ErrEnrollmentNotFound
	}
	r.s.enrollments[e.ID] = *e
	return nil
}

// CourseRepo implements student.CourseRepository.
type CourseRepo struct{ s *Store }

func (r *CourseRepo) Create(_ context.Context, c *student.Course) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.courses[c.ID]; ok {
		return alreadyExists("student", "CreateCourse")
	}
	r.s.courses[c.ID] = *c
	return nil
}

func (r *CourseRepo) GetByID(_ context.Context, id string) (*student.Course, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.courses[id]
	if !ok {
		return nil, shared.ErrCourseNotFound
	}
	return &c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GAMIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepo implements gamification.AchievementRepository.
type AchievementRepo struct{ s *Store }

func (r *AchievementRepo) ListCatalog(_ context.Context, organizationID string) ([]*gamification.AchievementDefinition, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*gamification.AchievementDefinition, 0)
	for _, d := range r.s.definitions {
		if d.OrganizationID == organizationID {
			d := d
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (r *AchievementRepo) CreateDefinition(_ context.Context, def *gamification.AchievementDefinition) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.definitions {
		if d.OrganizationID == def.OrganizationID && d.Key != "" && d.Key == def.Key {
			return false, nil
		}
	}
	if _, ok := r.s.definitions[def.ID]; ok {
		return false, nil
	}
	r.s.definitions[def.ID] = *def
	return true, nil
}

func (r *AchievementRepo) ListUnlocked(_ context.Context, studentID string) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]string, 0)
	for k := range r.s.unlocks {
		if k[0] == studentID {
			out = append(out, k[1])
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *AchievementRepo) CreateUnlock(_ context.Context, u *gamification.AchievementUnlock) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := [2]string{u.StudentID, u.AchievementID}
	if _, ok := r.s.unlocks[key]; ok {
		return false, nil
	}
	r.s.unlocks[key] = *u
	return true, nil
}

func (r *AchievementRepo) CountUnlocked(ctx context.Context, studentID string) (int, error) {
	ids, err := r.ListUnlocked(ctx, studentID)
	return len(ids), err
}

// TransactionRepo implements gamification.TransactionLog.
type TransactionRepo struct{ s *Store }

func (r *TransactionRepo) Append(_ context.Context, tx *gamification.PointsTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.transactions = append(r.s.transactions, *tx)
	return nil
}

func (r *TransactionRepo) ListByStudent(_ context.Context, studentID string, limit int) ([]*gamification.PointsTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*gamification.PointsTransaction, 0)
	for i := len(r.s.transactions) - 1; i >= 0; i-- {
		tx := r.s.transactions[i]
		if tx.StudentID != studentID {
			continue
		}
		out = append(out, &tx)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ChallengeRepo implements gamification.ChallengeRepository.
type ChallengeRepo struct{ s *Store }

func (r *ChallengeRepo) CreateChallenge(_ context.Context, c *gamification.ChallengeDefinition) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.challenges[c.ID]; ok {
		return alreadyExists("gamification", "CreateChallenge")
	}
	r.s.challenges[c.ID] = *c
	return nil
}

func (r *ChallengeRepo) GetChallenge(_ context.Context, id string) (*gamification.ChallengeDefinition, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.challenges[id]
	if !ok {
		return nil, shared.ErrChallengeNotFound
	}
	return &c, nil
}

func (r *ChallengeRepo) CountByCourse(_ context.Context, courseID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, c := range r.s.challenges {
		if c.CourseID == courseID {
			n++
		}
	}
	return n, nil
}

func (r *ChallengeRepo) GetAttempt(_ context.Context, enrollmentID, challengeID string) (*gamification.ChallengeAttempt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.attempts[[2]string{enrollmentID, challengeID}]
	if !ok {
		return nil, shared.ErrAttemptNotFound
	}
	return &a, nil
}

func (r *ChallengeRepo) UpsertAttempt(_ context.Context, a *gamification.ChallengeAttempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.attempts[[2]string{a.EnrollmentID, a.ChallengeID}] = *a
	return nil
}

func (r *ChallengeRepo) ListAttemptsByEnrollment(_ context.Context, enrollmentID string) ([]*gamification.ChallengeAttempt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*gamification.ChallengeAttempt, 0)
	for k, a := range r.s.attempts {
		if k[0] == enrollmentID {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChallengeID < out[j].ChallengeID })
	return out, nil
}

// EvaluationRepo implements gamification.EvaluationRepository.
type EvaluationRepo struct{ s *Store }

func (r *EvaluationRepo) Append(_ context.Context, e *gamification.Evaluation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *e
	cp.Techniques = append([]gamification.TechniqueResult(nil), e.Techniques...)
	r.s.evaluations = append(r.s.evaluations, cp)
	return nil
}

func (r *EvaluationRepo) ListByEnrollment(_ context.Context, enrollmentID string) ([]*gamification.Evaluation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*gamification.Evaluation, 0)
	for _, e := range r.s.evaluations {
		if e.EnrollmentID == enrollmentID {
			e := e
			out = append(out, &e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EvaluatedAt.Before(out[j].EvaluatedAt) })
	return out, nil
}

// TechniqueRepo implements gamification.TechniqueProgressRepository.
type TechniqueRepo struct{ s *Store }

func (r *TechniqueRepo) Get(_ context.Context, enrollmentID, techniqueID string) (*gamification.TechniqueProgress, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.techniques[[2]string{enrollmentID, techniqueID}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *TechniqueRepo) Upsert(_ context.Context, p *gamification.TechniqueProgress) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.techniques[[2]string{p.EnrollmentID, p.TechniqueID}] = *p
	return nil
}

func (r *TechniqueRepo) ListByEnrollment(_ context.Context, enrollmentID string) ([]*gamification.TechniqueProgress, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*gamification.TechniqueProgress, 0)
	for k, p := range r.s.techniques {
		if k[0] == enrollmentID {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TechniqueID < out[j].TechniqueID })
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GRADUATION
// ══════════════════════════════════════════════════════════════════════════════

// RequirementsRepo implements graduation.RequirementsRepository.
type RequirementsRepo struct{ s *Store }

func (r *RequirementsRepo) Get(_ context.Context, courseID string) (*graduation.Requirements, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	req, ok := r.s.requirements[courseID]
	if !ok {
		return nil, shared.ErrRequirementsNotFound
	}
	return &req, nil
}

func (r *RequirementsRepo) Upsert(_ context.Context, req *graduation.Requirements) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.requirements[req.CourseID] = *req
	return nil
}

// AttendanceRepo implements graduation.AttendanceRepository. Records are
// unique per student, course, lesson and local day.
type AttendanceRepo struct{ s *Store }

func (r *AttendanceRepo) Record(_ context.Context, rec *graduation.AttendanceRecord) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	day := timeutil.StartOfDay(rec.CheckInAt)
	for _, cur := range r.s.attendance {
		if cur.StudentID == rec.StudentID && cur.CourseID == rec.CourseID &&
			cur.LessonNumber == rec.LessonNumber && timeutil.StartOfDay(cur.CheckInAt).Equal(day) {
			return false, nil
		}
	}
	r.s.attendance = append(r.s.attendance, *rec)
	return true, nil
}

func (r *AttendanceRepo) ListByStudentCourse(_ context.Context, studentID, courseID string) ([]graduation.AttendanceRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]graduation.AttendanceRecord, 0)
	for _, rec := range r.s.attendance {
		if rec.StudentID == studentID && rec.CourseID == courseID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CheckInAt.Before(out[j].CheckInAt) })
	return out, nil
}

func (r *AttendanceRepo) ListCheckIns(_ context.Context, studentID string) ([]time.Time, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]time.Time, 0)
	for _, rec := range r.s.attendance {
		if rec.StudentID == studentID && rec.Present {
			out = append(out, rec.CheckInAt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// ActivityRepo implements graduation.ActivityRepository.
type ActivityRepo struct{ s *Store }

func (r *ActivityRepo) Append(_ context.Context, rec *graduation.ActivityRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.activities = append(r.s.activities, *rec)
	return nil
}

func (r *ActivityRepo) ListByStudentCourse(_ context.Context, studentID, courseID string) ([]graduation.ActivityRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]graduation.ActivityRecord, 0)
	for _, rec := range r.s.activities {
		if rec.StudentID == studentID && rec.CourseID == courseID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// DegreeRepo implements graduation.DegreeRepository.
type DegreeRepo struct{ s *Store }

type degreeKey struct {
	studentID string
	courseID  string
	degree    int
}

func (r *DegreeRepo) CreateIfAbsent(_ context.Context, d *graduation.DegreeAchievement) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := degreeKey{d.StudentID, d.CourseID, d.Degree}
	if _, ok := r.s.degrees[key]; ok {
		return false, nil
	}
	r.s.degrees[key] = *d
	return true, nil
}

func (r *DegreeRepo) ListByStudentCourse(_ context.Context, studentID, courseID string) ([]graduation.DegreeAchievement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]graduation.DegreeAchievement, 0)
	for _, d := range r.s.degrees {
		if d.StudentID == studentID && d.CourseID == courseID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Degree < out[j].Degree })
	return out, nil
}

// GraduationRepo implements graduation.GraduationRepository.
type GraduationRepo struct{ s *Store }

func (r *GraduationRepo) Append(_ context.Context, g *graduation.BeltGraduation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.graduations = append(r.s.graduations, *g)
	return nil
}

func (r *GraduationRepo) Latest(_ context.Context, studentID, courseID string) (*graduation.BeltGraduation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var latest *graduation.BeltGraduation
	for _, g := range r.s.graduations {
		if g.StudentID != studentID || g.CourseID != courseID {
			continue
		}
		if latest == nil || !g.GraduatedAt.Before(latest.GraduatedAt) {
			g := g
			latest = &g
		}
	}
	return latest, nil
}

func (r *GraduationRepo) ListByStudent(_ context.Context, studentID string) ([]graduation.BeltGraduation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]graduation.BeltGraduation, 0)
	for _, g := range r.s.graduations {
		if g.StudentID == studentID {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].GraduatedAt.Before(out[j].GraduatedAt) })
	return out, nil
}
