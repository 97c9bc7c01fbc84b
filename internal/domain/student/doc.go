// Package student contains the academy's student model.
//
// It defines:
//
//   - Entities: Student, Enrollment, Course
//   - Value objects: Category, Gender, XP, Level, EnrollmentStatus
//   - Repository interfaces: Repository, EnrollmentRepository, CourseRepository
//
// # Ownership of counters
//
// Student.TotalXP, Student.GlobalLevel and the streak fields form a single
// authoritative record per student. They change only through ApplyXP and
// ApplyStreak; other packages read them but never assign them directly.
// The same holds for Enrollment.CurrentXP and Enrollment.CurrentLevel.
//
// Level computation is delegated to a LevelResolver so the threshold table
// stays configuration, not code:
//
//	leveledUp, err := st.ApplyXP(120, tables)
//
// Like every domain package it depends only on the standard library and
// the shared domain package.
package student
