package postgres

// Migrations returns the embedded schema migrations in version order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_students_courses", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_gamification", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_graduation", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "student_progress_version", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: STUDENTS, COURSES, ENROLLMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS students (
    id                 TEXT PRIMARY KEY,
    organization_id    TEXT NOT NULL,
    name               TEXT NOT NULL,
    category           VARCHAR(20) NOT NULL,
    gender             VARCHAR(10) NOT NULL DEFAULT '',
    referred_by        TEXT NOT NULL DEFAULT '',
    total_xp           INTEGER NOT NULL DEFAULT 0 CHECK (total_xp >= 0),
    global_level       INTEGER NOT NULL DEFAULT 1,
    current_streak     INTEGER NOT NULL DEFAULT 0,
    longest_streak     INTEGER NOT NULL DEFAULT 0,
    last_activity_date TIMESTAMPTZ,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_students_org_xp ON students (organization_id, total_xp DESC, id);
CREATE INDEX IF NOT EXISTS idx_students_referred_by ON students (referred_by) WHERE referred_by <> '';

CREATE TABLE IF NOT EXISTS courses (
    id                  TEXT PRIMARY KEY,
    organization_id     TEXT NOT NULL,
    name                TEXT NOT NULL,
    belt                TEXT NOT NULL DEFAULT '',
    total_lessons       INTEGER NOT NULL DEFAULT 0,
    required_techniques INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS enrollments (
    id                TEXT PRIMARY KEY,
    student_id        TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    course_id         TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    status            VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
    category          VARCHAR(20) NOT NULL,
    gender            VARCHAR(10) NOT NULL DEFAULT '',
    current_xp        INTEGER NOT NULL DEFAULT 0,
    current_level     INTEGER NOT NULL DEFAULT 1,
    attendance_rate   DOUBLE PRECISION NOT NULL DEFAULT 0,
    lessons_completed INTEGER NOT NULL DEFAULT 0,
    enrolled_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at      TIMESTAMPTZ,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (student_id, course_id)
);

CREATE INDEX IF NOT EXISTS idx_enrollments_course ON enrollments (course_id);
CREATE INDEX IF NOT EXISTS idx_enrollments_active ON enrollments (student_id, enrolled_at DESC) WHERE status = 'ACTIVE';
`

const migration001Down = `
DROP TABLE IF EXISTS enrollments;
DROP TABLE IF EXISTS courses;
DROP TABLE IF EXISTS students;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ACHIEVEMENTS, LEDGER, CHALLENGES, EVALUATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS achievement_definitions (
    id                          TEXT PRIMARY KEY,
    organization_id             TEXT NOT NULL,
    key                         TEXT,
    name                        TEXT NOT NULL,
    description                 TEXT NOT NULL DEFAULT '',
    category                    VARCHAR(30) NOT NULL,
    criteria_type               VARCHAR(40) NOT NULL,
    criteria_target             INTEGER NOT NULL DEFAULT 1,
    criteria_technique_category TEXT NOT NULL DEFAULT '',
    xp_reward                   INTEGER NOT NULL DEFAULT 0 CHECK (xp_reward >= 0),
    rarity                      VARCHAR(20) NOT NULL,
    expires_at                  TIMESTAMPTZ,
    created_at                  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (organization_id, key)
);

CREATE TABLE IF NOT EXISTS achievement_unlocks (
    id             TEXT PRIMARY KEY,
    student_id     TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    achievement_id TEXT NOT NULL REFERENCES achievement_definitions(id) ON DELETE CASCADE,
    unlocked_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (student_id, achievement_id)
);

CREATE TABLE IF NOT EXISTS points_transactions (
    id            TEXT PRIMARY KEY,
    student_id    TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    enrollment_id TEXT NOT NULL DEFAULT '',
    raw_amount    INTEGER NOT NULL,
    amount        INTEGER NOT NULL CHECK (amount >= 0),
    source        VARCHAR(30) NOT NULL,
    reference_id  TEXT NOT NULL DEFAULT '',
    note          TEXT NOT NULL DEFAULT '',
    balance_after INTEGER NOT NULL,
    level_after   INTEGER NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_points_transactions_student ON points_transactions (student_id, created_at DESC);

CREATE TABLE IF NOT EXISTS challenges (
    id                TEXT PRIMARY KEY,
    course_id         TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    week_number       INTEGER NOT NULL,
    activity          TEXT NOT NULL,
    base_metric       INTEGER NOT NULL,
    base_time_seconds INTEGER,
    xp_reward         INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_challenges_course ON challenges (course_id);

CREATE TABLE IF NOT EXISTS challenge_attempts (
    id                  TEXT PRIMARY KEY,
    enrollment_id       TEXT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
    challenge_id        TEXT NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
    attempted           BOOLEAN NOT NULL DEFAULT FALSE,
    actual_metric       INTEGER,
    actual_time_seconds INTEGER,
    completed           BOOLEAN NOT NULL DEFAULT FALSE,
    xp_earned           INTEGER NOT NULL DEFAULT 0,
    rewarded_at         TIMESTAMPTZ,
    validated           BOOLEAN NOT NULL DEFAULT FALSE,
    validated_at        TIMESTAMPTZ,
    instructor_notes    TEXT NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (enrollment_id, challenge_id)
);

CREATE TABLE IF NOT EXISTS evaluations (
    id            TEXT PRIMARY KEY,
    enrollment_id TEXT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
    type          VARCHAR(20) NOT NULL,
    lesson_number INTEGER NOT NULL DEFAULT 0,
    techniques    JSONB NOT NULL DEFAULT '[]',
    physical      JSONB,
    overall_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    passed        BOOLEAN NOT NULL DEFAULT FALSE,
    xp_awarded    INTEGER NOT NULL DEFAULT 0,
    evaluated_by  TEXT NOT NULL DEFAULT '',
    notes         TEXT NOT NULL DEFAULT '',
    evaluated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_evaluations_enrollment ON evaluations (enrollment_id, evaluated_at);

CREATE TABLE IF NOT EXISTS technique_progress (
    enrollment_id        TEXT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
    technique_id         TEXT NOT NULL,
    technique_category   TEXT NOT NULL DEFAULT '',
    status               VARCHAR(20) NOT NULL,
    accuracy             DOUBLE PRECISION NOT NULL DEFAULT 0,
    attempts             INTEGER NOT NULL DEFAULT 0,
    instructor_validated BOOLEAN NOT NULL DEFAULT FALSE,
    notes                TEXT NOT NULL DEFAULT '',
    mastered_at          TIMESTAMPTZ,
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (enrollment_id, technique_id)
);
`

const migration002Down = `
DROP TABLE IF EXISTS technique_progress;
DROP TABLE IF EXISTS evaluations;
DROP TABLE IF EXISTS challenge_attempts;
DROP TABLE IF EXISTS challenges;
DROP TABLE IF EXISTS points_transactions;
DROP TABLE IF EXISTS achievement_unlocks;
DROP TABLE IF EXISTS achievement_definitions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: ATTENDANCE, DEGREES, BELTS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS graduation_requirements (
    course_id           TEXT PRIMARY KEY REFERENCES courses(id) ON DELETE CASCADE,
    from_belt           TEXT NOT NULL DEFAULT '',
    to_belt             TEXT NOT NULL DEFAULT '',
    total_degrees       INTEGER NOT NULL,
    degree_increment    DOUBLE PRECISION NOT NULL,
    min_attendance_rate DOUBLE PRECISION NOT NULL,
    min_quality_rating  DOUBLE PRECISION NOT NULL,
    min_repetitions     INTEGER NOT NULL,
    min_months_enrolled DOUBLE PRECISION NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- check_in_day is the academy-local calendar day of check_in_at.
CREATE TABLE IF NOT EXISTS attendance (
    id                   TEXT PRIMARY KEY,
    student_id           TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    course_id            TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    lesson_number        INTEGER NOT NULL,
    check_in_at          TIMESTAMPTZ NOT NULL,
    check_in_day         DATE NOT NULL,
    present              BOOLEAN NOT NULL DEFAULT TRUE,
    techniques_practiced INTEGER NOT NULL DEFAULT 0,
    UNIQUE (student_id, course_id, lesson_number, check_in_day)
);

CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance (student_id, check_in_at) WHERE present;

CREATE TABLE IF NOT EXISTS activity_executions (
    id             TEXT PRIMARY KEY,
    student_id     TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    course_id      TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    lesson_number  INTEGER NOT NULL,
    activity       TEXT NOT NULL,
    repetitions    INTEGER NOT NULL CHECK (repetitions >= 0),
    quality_rating INTEGER NOT NULL CHECK (quality_rating BETWEEN 1 AND 5),
    recorded_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_activity_executions_student_course ON activity_executions (student_id, course_id);

CREATE TABLE IF NOT EXISTS degree_achievements (
    id                TEXT PRIMARY KEY,
    student_id        TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    course_id         TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    degree            INTEGER NOT NULL CHECK (degree >= 1),
    degree_percentage DOUBLE PRECISION NOT NULL,
    completed_lessons INTEGER NOT NULL,
    total_repetitions INTEGER NOT NULL,
    average_quality   DOUBLE PRECISION NOT NULL,
    attendance_rate   DOUBLE PRECISION NOT NULL,
    achieved_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (student_id, course_id, degree)
);

CREATE TABLE IF NOT EXISTS belt_graduations (
    id                TEXT PRIMARY KEY,
    student_id        TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    course_id         TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    from_belt         TEXT NOT NULL DEFAULT '',
    to_belt           TEXT NOT NULL,
    approved_by       TEXT NOT NULL,
    completed_lessons INTEGER NOT NULL,
    attendance_rate   DOUBLE PRECISION NOT NULL,
    average_quality   DOUBLE PRECISION NOT NULL,
    total_repetitions INTEGER NOT NULL,
    months_enrolled   DOUBLE PRECISION NOT NULL,
    ceremony_date     TIMESTAMPTZ,
    ceremony_notes    TEXT NOT NULL DEFAULT '',
    fingerprint       TEXT NOT NULL,
    graduated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_belt_graduations_student ON belt_graduations (student_id, graduated_at);
`

const migration003Down = `
DROP TABLE IF EXISTS belt_graduations;
DROP TABLE IF EXISTS degree_achievements;
DROP TABLE IF EXISTS activity_executions;
DROP TABLE IF EXISTS attendance;
DROP TABLE IF EXISTS graduation_requirements;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: OPTIMISTIC VERSION ON STUDENT PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
ALTER TABLE students ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 0;
`

const migration004Down = `
ALTER TABLE students DROP COLUMN IF EXISTS version;
`
