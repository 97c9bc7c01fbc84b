// Command engine is the operator CLI of the progression engine. It wires the
// PostgreSQL store, the optional Redis layer and the event bus around the
// engine facade and runs one maintenance or student operation.
//
// Usage:
//
//	engine migrate | rollback | status
//	engine seed [-org ID]
//	engine rebuild-leaderboard [-org ID]
//	engine backfill-degrees -course ID
//	engine checkin -student ID -course ID -lesson N [-techniques N]
//	engine stats -student ID
//	engine leaderboard [-org ID] [-limit N]
//	engine serve
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dojo-hub/progression-engine/config"
	"github.com/dojo-hub/progression-engine/internal/application/command"
	"github.com/dojo-hub/progression-engine/internal/application/engine"
	"github.com/dojo-hub/progression-engine/internal/infrastructure/lock"
	"github.com/dojo-hub/progression-engine/internal/infrastructure/messaging"
	"github.com/dojo-hub/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/dojo-hub/progression-engine/internal/infrastructure/persistence/redis"
	"github.com/dojo-hub/progression-engine/internal/infrastructure/scheduler"
	"github.com/dojo-hub/progression-engine/internal/infrastructure/scheduler/jobs"
	"github.com/dojo-hub/progression-engine/pkg/logger"
	"github.com/dojo-hub/progression-engine/pkg/timeutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("missing command (migrate, rollback, status, seed, rebuild-leaderboard, backfill-degrees, checkin, stats, leaderboard, serve)")
	}
	name, args := args[0], args[1:]

	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration and logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.NewWithLevel(cfg.Log.Level).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
	timeutil.SetLocation(cfg.Engine.Location)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Database
	// ─────────────────────────────────────────────────────────────────────────
	conn, err := connectDatabase(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	migrator := postgres.NewMigrator(conn)
	switch name {
	case "migrate":
		return migrator.Migrate(ctx)
	case "rollback":
		return migrator.Rollback(ctx)
	case "status":
		return printMigrations(ctx, migrator)
	}
	if cfg.Database.AutoMigrate {
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Engine
	// ─────────────────────────────────────────────────────────────────────────
	app, err := bootstrap(ctx, cfg, conn, log)
	if err != nil {
		return err
	}
	defer app.close()

	return app.dispatch(ctx, name, args)
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING
// ══════════════════════════════════════════════════════════════════════════════

type application struct {
	cfg     *config.Config
	log     *logger.Logger
	engine  *engine.Engine
	bus     *messaging.InMemoryEventBus
	ranking *redis.Ranking
	stats   *redis.StatsCache
	cache   *redis.Cache
	repos   engine.Repositories
}

func connectDatabase(ctx context.Context, c config.DatabaseConfig) (*postgres.Connection, error) {
	pg := postgres.DefaultConfig()
	pg.MaxConns = int32(c.MaxConns)
	pg.MinConns = int32(c.MinConns)
	pg.MaxConnLifetime = c.ConnMaxLifetime
	pg.MaxConnIdleTime = c.ConnMaxIdleTime
	pg.ConnectTimeout = c.ConnectTimeout
	if c.URL != "" {
		return postgres.NewConnectionFromURL(ctx, c.URL, pg)
	}
	pg.Host, pg.Port, pg.Database = c.Host, c.Port, c.Name
	pg.User, pg.Password, pg.SSLMode = c.User, c.Password, c.SSLMode
	return postgres.NewConnection(ctx, pg)
}

func repositories(conn *postgres.Connection) engine.Repositories {
	return engine.Repositories{
		Students:     postgres.NewStudentRepository(conn),
		Enrollments:  postgres.NewEnrollmentRepository(conn),
		Courses:      postgres.NewCourseRepository(conn),
		Achievements: postgres.NewAchievementRepository(conn),
		Transactions: postgres.NewTransactionRepository(conn),
		Challenges:   postgres.NewChallengeRepository(conn),
		Evaluations:  postgres.NewEvaluationRepository(conn),
		Techniques:   postgres.NewTechniqueProgressRepository(conn),
		Requirements: postgres.NewRequirementsRepository(conn),
		Attendance:   postgres.NewAttendanceRepository(conn),
		Activities:   postgres.NewActivityRepository(conn),
		Degrees:      postgres.NewDegreeRepository(conn),
		Graduations:  postgres.NewGraduationRepository(conn),
	}
}

func bootstrap(ctx context.Context, cfg *config.Config, conn *postgres.Connection, log *logger.Logger) (*application, error) {
	app := &application{cfg: cfg, log: log, repos: repositories(conn)}
	rules := config.LoadRules(cfg.Engine.TablesPath, log)

	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	if cfg.Engine.EventWorkers > 0 {
		busCfg.AsyncMode = true
		busCfg.WorkerPoolSize = cfg.Engine.EventWorkers
	}
	app.bus = messaging.NewInMemoryEventBus(busCfg)

	lockCfg := lock.DefaultConfig()
	lockCfg.TTL = cfg.Engine.LockTTL

	deps := engine.Deps{
		Repos:    app.repos,
		Tables:   rules.Tables,
		Schedule: rules.Schedule,
		Catalog:  rules.Catalog,
		LockWait: cfg.Engine.LockWait,
		Events:   app.bus,
		Logger:   log,
	}

	if !cfg.Redis.Disabled {
		cache, err := redis.NewCache(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("redis unavailable, running with local locks only", logger.Err(err))
		} else {
			app.cache = cache
			app.ranking = redis.NewRanking(cache)
			deps.Ranking = app.ranking
			app.stats = redis.NewStatsCache(cache, log)
			deps.StatsCache = app.stats

			projector := messaging.NewRankingProjector(app.ranking, log)
			forwarder := messaging.NewForwarder(cache, redis.PubSubChannel, log)
			if err := projector.Register(app.bus); err != nil {
				return nil, fmt.Errorf("register ranking projector: %w", err)
			}
			if err := forwarder.Register(app.bus); err != nil {
				return nil, fmt.Errorf("register event forwarder: %w", err)
			}
			deps.Locker = lock.NewLayered(redis.NewStudentLock(cache), lockCfg, log)
		}
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLayered(nil, lockCfg, log)
	}

	eng, err := engine.New(deps)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	app.engine = eng

	if org := cfg.Engine.DefaultOrganization; org != "" {
		if _, err := eng.SeedDefaultAchievements(ctx, org); err != nil {
			log.Warn("default catalog seeding failed", logger.OrganizationID(org), logger.Err(err))
		}
	}
	return app, nil
}

func (a *application) close() {
	if err := a.bus.Close(); err != nil {
		a.log.Warn("event bus close failed", logger.Err(err))
	}
	m := a.bus.Metrics()
	a.log.Info("event bus stopped",
		logger.Int64("published", m.Published),
		logger.Int64("executions", m.Executions),
		logger.Int64("failures", m.Failures),
	)
	if a.cache != nil {
		_ = a.cache.Close()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func (a *application) dispatch(ctx context.Context, name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	org := fs.String("org", a.cfg.Engine.DefaultOrganization, "organization id")
	studentID := fs.String("student", "", "student id")
	courseID := fs.String("course", "", "course id")
	lesson := fs.Int("lesson", 0, "lesson number")
	techniques := fs.Int("techniques", 0, "techniques practiced")
	limit := fs.Int("limit", 10, "leaderboard size")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch name {
	case "seed":
		res, err := a.engine.SeedDefaultAchievements(ctx, *org)
		if err != nil {
			return err
		}
		return printJSON(res)

	case "rebuild-leaderboard":
		return a.rebuildLeaderboard(ctx, *org)

	case "backfill-degrees":
		return a.backfillDegrees(ctx, *courseID)

	case "checkin":
		res, err := a.engine.ProcessCheckIn(ctx, command.ProcessCheckInCommand{
			StudentID:           *studentID,
			CourseID:            *courseID,
			LessonNumber:        *lesson,
			TechniquesPracticed: *techniques,
			Timestamp:           time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		return printJSON(res)

	case "stats":
		res, err := a.engine.StudentStats(ctx, *studentID)
		if err != nil {
			return err
		}
		return printJSON(res)

	case "leaderboard":
		res, err := a.engine.Leaderboard(ctx, *org, *limit)
		if err != nil {
			return err
		}
		return printJSON(res)

	case "serve":
		return a.serve(ctx)
	}
	return fmt.Errorf("unknown command %q", name)
}

// rebuildLeaderboard replaces the Redis ranking of org from the database.
func (a *application) rebuildLeaderboard(ctx context.Context, org string) error {
	if a.ranking == nil {
		return errors.New("rebuild-leaderboard needs redis")
	}
	job := jobs.NewRebuildRankingJob(a.repos.Students, a.ranking, nil, a.cfg.Engine.LeaderboardSize, a.log)
	n, err := job.RebuildOrganization(ctx, org)
	if err != nil {
		return err
	}
	a.log.Info("leaderboard rebuilt", logger.OrganizationID(org), logger.Int("entries", n))
	return nil
}

// backfillDegrees records reached degrees for every active enrollment of a
// course.
func (a *application) backfillDegrees(ctx context.Context, courseID string) error {
	if courseID == "" {
		return errors.New("backfill-degrees needs -course")
	}
	job := jobs.NewBackfillDegreesJob(a.repos.Enrollments, a.engine, nil, a.log)
	stats, err := job.BackfillCourse(ctx, courseID)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

// serve runs the maintenance jobs until ctx is cancelled.
func (a *application) serve(ctx context.Context) error {
	jc := a.cfg.Engine.Jobs
	sched := scheduler.New(scheduler.Config{Logger: a.log, Location: a.cfg.Engine.Location})

	if a.ranking != nil && len(jc.RankingOrganizations) > 0 {
		job := jobs.NewRebuildRankingJob(a.repos.Students, a.ranking, jc.RankingOrganizations, a.cfg.Engine.LeaderboardSize, a.log)
		if err := sched.Register(job, scheduler.Every(jc.RankingInterval)); err != nil {
			return err
		}
		// Start from a consistent ranking
		if _, err := sched.RunNow(ctx, job.Name()); err != nil {
			a.log.Warn("initial ranking rebuild failed", logger.Err(err))
		}
	} else {
		a.log.Info("ranking rebuild disabled", logger.Bool("redis", a.ranking != nil))
	}

	if len(jc.DegreeCourses) > 0 {
		daily, err := scheduler.ParseDaily(jc.DegreeBackfillAt)
		if err != nil {
			return err
		}
		job := jobs.NewBackfillDegreesJob(a.repos.Enrollments, a.engine, jc.DegreeCourses, a.log)
		if err := sched.Register(job, daily); err != nil {
			return err
		}
	}

	// Cached profiles carry levels computed from the previous process's tables
	if a.stats != nil {
		if err := a.stats.InvalidateAll(ctx); err != nil {
			a.log.Warn("failed to clear cached profiles", logger.Err(err))
		}
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	a.log.Info("serving", logger.Int("jobs", len(sched.Jobs())))

	<-ctx.Done()
	shutdown := make(chan error, 1)
	go func() { shutdown <- sched.Stop() }()
	select {
	case err := <-shutdown:
		return err
	case <-time.After(a.cfg.App.ShutdownTimeout):
		return errors.New("scheduler did not stop before the shutdown timeout")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTPUT
// ══════════════════════════════════════════════════════════════════════════════

func printMigrations(ctx context.Context, m *postgres.Migrator) error {
	status, err := m.Status(ctx)
	if err != nil {
		return err
	}
	for _, s := range status {
		state := "pending"
		if s.IsApplied {
			state = "applied " + s.AppliedAt.Format(time.RFC3339)
		}
		fmt.Printf("%03d  %-28s %s\n", s.Version, s.Name, state)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
