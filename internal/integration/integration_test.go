package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"mathquest-service/internal/app"
	"mathquest-service/internal/domain"
	pginfra "mathquest-service/internal/infra/postgres"
	pgmigrations "mathquest-service/internal/infra/postgres/migrations"
	infraredis "mathquest-service/internal/infra/redis"
)

const demoUserID = int64(1)

func TestSubmitLessonEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	if err := pginfra.Seed(ctx, pool, demoUserID); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Seeding twice must be a no-op.
	if err := pginfra.Seed(ctx, pool, demoUserID); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	content := infraredis.NewContentRepository(redisClient, pginfra.NewContentLoader(pool), 5*time.Minute)
	ledger := pginfra.NewLedger(pool)
	service := app.NewService(content, ledger)

	arithmetic := findLesson(t, ctx, content, "Basic Arithmetic")
	division := findLesson(t, ctx, content, "Division Basics")

	addition := findProblem(t, arithmetic, "What is 2 + 3?")
	subtraction := findProblem(t, arithmetic, "What is 7 - 2?")
	five := findOption(t, addition, "5")
	four := findOption(t, subtraction, "4") // wrong on purpose

	// First attempt: one correct, one wrong.
	outcome, err := service.Submit(ctx, app.SubmitRequest{
		UserID:    demoUserID,
		LessonID:  arithmetic.ID,
		AttemptID: "11111111-1111-1111-1111-111111111111",
		Answers: []domain.AnswerItem{
			{ProblemID: addition.ID, OptionID: &five},
			{ProblemID: subtraction.ID, OptionID: &four},
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.CorrectCount != 1 || outcome.EarnedXP != 10 || outcome.Duplicate {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if outcome.LessonProgress != 0.333 {
		t.Fatalf("expected progress 0.333 of three problems, got %v", outcome.LessonProgress)
	}

	// Replaying the same attempt id changes nothing.
	replay, err := service.Submit(ctx, app.SubmitRequest{
		UserID:    demoUserID,
		LessonID:  arithmetic.ID,
		AttemptID: "11111111-1111-1111-1111-111111111111",
		Answers: []domain.AnswerItem{
			{ProblemID: addition.ID, OptionID: &five},
			{ProblemID: subtraction.ID, OptionID: &four},
		},
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Duplicate || replay.NewTotalXP != outcome.NewTotalXP {
		t.Fatalf("unexpected replay %+v", replay)
	}

	// Numeric lesson.
	quotient := findProblem(t, division, "What is 10 / 2?")
	numOutcome, err := service.Submit(ctx, app.SubmitRequest{
		UserID:    demoUserID,
		LessonID:  division.ID,
		AttemptID: "22222222-2222-2222-2222-222222222222",
		Answers:   []domain.AnswerItem{{ProblemID: quotient.ID, Value: domain.Number(5)}},
	})
	if err != nil {
		t.Fatalf("numeric submit: %v", err)
	}
	if numOutcome.CorrectCount != 1 || numOutcome.NewTotalXP != 20 {
		t.Fatalf("unexpected numeric outcome %+v", numOutcome)
	}

	// A problem from another lesson aborts with no partial effects.
	_, err = service.Submit(ctx, app.SubmitRequest{
		UserID:    demoUserID,
		LessonID:  arithmetic.ID,
		AttemptID: "33333333-3333-3333-3333-333333333333",
		Answers: []domain.AnswerItem{
			{ProblemID: subtraction.ID, OptionID: &four},
			{ProblemID: quotient.ID, Value: domain.Number(5)},
		},
	})
	var invalid domain.InvalidProblemError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidProblemError, got %v", err)
	}
	if _, ok, _ := ledger.FindResult(ctx, "33333333-3333-3333-3333-333333333333"); ok {
		t.Fatalf("aborted attempt must not be stored")
	}

	user, err := ledger.GetUser(ctx, demoUserID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.TotalXP != 20 || user.CurrentStreak != 1 {
		t.Fatalf("unexpected user state %+v", user)
	}
}

func findLesson(t *testing.T, ctx context.Context, content app.ContentRepository, title string) domain.Lesson {
	t.Helper()
	lessons, err := content.ListLessons(ctx)
	if err != nil {
		t.Fatalf("list lessons: %v", err)
	}
	for _, lesson := range lessons {
		if lesson.Title == title {
			return lesson
		}
	}
	t.Fatalf("lesson %q not seeded", title)
	return domain.Lesson{}
}

func findProblem(t *testing.T, lesson domain.Lesson, question string) domain.Problem {
	t.Helper()
	for _, p := range lesson.Problems {
		if p.Question == question {
			return p
		}
	}
	t.Fatalf("problem %q not found in %q", question, lesson.Title)
	return domain.Problem{}
}

func findOption(t *testing.T, problem domain.Problem, text string) int64 {
	t.Helper()
	for _, opt := range problem.Options {
		if opt.Text == text {
			return opt.ID
		}
	}
	t.Fatalf("option %q not found on problem %d", text, problem.ID)
	return 0
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quest", "POSTGRES_PASSWORD": "questpass", "POSTGRES_DB": "questdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quest:questpass@%s:%s/questdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
