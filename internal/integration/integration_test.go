package integration

import (
	"context"
	"database/sql"
	"encoding/json"
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

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
	pgstore "livequiz-service/internal/infra/postgres"
	pgmigrations "livequiz-service/internal/infra/postgres/migrations"
	infraredis "livequiz-service/internal/infra/redis"
)

func TestRoomLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	quizzes := infraredis.NewQuizRepository(redisClient, pgstore.NewQuizLoader(pool), 5*time.Minute)
	registry := app.NewRegistry(
		app.RegistryConfig{DrainTimeout: 100 * time.Millisecond, GraceTTL: time.Minute},
		quizzes,
		pgstore.NewResultStore(pool),
		memory.NewStaticAuthVerifier(map[string]string{"tok": "host-1"}),
		infraredis.NewCodeReservations(redisClient),
		app.NewRateLimiter(1000, 1000, 1000),
		&app.Metrics{},
	)
	defer registry.Shutdown()

	ctrl, hostID, err := registry.CreateRoom(ctx, "quiz-1", "tok", "127.0.0.1")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	code := ctrl.Code()

	// Quiz content was pulled through the Redis cache on the way in.
	if n, err := redisClient.Exists(ctx, "quiz:quiz-1:content").Result(); err != nil || n == 0 {
		t.Fatalf("expected quiz cached in redis, n=%d err=%v", n, err)
	}

	_, host, err := registry.JoinRoom(ctx, code, app.AttachRequest{
		ParticipantID: hostID, DisplayName: "Host", Role: domain.RoleHost, Addr: "127.0.0.1",
	})
	if err != nil {
		t.Fatalf("host join: %v", err)
	}
	_, player, err := registry.JoinRoom(ctx, code, app.AttachRequest{
		ParticipantID: "alice", DisplayName: "Alice", Role: domain.RolePlayer, Addr: "127.0.0.1",
	})
	if err != nil {
		t.Fatalf("player join: %v", err)
	}

	ctrl.Start(host.ID())
	waitForStatus(t, ctrl, domain.StatusQuestionActive)

	// The only player answers correctly, which locks the question early.
	ctrl.SubmitAnswer(player.ID(), 1)
	waitForStatus(t, ctrl, domain.StatusQuestionLocked)

	ctrl.Next(host.ID())
	waitForStatus(t, ctrl, domain.StatusFinished)

	// Results land in Postgres off the room's command loop.
	var score int
	deadline := time.Now().Add(5 * time.Second)
	for {
		err = pool.QueryRow(ctx,
			`SELECT score FROM session_results WHERE room_code=$1 AND participant_id=$2`,
			code, "alice").Scan(&score)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("read persisted result: %v", err)
	}
	if score < 10 {
		t.Fatalf("expected positive mark plus speed bonus, got %d", score)
	}

	// After the drain window the code is reserved and the room is gone.
	deadline = time.Now().Add(5 * time.Second)
	for {
		if _, ok := registry.Lookup(code); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("room %s never left the registry", code)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if n, err := redisClient.Exists(ctx, "room:code:"+code).Result(); err != nil || n == 0 {
		t.Fatalf("expected room code reserved after teardown, n=%d err=%v", n, err)
	}
}

func waitForStatus(t *testing.T, ctrl *app.Controller, want domain.RoomStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.Snapshot().Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("room never reached %s (at %s)", want, ctrl.Snapshot().Status)
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
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

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3", Correct: false},
					{ID: "o2", Text: "4", Correct: true},
					{ID: "o3", Text: "5", Correct: false},
				},
				PositiveMark: 10,
				NegativeMark: 5,
				TimeLimitSec: 30,
			},
		},
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
