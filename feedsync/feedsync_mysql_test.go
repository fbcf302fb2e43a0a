package feedsync_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/pharmfeed_backend/config"
	"bitbucket.org/mmdatafocus/pharmfeed_backend/feedsync"
	"bitbucket.org/mmdatafocus/pharmfeed_backend/models"
)

func TestFeedSyncEndToEndMySQL(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "pharmfeed_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	// Two feed snapshots; the second drops the Ibuprofen pair and reprices
	// Aspirin. Prices arrive as numeric strings, the common feed quirk.
	feeds := []string{
		`{"Products": [
			{"Product": {"Name": "Aspirin"}, "Location": {"Address": "1 Main St"}, "Price": "10"},
			{"Product": {"Name": "Ibuprofen"}, "Location": {"Address": "2 High St"}, "Price": 12},
			{"Product": {"Name": "Aspirin"}, "Location": {"Address": "1 Main St"}, "Price": "99"}
		]}`,
		`{"Products": [
			{"Product": {"Name": "Aspirin"}, "Location": {"Address": "1 Main St"}, "Price": 15}
		]}`,
	}
	var serveIdx int
	feedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feeds[serveIdx]))
	}))
	t.Cleanup(feedServer.Close)

	// First run: entities plus two associations; the in-batch duplicate keeps
	// its first price.
	run, err := feedsync.CreateRun(ctx, db, models.SyncTriggeredManual, feedServer.URL)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := feedsync.RunFeedSync(ctx, run.ID); err != nil {
		t.Fatalf("RunFeedSync(first): %v", err)
	}

	var finished models.FeedSyncRun
	if err := db.Where("id = ?", run.ID).Take(&finished).Error; err != nil {
		t.Fatalf("reload run: %v", err)
	}
	if finished.Status != models.SyncRunStatusSuccess {
		t.Fatalf("run status = %s (%s); want %s", finished.Status, finished.Message, models.SyncRunStatusSuccess)
	}
	if finished.RecordsSeen != 3 || finished.RecordsApplied != 2 {
		t.Fatalf("run counts seen=%d applied=%d; want 3/2", finished.RecordsSeen, finished.RecordsApplied)
	}

	queries := models.NewQueryService(db)
	price, err := queries.PriceAt(ctx, "aspirin", "1 Main St")
	if err != nil {
		t.Fatalf("PriceAt: %v", err)
	}
	if price == nil || *price != 10 {
		t.Fatalf("price = %v; want 10", price)
	}

	// Second run: full replace against the live MySQL schema and its unique
	// indexes.
	serveIdx = 1
	run2, err := feedsync.CreateRun(ctx, db, models.SyncTriggeredSystem, feedServer.URL)
	if err != nil {
		t.Fatalf("CreateRun(second): %v", err)
	}
	if err := feedsync.RunFeedSync(ctx, run2.ID); err != nil {
		t.Fatalf("RunFeedSync(second): %v", err)
	}

	var links int64
	if err := db.Model(&models.LocationProduct{}).Count(&links).Error; err != nil {
		t.Fatalf("count associations: %v", err)
	}
	if links != 1 {
		t.Fatalf("associations = %d; want 1 after full replace", links)
	}
	price, err = queries.PriceAt(ctx, "Aspirin", "1 Main St")
	if err != nil {
		t.Fatalf("PriceAt(after replace): %v", err)
	}
	if price == nil || *price != 15 {
		t.Fatalf("price = %v; want 15", price)
	}
	if price, _ := queries.PriceAt(ctx, "Ibuprofen", "2 High St"); price != nil {
		t.Fatalf("stale association survived the replace: price = %d", *price)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("pharmfeed-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("pharmfeed-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=pharmfeed_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
