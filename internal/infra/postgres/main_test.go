package postgres

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

const testDimension = 8

// testDB はDockerが使えない環境では nil のまま
var testDB *DB

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() || os.Getenv("STUDY_RAG_SKIP_DOCKER") != "" {
		os.Exit(m.Run())
	}

	pool, err := dockertest.NewPool("")
	if err == nil {
		err = pool.Client.Ping()
	}
	if err != nil {
		log.Printf("docker unavailable, skipping postgres integration tests: %v", err)
		os.Exit(m.Run())
	}
	pool.MaxWait = 2 * time.Minute

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "pgvector/pgvector",
		Tag:        "pg16",
		Env: []string{
			"POSTGRES_USER=studyrag",
			"POSTGRES_PASSWORD=secret",
			"POSTGRES_DB=studyrag_test",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Printf("failed to start postgres container: %v", err)
		os.Exit(m.Run())
	}
	_ = resource.Expire(300)

	connString := fmt.Sprintf("postgres://studyrag:secret@%s/studyrag_test?sslmode=disable", resource.GetHostPort("5432/tcp"))
	ctx := context.Background()
	if err := pool.Retry(func() error {
		db, err := Open(ctx, connString)
		if err != nil {
			return err
		}
		testDB = db
		return nil
	}); err != nil {
		log.Printf("postgres did not become ready: %v", err)
		_ = pool.Purge(resource)
		os.Exit(1)
	}

	if err := Migrate(ctx, testDB.Pool, testDimension); err != nil {
		log.Printf("migration failed: %v", err)
		testDB.Close()
		_ = pool.Purge(resource)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	_ = pool.Purge(resource)
	os.Exit(code)
}

func requireDB(t *testing.T) *DB {
	t.Helper()
	if testDB == nil {
		t.Skip("postgres integration tests require docker")
	}
	return testDB
}
