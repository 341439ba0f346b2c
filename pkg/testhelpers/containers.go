package testhelpers

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ekaya-inc/nodepool/pkg/adapters/datasource"
)

// PostgresTestImage is the PostgreSQL image integration tests run against.
const PostgresTestImage = "postgres:16-alpine"

const (
	testBaseName = "test_data"
	testUser     = "nodepool"
	testPassword = "test_password"
)

// TestDB holds a shared test database container and the address of its node.
type TestDB struct {
	Container   testcontainers.Container
	Host        string // IPv4, usable as a data source host
	Port        int
	BaseName    string
	Credentials datasource.Credentials
	ConnStr     string
}

// Options returns data source options pointing at the container.
func (db *TestDB) Options(poolSize int) datasource.Options {
	return datasource.Options{
		Host:        db.Host,
		Port:        db.Port,
		BaseName:    db.BaseName,
		Credentials: db.Credentials,
		Pool:        datasource.PoolConfig{Size: poolSize},
		SSLMode:     "disable",
	}
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresTestImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       testBaseName,
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
		},
		// The entrypoint restarts the server once after init; wait for the second start.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	ipv4, err := resolveIPv4(host)
	if err != nil {
		return nil, err
	}

	mapped, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}
	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		return nil, fmt.Errorf("failed to parse container port %q: %w", mapped.Port(), err)
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		testUser, testPassword, ipv4, port, testBaseName)

	// Verify connection with retry
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()
	for i := 0; i < 10; i++ {
		if err = pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("test database not reachable: %w", err)
	}

	return &TestDB{
		Container:   container,
		Host:        ipv4,
		Port:        port,
		BaseName:    testBaseName,
		Credentials: datasource.Credentials{Username: testUser, Password: testPassword},
		ConnStr:     connStr,
	}, nil
}

// resolveIPv4 turns the docker host name into a dotted quad, which is the only
// host form a connection target accepts.
func resolveIPv4(host string) (string, error) {
	if host == "localhost" {
		return "127.0.0.1", nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
		return ip.To4().String(), nil
	}
	addr, err := net.ResolveIPAddr("ip4", host)
	if err != nil {
		return "", fmt.Errorf("failed to resolve container host %q: %w", host, err)
	}
	return addr.IP.String(), nil
}
