package integration

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	postgresImage    = "postgres:16-alpine"
	postgresUser     = "clinic"
	postgresPassword = "clinic"
	postgresDB       = "clinic_test"
	readyTimeout     = 30 * time.Second
)

// startPostgresContainer runs a throwaway Postgres through the docker CLI and
// returns its connection string and a cleanup that removes the container.
func startPostgresContainer(ctx context.Context) (string, func(), error) {
	if _, err := exec.LookPath("docker"); err != nil {
		return "", nil, errNoDatabase
	}

	port, err := freePort()
	if err != nil {
		return "", nil, fmt.Errorf("find free port: %w", err)
	}

	out, err := exec.CommandContext(ctx, "docker", "run", "-d", "--rm",
		"--name", fmt.Sprintf("clinic-it-%d", port),
		"-p", fmt.Sprintf("127.0.0.1:%d:5432", port),
		"-e", "POSTGRES_USER="+postgresUser,
		"-e", "POSTGRES_PASSWORD="+postgresPassword,
		"-e", "POSTGRES_DB="+postgresDB,
		postgresImage,
	).CombinedOutput()
	if err != nil {
		return "", nil, fmt.Errorf("docker run %s: %w: %s", postgresImage, err, out)
	}
	id := strings.TrimSpace(string(out))
	cleanup := func() { _ = exec.Command("docker", "rm", "-f", id).Run() }

	connStr := fmt.Sprintf("postgres://%s:%s@127.0.0.1:%d/%s?sslmode=disable",
		postgresUser, postgresPassword, port, postgresDB)
	if err := awaitPostgres(ctx, connStr); err != nil {
		cleanup()
		return "", nil, err
	}
	return connStr, cleanup, nil
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// awaitPostgres polls until a connection succeeds and answers a query.
func awaitPostgres(ctx context.Context, connStr string) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastErr error
	for {
		if lastErr = ping(ctx, connStr); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready after %s: %w", readyTimeout, lastErr)
		case <-ticker.C:
		}
	}
}

func ping(ctx context.Context, connStr string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	var one int
	return conn.QueryRow(ctx, "SELECT 1").Scan(&one)
}
