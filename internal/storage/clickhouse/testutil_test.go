package clickhouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testImage    = "clickhouse/clickhouse-server:24.1-alpine"
	testDatabase = "leaders"
	nativePort   = "9000/tcp"
)

// viewsGlob is read from disk: the migrations package imports this one.
const viewsGlob = "../migrations/clickhouse/*.sql"

// setupTestDB starts ClickHouse with the trade views applied. Teardown is
// registered on t.
func setupTestDB(t *testing.T) *Conn {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testImage,
			ExposedPorts: []string{nativePort},
			Env: map[string]string{
				"CLICKHOUSE_DB":       testDatabase,
				"CLICKHOUSE_USER":     "default",
				"CLICKHOUSE_PASSWORD": "",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready for connections").WithStartupTimeout(60*time.Second),
				wait.ForListeningPort(nativePort),
			),
		},
		Started: true,
	})
	require.NoError(t, err, "start clickhouse container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	endpoint, err := container.PortEndpoint(ctx, nativePort, "")
	require.NoError(t, err)

	conn, err := NewConn(ctx, fmt.Sprintf("clickhouse://default:@%s/%s", endpoint, testDatabase))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	applyViews(t, conn)
	return conn
}

func applyViews(t *testing.T, conn *Conn) {
	t.Helper()

	files, err := filepath.Glob(viewsGlob)
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		// test DDL has no literals containing ';'
		for _, stmt := range strings.Split(stripComments(string(data)), ";") {
			if stmt = strings.TrimSpace(stmt); stmt != "" {
				require.NoError(t, conn.Exec(context.Background(), stmt), "apply %s", filepath.Base(f))
			}
		}
	}
}

func stripComments(sql string) string {
	lines := strings.Split(sql, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if !strings.HasPrefix(strings.TrimSpace(l), "--") {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}
