package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/LopezGroup-ICIQ/cattools"
)

var (
	testPostgresContainer testcontainers.Container
	testPostgresDSN       string
	skipPostgresTests     bool
)

func setupPostgres() {
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "cattools",
				"POSTGRES_PASSWORD": "cattools",
				"POSTGRES_DB":       "cattools",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		}
		testPostgresContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()
	if containerErr != nil {
		fmt.Printf("Docker not available, postgres tests will be skipped: %v\n", containerErr)
		skipPostgresTests = true
		return
	}

	host, err := testPostgresContainer.Host(ctx)
	if err != nil {
		fmt.Printf("Failed to get container host: %v\n", err)
		skipPostgresTests = true
		return
	}
	port, err := testPostgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Printf("Failed to get container port: %v\n", err)
		skipPostgresTests = true
		return
	}
	testPostgresDSN = fmt.Sprintf("postgres://cattools:cattools@%s:%s/cattools?sslmode=disable", host, port.Port())
}

func TestMain(m *testing.M) {
	if os.Getenv("CATTOOLS_SKIP_DOCKER") == "" {
		setupPostgres()
	} else {
		skipPostgresTests = true
	}
	code := m.Run()
	if testPostgresContainer != nil {
		_ = testPostgresContainer.Terminate(context.Background())
	}
	os.Exit(code)
}

func openSQLite(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), Config{
		Dialect: SQLite,
		DSN:     filepath.Join(t.TempDir(), "records.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func openPostgres(t *testing.T) *Store {
	t.Helper()
	if skipPostgresTests {
		t.Skip("postgres not available")
	}
	ctx := context.Background()
	store, err := Open(ctx, Config{Dialect: Postgres, DSN: testPostgresDSN, PingRetries: 5})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = store.db.ExecContext(ctx, `DROP TABLE IF EXISTS records, collections, collection_members`)
		_ = store.Close()
	})
	return store
}

func testRecord(label string, exitStatus int, energy float64) *cattools.ExecutionRecord {
	structure := &cattools.Structure{
		Symbols:   []string{"Ce", "O"},
		Positions: [][3]float64{{0, 0, 0}, {1.2, 0, 0}},
		Cell:      &[3][3]float64{{5, 0, 0}, {0, 5, 0}, {0, 0, 5}},
		PBC:       [3]bool{true, true, true},
	}
	return &cattools.ExecutionRecord{
		Label:       label,
		NodeType:    "workchain",
		EngineLabel: cattools.EngineRelaxB,
		ExitStatus:  exitStatus,
		Inputs: map[string]cattools.Blob{
			cattools.InputStructure: cattools.NewStructureData("", structure),
		},
		Outputs: map[string]cattools.Blob{
			cattools.OutputMisc: cattools.NewDictBlob("", map[string]any{
				"total_energies": map[string]any{"energy_extrapolated_electronic": energy},
			}),
			"output_structure": cattools.NewStructureData("", structure),
		},
	}
}

func TestStore(t *testing.T) {
	stores := map[string]func(*testing.T) *Store{
		"sqlite":   openSQLite,
		"postgres": openPostgres,
	}
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			t.Run("put and load", func(t *testing.T) {
				store := open(t)
				ctx := context.Background()

				record := testRecord("ceo2", 0, -512.25)
				require.NoError(t, store.Put(ctx, record))
				require.NotEmpty(t, record.Key)
				require.Equal(t, int64(1), record.Ordinal)

				loaded, err := store.Load(ctx, record.Key)
				require.NoError(t, err)
				require.Equal(t, record.Key, loaded.Key)
				require.Equal(t, "ceo2", loaded.Label)
				require.Equal(t, cattools.EngineRelaxB, loaded.EngineLabel)

				blob, ok := loaded.Input(cattools.InputStructure)
				require.True(t, ok)
				require.Equal(t, record.Inputs[cattools.InputStructure].StableKey(), blob.StableKey())

				_, err = store.Load(ctx, "rec_missing")
				require.ErrorIs(t, err, cattools.ErrNotFound)
			})

			t.Run("put replaces", func(t *testing.T) {
				store := open(t)
				ctx := context.Background()

				record := testRecord("first", 0, -1.5)
				require.NoError(t, store.Put(ctx, record))
				record.Label = "second"
				require.NoError(t, store.Put(ctx, record))

				loaded, err := store.Load(ctx, record.Key)
				require.NoError(t, err)
				require.Equal(t, "second", loaded.Label)
				require.Equal(t, record.Ordinal, loaded.Ordinal)
			})

			t.Run("query", func(t *testing.T) {
				store := open(t)
				ctx := context.Background()

				ok1 := testRecord("a", 0, -10)
				failed := testRecord("b", 405, -11)
				ok2 := testRecord("c", 0, -12)
				calc := testRecord("d", 0, -13)
				calc.NodeType = "calcjob"
				for _, r := range []*cattools.ExecutionRecord{ok1, failed, ok2, calc} {
					require.NoError(t, store.Put(ctx, r))
				}

				records, err := store.Query(ctx, cattools.Filter{NodeType: "workchain"}.WithExitStatus(0))
				require.NoError(t, err)
				require.Len(t, records, 2)
				require.Equal(t, ok1.Key, records[0].Key)
				require.Equal(t, ok2.Key, records[1].Key)

				all, err := store.Query(ctx, cattools.Filter{})
				require.NoError(t, err)
				require.Len(t, all, 4)
			})

			t.Run("collections", func(t *testing.T) {
				store := open(t)
				ctx := context.Background()

				first := testRecord("first", 0, -1)
				second := testRecord("second", 0, -2)
				require.NoError(t, store.Put(ctx, first))
				require.NoError(t, store.Put(ctx, second))

				require.NoError(t, store.AddToCollection(ctx, "ceria", second.Key))
				require.NoError(t, store.AddToCollection(ctx, "ceria", first.Key))

				members, err := store.Members(ctx, "ceria")
				require.NoError(t, err)
				require.Equal(t, []cattools.Member{
					{Key: second.Key, Ordinal: second.Ordinal},
					{Key: first.Key, Ordinal: first.Ordinal},
				}, members)

				err = store.AddToCollection(ctx, "ceria", "rec_missing")
				require.True(t, errors.Is(err, cattools.ErrNotFound))

				_, err = store.Members(ctx, "unknown")
				require.ErrorIs(t, err, cattools.ErrNotFound)

				require.NoError(t, store.AddToCollection(ctx, "empty"))
				members, err = store.Members(ctx, "empty")
				require.NoError(t, err)
				require.Empty(t, members)
			})

			t.Run("extractor", func(t *testing.T) {
				store := open(t)
				ctx := context.Background()

				record := testRecord("ceo2", 0, -512.25)
				require.NoError(t, store.Put(ctx, record))

				extractor, err := cattools.NewExtractor(cattools.ExtractorOptions{Store: store})
				require.NoError(t, err)
				require.Equal(t, -512.25, extractor.FinalEnergy(ctx, record.Key))

				keys, err := extractor.MatchEnergy(ctx, cattools.MatchOptions{NodeType: "workchain", Target: -512})
				require.NoError(t, err)
				require.Equal(t, []string{record.Key}, keys)
			})
		})
	}
}

func TestConfigValidate(t *testing.T) {
	require.Error(t, Config{Dialect: "mysql", DSN: "x"}.Validate())
	require.Error(t, Config{Dialect: SQLite}.Validate())
	require.Error(t, Config{Dialect: SQLite, DSN: "x", PingRetries: -1}.Validate())
	require.NoError(t, Config{Dialect: Postgres, DSN: "postgres://localhost/db"}.Validate())
}

func TestRebind(t *testing.T) {
	pg := New(nil, Postgres)
	require.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := New(nil, SQLite)
	require.Equal(t, "a = ? AND b = ?", lite.rebind("a = ? AND b = ?"))
}
