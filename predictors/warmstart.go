package predictors

import (
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/globus-compute/central-scheduler/core"
)

// LoadImportModel reads a previously persisted import-time model from a
// SQLite file, returning an empty model (not an error) if path is empty or
// the file does not yet exist.
func LoadImportModel(path string) (map[string]map[core.EndpointID]float64, error) {
	model := make(map[string]map[core.EndpointID]float64)
	if path == "" {
		return model, nil
	}
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		return nil, fmt.Errorf("could not open import model file %s: %w", path, err)
	}
	defer conn.Close()

	if err := sqlitex.Execute(conn,
		`CREATE TABLE IF NOT EXISTS import_times (package TEXT NOT NULL, endpoint TEXT NOT NULL, seconds REAL NOT NULL, PRIMARY KEY (package, endpoint))`,
		nil); err != nil {
		return nil, fmt.Errorf("could not initialize import model schema: %w", err)
	}

	err = sqlitex.Execute(conn, `SELECT package, endpoint, seconds FROM import_times`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			pkg := stmt.ColumnText(0)
			endpoint := core.EndpointID(stmt.ColumnText(1))
			seconds := stmt.ColumnFloat(2)
			byEndpoint, ok := model[pkg]
			if !ok {
				byEndpoint = make(map[core.EndpointID]float64)
				model[pkg] = byEndpoint
			}
			byEndpoint[endpoint] = seconds
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not read import model: %w", err)
	}
	return model, nil
}

// SaveImportModel persists an import-time model to a SQLite file. A blank
// path is a no-op, allowing warm-start persistence to be disabled entirely.
func SaveImportModel(path string, model map[string]map[core.EndpointID]float64) error {
	if path == "" {
		return nil
	}
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		return fmt.Errorf("could not open import model file %s: %w", path, err)
	}
	defer conn.Close()

	if err := sqlitex.Execute(conn,
		`CREATE TABLE IF NOT EXISTS import_times (package TEXT NOT NULL, endpoint TEXT NOT NULL, seconds REAL NOT NULL, PRIMARY KEY (package, endpoint))`,
		nil); err != nil {
		return fmt.Errorf("could not initialize import model schema: %w", err)
	}

	for pkg, byEndpoint := range model {
		for endpoint, seconds := range byEndpoint {
			err := sqlitex.Execute(conn,
				`INSERT INTO import_times (package, endpoint, seconds) VALUES (?, ?, ?)
				 ON CONFLICT (package, endpoint) DO UPDATE SET seconds = excluded.seconds`,
				&sqlitex.ExecOptions{Args: []any{pkg, string(endpoint), seconds}})
			if err != nil {
				return fmt.Errorf("could not write import model row (%s, %s): %w", pkg, endpoint, err)
			}
		}
	}
	return nil
}

// LoadTransferModel reads a previously persisted per-endpoint throughput
// model from a SQLite file, returning an empty model (not an error) if
// path is empty or the file does not yet exist.
func LoadTransferModel(path string) (map[core.EndpointID]float64, error) {
	model := make(map[core.EndpointID]float64)
	if path == "" {
		return model, nil
	}
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		return nil, fmt.Errorf("could not open transfer model file %s: %w", path, err)
	}
	defer conn.Close()

	if err := sqlitex.Execute(conn,
		`CREATE TABLE IF NOT EXISTS transfer_throughput (endpoint TEXT PRIMARY KEY, bytes_per_second REAL NOT NULL)`,
		nil); err != nil {
		return nil, fmt.Errorf("could not initialize transfer model schema: %w", err)
	}

	err = sqlitex.Execute(conn, `SELECT endpoint, bytes_per_second FROM transfer_throughput`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			endpoint := core.EndpointID(stmt.ColumnText(0))
			model[endpoint] = stmt.ColumnFloat(1)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not read transfer model: %w", err)
	}
	return model, nil
}

// SaveTransferModel persists a per-endpoint throughput model to a SQLite
// file. A blank path is a no-op.
func SaveTransferModel(path string, model map[core.EndpointID]float64) error {
	if path == "" {
		return nil
	}
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		return fmt.Errorf("could not open transfer model file %s: %w", path, err)
	}
	defer conn.Close()

	if err := sqlitex.Execute(conn,
		`CREATE TABLE IF NOT EXISTS transfer_throughput (endpoint TEXT PRIMARY KEY, bytes_per_second REAL NOT NULL)`,
		nil); err != nil {
		return fmt.Errorf("could not initialize transfer model schema: %w", err)
	}

	for endpoint, bps := range model {
		err := sqlitex.Execute(conn,
			`INSERT INTO transfer_throughput (endpoint, bytes_per_second) VALUES (?, ?)
			 ON CONFLICT (endpoint) DO UPDATE SET bytes_per_second = excluded.bytes_per_second`,
			&sqlitex.ExecOptions{Args: []any{string(endpoint), bps}})
		if err != nil {
			return fmt.Errorf("could not write transfer model row (%s): %w", endpoint, err)
		}
	}
	return nil
}
