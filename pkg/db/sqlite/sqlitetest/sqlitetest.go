// Package sqlitetest provides an in-memory movie database for tests.
package sqlitetest

import (
	"context"
	"testing"
	"time"

	"github.com/umich-dbgroup/litmus/pkg/db/sqlite"
)

// Fixture statements. movie 5 has a NULL year and actor 4 a NULL name.
var Fixture = []string{
	`CREATE TABLE actor (id INTEGER PRIMARY KEY, name TEXT, birth_year INTEGER)`,
	`CREATE TABLE movie (id INTEGER PRIMARY KEY, title TEXT, year INTEGER, rating REAL)`,
	`CREATE TABLE director (id INTEGER PRIMARY KEY, name TEXT)`,
	`CREATE TABLE casts (aid INTEGER, mid INTEGER, role TEXT)`,
	`CREATE TABLE directs (did INTEGER, mid INTEGER)`,

	`INSERT INTO actor VALUES
		(1, 'Tom Hanks', 1956),
		(2, 'Meg Ryan', 1961),
		(3, 'Clint Eastwood', 1930),
		(4, NULL, 1970)`,
	`INSERT INTO movie VALUES
		(1, 'Sleepless in Seattle', 1993, 6.8),
		(2, 'Forrest Gump', 1994, 8.8),
		(3, 'Unforgiven', 1992, 8.2),
		(4, 'Gran Torino', 2008, 8.1),
		(5, 'Untitled', NULL, 5.0)`,
	`INSERT INTO director VALUES
		(1, 'Nora Ephron'),
		(2, 'Robert Zemeckis'),
		(3, 'Clint Eastwood')`,
	`INSERT INTO casts VALUES
		(1, 1, 'Sam'),
		(2, 1, 'Annie'),
		(1, 2, 'Forrest'),
		(3, 3, 'Will'),
		(3, 4, 'Walt'),
		(4, 5, 'Extra')`,
	`INSERT INTO directs VALUES
		(1, 1),
		(2, 2),
		(3, 3),
		(3, 4)`,
}

// Open returns a seeded in-memory database closed at the end of the test.
func Open(t testing.TB) *sqlite.Database {
	t.Helper()
	return OpenWithTimeout(t, 5*time.Second)
}

func OpenWithTimeout(t testing.TB, timeout time.Duration) *sqlite.Database {
	t.Helper()
	ctx := context.Background()

	d, err := sqlite.Open(ctx, sqlite.OpenParams{Path: ":memory:", StatementTimeout: timeout})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	for _, stmt := range Fixture {
		if err := d.Exec(ctx, stmt); err != nil {
			t.Fatalf("failed to seed fixture: %v", err)
		}
	}
	return d
}
