package sqlstore

import (
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect captures the few differences between the supported SQL engines.
type Dialect struct {
	// Name doubles as the migrations subdirectory.
	Name       string
	driverName string
	numbered   bool
	// syncIDs moves the id generator past rows inserted with an explicit id.
	// SQLite AUTOINCREMENT does this on its own.
	syncIDs    string
}

var (
	SQLite   = Dialect{Name: "sqlite3", driverName: "sqlite3"}
	Postgres = Dialect{
		Name:       "postgres",
		driverName: "postgres",
		numbered:   true,
		syncIDs:    `SELECT setval(pg_get_serial_sequence('cases', 'id'), (SELECT MAX(id) FROM cases))`,
	}
)

// rebind rewrites '?' placeholders into $1, $2... for engines that need them.
func (d Dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (d Dialect) migrateURL(dsn string) string {
	if d.numbered {
		return dsn
	}
	return "sqlite3://" + dsn
}
