package catalog

import (
	// Catalog databases: postgres for shared catalogs, sqlite for
	// local ones.
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)
