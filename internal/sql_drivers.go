package internal

import (
	// Blank imports register the database/sql drivers used by the
	// watermill-sql publisher and the ledgerqueue job-table driver.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)
