// Package database provides the PostgreSQL connection pool used by the
// price-history writer.
package database
