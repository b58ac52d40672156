// Package adapters lets the PostgreSQL engine run on pgx pools, database/sql or sqlx
// behind one DBAdapter interface. Only the pgx adapter knows about read replicas.
package adapters
