// Package property authenticates the (uuid, secret) pair every ingestion
// request carries, against the registered property table.
package property

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CheckAuth reports whether a property exists with the given uuid and
// secret. Secret comparison is plaintext equality against the stored value
// — hashing is a documented future refinement, not the current contract
// (§9, Open Questions).
func CheckAuth(ctx context.Context, db *sql.DB, id, secret uuid.UUID) (bool, error) {
	var found uuid.UUID
	err := db.QueryRowContext(ctx,
		`SELECT uuid FROM property WHERE uuid = $1 AND secret = $2`,
		id, secret,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("property: check auth: %w", err)
	}
	return true, nil
}
