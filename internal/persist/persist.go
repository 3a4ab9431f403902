// Package persist is the out-of-scope relational-persistence collaborator
// (spec.md §1/§6: the relational schema is "specified only at its
// interface"). It names the one operation the aggregator would call if
// DB_HOST/DB_NAME/DB_USER/DB_PASSWORD are set, with no concrete SQL
// implementation.
package persist

import (
	"context"

	"github.com/ubuntu/device-scanner/internal/crosshostdag"
)

// Persister writes a record set to whatever relational schema a
// deployment configures (db.rs/schema.rs in the original implementation).
type Persister interface {
	Persist(ctx context.Context, records []crosshostdag.Record) error
}
