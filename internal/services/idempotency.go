package services

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// idempotencyNamespace scopes every key this service derives
var idempotencyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("catalog-sync-service/idempotency"))

// IdempotencyKeys derives stable keys for the writes of one run. Repeating
// the same logical write within a run reuses its key, so a replayed request
// cannot create a duplicate. A different remote version yields a new key.
type IdempotencyKeys struct {
	runID string
}

// NewIdempotencyKeys scopes keys to runID
func NewIdempotencyKeys(runID string) IdempotencyKeys {
	return IdempotencyKeys{runID: runID}
}

// Key returns the key for operation on subject at version
func (k IdempotencyKeys) Key(operation, subject string, version int64) string {
	name := strings.Join([]string{k.runID, operation, subject, strconv.FormatInt(version, 10)}, "|")
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}
