package badger

import (
	"github.com/poiesic/embedsearch/core"
)

// Key prefixes. Every record lives under recordPrefix; records still
// lacking an embedding additionally have an empty marker under pendingPrefix.
const (
	recordPrefix  = "rec:"
	pendingPrefix = "pend:"
)

func makeRecordKey(id core.RecordID) []byte {
	return []byte(recordPrefix + id.String())
}

func makePendingKey(id core.RecordID) []byte {
	return []byte(pendingPrefix + id.String())
}

// idFromKey strips prefix from key.
func idFromKey(key []byte, prefix string) core.RecordID {
	return core.RecordID(key[len(prefix):])
}
