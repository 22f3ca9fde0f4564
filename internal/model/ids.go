package model

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// idNamespace scopes every derived identifier in this application.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/Veraticus/billfinder"))

// CandidateID derives a stable candidate ID from its provenance, so the same
// email or transaction series always yields the same candidate.
func CandidateID(sourceType SourceType, refs []SourceRef) string {
	keys := make([]string, 0, len(refs))
	for _, r := range refs {
		keys = append(keys, r.Key())
	}
	sort.Strings(keys)
	return uuid.NewSHA1(idNamespace, []byte("candidate|"+string(sourceType)+"|"+strings.Join(keys, ","))).String()
}

// BillID derives a stable bill ID from a canonical key.
func BillID(canonicalKey string) string {
	return uuid.NewSHA1(idNamespace, []byte("bill|"+canonicalKey)).String()
}

// NewRunID returns a random identifier for one discovery run.
func NewRunID() string {
	return uuid.NewString()
}
