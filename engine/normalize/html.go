package normalize

import (
	"github.com/beaconrag/beacon/engine/source"
)

// decodeHTML extracts visible page text via goquery, reusing the same
// cleaning routine the web crawler uses to follow links.
func decodeHTML(body []byte) (string, error) {
	return source.CleanText(body)
}
