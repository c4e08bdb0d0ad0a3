package export

import (
	"encoding/json"
	"os"
	"time"
)

// SidecarPage holds the indexable metadata of one exported page.
type SidecarPage struct {
	Page     int      `json:"page"`
	Text     string   `json:"text,omitempty"`
	Barcodes []string `json:"barcodes,omitempty"`
}

// Sidecar is the search-index metadata written next to each artifact for
// downstream indexing.
type Sidecar struct {
	Document  string        `json:"document"`
	Batch     string        `json:"batch"`
	Format    string        `json:"format"`
	CreatedAt time.Time     `json:"created_at"`
	Pages     []SidecarPage `json:"pages"`
}

// WriteSidecar serializes the sidecar as JSON at path.
func WriteSidecar(path string, sc Sidecar) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
