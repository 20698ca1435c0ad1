// Package manifest reads the records of a run: a JSON manifest or a single URL.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/gaurav-prasanna/editalpipe/core"
)

// ErrNoRecords is returned for a manifest without the licitacoes key.
var ErrNoRecords = errors.New(`manifest has no "licitacoes" list`)

// Manifest is the batch input file.
type Manifest struct {
	Licitacoes []core.Record `json:"licitacoes"`
}

// Load reads the manifest at path. Record order is preserved; records
// are returned as read, including ones with a missing link, so the
// orchestrator can report them instead of dropping them.
func Load(path string) ([]core.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes manifest JSON.
func Parse(data []byte) ([]core.Record, error) {
	var raw struct {
		Licitacoes *[]core.Record `json:"licitacoes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if raw.Licitacoes == nil {
		return nil, ErrNoRecords
	}
	return *raw.Licitacoes, nil
}

// FromURL wraps a single link as a one-record batch.
func FromURL(link string) []core.Record {
	return []core.Record{{Link: link}}
}
