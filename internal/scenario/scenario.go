// Package scenario loads ticket batches from YAML profiles.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/enrich-cli/internal/model"
)

type rawScenario struct {
	TicketID string           `yaml:"ticket_id"`
	Question string           `yaml:"question"`
	RecordID string           `yaml:"record_id"`
	Facts    []map[string]any `yaml:"facts"`
	Fields   map[string]any   `yaml:"enriched_fields"`
}

type rawFile struct {
	Scenarios []rawScenario `yaml:"scenarios"`
}

// Loader reads <Dir>/<profile>.yaml.
type Loader struct {
	Dir string
}

// Path returns the file backing profile.
func (l Loader) Path(profile string) string {
	return filepath.Join(l.Dir, profile+".yaml")
}

// Load returns the tickets of profile. The file is either a list of
// scenarios or a mapping with a scenarios key. Scenarios without an id get
// <profile>-NNN.
func (l Loader) Load(profile string) ([]model.Ticket, error) {
	profile = strings.TrimSpace(profile)
	if profile == "" || strings.ContainsAny(profile, `/\`) || strings.Contains(profile, "..") {
		return nil, eris.Errorf("scenario: invalid profile %q", profile)
	}
	data, err := os.ReadFile(l.Path(profile))
	if err != nil {
		return nil, eris.Wrapf(err, "scenario: read profile %s", profile)
	}
	return Parse(profile, data)
}

// Parse decodes scenario YAML.
func Parse(profile string, data []byte) ([]model.Ticket, error) {
	var list []rawScenario
	if err := yaml.Unmarshal(data, &list); err != nil {
		var file rawFile
		if ferr := yaml.Unmarshal(data, &file); ferr != nil {
			return nil, eris.Wrapf(err, "scenario: parse profile %s", profile)
		}
		list = file.Scenarios
	}

	tickets := make([]model.Ticket, 0, len(list))
	for i, raw := range list {
		t := model.Ticket{
			ID:       strings.TrimSpace(raw.TicketID),
			Question: strings.TrimSpace(raw.Question),
			RecordID: strings.TrimSpace(raw.RecordID),
			Fields:   raw.Fields,
		}
		if t.ID == "" {
			t.ID = fmt.Sprintf("%s-%03d", profile, i+1)
		}
		if t.Question == "" {
			return nil, eris.Errorf("scenario: %s: question is required", t.ID)
		}
		if t.RecordID == "" {
			return nil, eris.Errorf("scenario: %s: record_id is required", t.ID)
		}
		for _, obj := range raw.Facts {
			if f, ok := model.ParseFact(obj, ""); ok {
				t.Facts = append(t.Facts, f)
			}
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}
