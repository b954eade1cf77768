// internal/models/cohort.go
package models

import "time"

// CohortDraft is the accumulated structured profile the flow produces. The
// core enforces no field-level invariants beyond non-destructive merging.
type CohortDraft struct {
	Name           string            `json:"name,omitempty"`
	Demographics   map[string]string `json:"demographics,omitempty"`
	Psychographics map[string]string `json:"psychographics,omitempty"`
	PainPoints     []string          `json:"pain_points,omitempty"`
	Goals          []string          `json:"goals,omitempty"`
	Channels       []string          `json:"channels,omitempty"`
	Positioning    string            `json:"positioning,omitempty"`
}

// Clone deep-copies the draft.
func (d CohortDraft) Clone() CohortDraft {
	out := d
	if d.Demographics != nil {
		out.Demographics = make(map[string]string, len(d.Demographics))
		for k, v := range d.Demographics {
			out.Demographics[k] = v
		}
	}
	if d.Psychographics != nil {
		out.Psychographics = make(map[string]string, len(d.Psychographics))
		for k, v := range d.Psychographics {
			out.Psychographics[k] = v
		}
	}
	out.PainPoints = append([]string(nil), d.PainPoints...)
	out.Goals = append([]string(nil), d.Goals...)
	out.Channels = append([]string(nil), d.Channels...)
	return out
}

// Merge folds src into d without erasing sibling fields: empty incoming
// scalars are ignored, maps are merged key-wise, and list entries are
// appended with duplicates skipped.
func (d *CohortDraft) Merge(src CohortDraft) {
	if src.Name != "" {
		d.Name = src.Name
	}
	if src.Positioning != "" {
		d.Positioning = src.Positioning
	}
	if len(src.Demographics) > 0 {
		if d.Demographics == nil {
			d.Demographics = make(map[string]string, len(src.Demographics))
		}
		for k, v := range src.Demographics {
			d.Demographics[k] = v
		}
	}
	if len(src.Psychographics) > 0 {
		if d.Psychographics == nil {
			d.Psychographics = make(map[string]string, len(src.Psychographics))
		}
		for k, v := range src.Psychographics {
			d.Psychographics[k] = v
		}
	}
	d.PainPoints = appendUnique(d.PainPoints, src.PainPoints)
	d.Goals = appendUnique(d.Goals, src.Goals)
	d.Channels = appendUnique(d.Channels, src.Channels)
}

func appendUnique(dst, src []string) []string {
	for _, s := range src {
		seen := false
		for _, existing := range dst {
			if existing == s {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, s)
		}
	}
	return dst
}

// CohortRecord is the finalized payload handed to the persistence gateway.
type CohortRecord struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"session_id"`
	Draft     CohortDraft            `json:"draft"`
	Answers   map[string]AnswerValue `json:"answers"`
	Location  *GeocodeResult         `json:"location,omitempty"`
	Insights  []string               `json:"insights,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
