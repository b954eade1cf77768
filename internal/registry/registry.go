// internal/registry/registry.go
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"cohort-intake/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrRegistryNotFound = errors.New("REGISTRY_NOT_FOUND")
	ErrRegistryInvalid  = errors.New("REGISTRY_INVALID")
)

// QuestionRegistry is the declarative intake script: the core questions in
// order, plus which one triggers the branch analysis.
type QuestionRegistry struct {
	Version          string            `json:"version"`
	BranchQuestionID string            `json:"branch_question_id"`
	Questions        []models.Question `json:"questions"`
}

// questionSchema validates registry files before they are trusted. A
// malformed registry fails startup rather than producing a half-broken
// wizard.
const questionSchema = `{
	"type": "object",
	"required": ["version", "branch_question_id", "questions"],
	"properties": {
		"version": {"type": "string", "minLength": 1},
		"branch_question_id": {"type": "string", "minLength": 1},
		"questions": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["id", "kind", "prompt"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"section": {"type": "string"},
					"kind": {"enum": ["free_text", "single_select", "composite", "geolocation"]},
					"prompt": {"type": "string", "minLength": 1},
					"placeholder": {"type": "string"},
					"options": {"type": "array", "items": {"type": "string"}},
					"fields": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["id", "label"],
							"properties": {
								"id": {"type": "string", "minLength": 1},
								"label": {"type": "string", "minLength": 1},
								"placeholder": {"type": "string"}
							}
						}
					}
				}
			}
		}
	}
}`

// Load reads and validates a question registry file.
func Load(path string) (*QuestionRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRegistryNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrRegistryInvalid, err)
	}
	return Parse(data)
}

// Parse validates registry bytes against the schema and the cross-field
// rules the schema cannot express.
func Parse(data []byte) (*QuestionRegistry, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(questionSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryInvalid, err)
	}
	if !result.Valid() {
		var issues []string
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrRegistryInvalid, strings.Join(issues, "; "))
	}

	var reg QuestionRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryInvalid, err)
	}

	seen := make(map[string]bool, len(reg.Questions))
	branchFound := false
	for _, q := range reg.Questions {
		if seen[q.ID] {
			return nil, fmt.Errorf("%w: duplicate question id %q", ErrRegistryInvalid, q.ID)
		}
		seen[q.ID] = true
		if q.ID == reg.BranchQuestionID {
			branchFound = true
		}
		if q.Kind == models.InputSingleSelect && len(q.Options) == 0 {
			return nil, fmt.Errorf("%w: question %q is single_select with no options", ErrRegistryInvalid, q.ID)
		}
		if q.Kind == models.InputComposite && len(q.Fields) == 0 {
			return nil, fmt.Errorf("%w: question %q is composite with no fields", ErrRegistryInvalid, q.ID)
		}
	}
	if !branchFound {
		return nil, fmt.Errorf("%w: branch question %q not in question list", ErrRegistryInvalid, reg.BranchQuestionID)
	}

	return &reg, nil
}
