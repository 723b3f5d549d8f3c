package action

import (
	"encoding/json"
	"strings"

	"moderator-server/shared/models"
)

// The wire convention is strict: a reply is exactly one raw JSON array of
// action objects. Earlier protocol revisions wrapped the array in a markdown
// code fence; those replies are rejected as WRONG_SHAPE instead of being
// unwrapped, so the provider learns the current convention.

// ParseSequence parses a provider reply into an ordered action sequence.
// Failure kinds:
//   - WRONG_SHAPE: fenced reply, invalid JSON, or a malformed action object;
//   - NOT_A_SEQUENCE: valid JSON that is not an array (e.g. a single object).
func ParseSequence(reply string) ([]Action, error) {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return nil, models.NewPipelineError(models.PipelineWrongShape, nil, "reply is empty")
	}

	if strings.HasPrefix(trimmed, "```") {
		return nil, models.NewPipelineError(models.PipelineWrongShape, nil,
			"reply is wrapped in a code fence; reply with the raw JSON array only")
	}

	var raw json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, models.NewPipelineError(models.PipelineWrongShape, err, "reply is not valid JSON")
	}

	if trimmed[0] != '[' {
		return nil, models.NewPipelineError(models.PipelineNotASequence, nil,
			"reply must be a JSON array of actions, got a %s", jsonKind(trimmed[0]))
	}

	var batch []Action
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, models.NewPipelineError(models.PipelineWrongShape, err, "reply array contains malformed actions")
	}

	for i, a := range batch {
		if err := a.CheckShape(); err != nil {
			return nil, models.NewPipelineError(models.PipelineWrongShape, err, "action %d is malformed", i)
		}
	}

	return batch, nil
}

func jsonKind(first byte) string {
	switch first {
	case '{':
		return "single object"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "scalar"
	}
}
