package store

import (
	"fmt"
	"time"

	json "github.com/json-iterator/go"

	"github.com/roach88/autovnc/internal/ir"
)

// marshalSteps converts a step list to JSON TEXT for storage. A nil list is
// stored as [].
func marshalSteps(list []ir.Step) (string, error) {
	if list == nil {
		list = []ir.Step{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("marshal steps: %w", err)
	}
	return string(data), nil
}

// unmarshalSteps parses stored JSON TEXT. Returns an empty (non-nil) list
// for "" and "[]".
func unmarshalSteps(data string) ([]ir.Step, error) {
	if data == "" || data == "[]" {
		return []ir.Step{}, nil
	}
	var list []ir.Step
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	return list, nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
