package tui

import (
	"encoding/json"
	"fmt"
)

func encode(request map[string]any) ([]byte, error) {
	if request["command"] == nil || request["command"] == "" {
		return nil, fmt.Errorf("request has no command")
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return payload, nil
}
