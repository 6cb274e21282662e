package function

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := sonic.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid debugExec parameter: %w", err)
	}
	return nil
}
