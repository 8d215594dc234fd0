package executor

import (
	"encoding/json"
	"time"
)

func unixMilliNow() int64 {
	return time.Now().UnixMilli()
}

func parseJSONInto(raw string, v any) error {
	return json.Unmarshal([]byte(raw), v)
}
