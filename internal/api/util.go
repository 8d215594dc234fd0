package api

import (
	"time"

	"github.com/bytedance/sonic"
)

func unixMilliNow() int64 {
	return time.Now().UnixMilli()
}

// mustJSON serializes v for an audit row; marshal failure on an
// already-validated struct would indicate a programmer error, so it
// degrades to an empty object rather than propagating.
func mustJSON(v any) string {
	data, err := sonic.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
