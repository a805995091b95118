package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

// Log output is one JSON object per line on stdout. The ts field is
// stamped here so callers only supply event fields.

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared line logger.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits one structured log line. Entries without a ts get
// the current UTC time.
func LogRequest(entry map[string]any) {
	if _, ok := entry["ts"]; !ok {
		entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
