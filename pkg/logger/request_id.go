package logger

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

var counter uint64

// GenerateRequestID returns timestamp-counter-random,
// e.g. 20231201102830-000001-a3f2b1
func GenerateRequestID() string {
	count := atomic.AddUint64(&counter, 1)
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%s-%06d-%s", time.Now().Format("20060102150405"), count, hex.EncodeToString(b))
}
