package internal

import (
	"fmt"
	"time"

	"github.com/gokit/streamkit"
)

// TLog implements the streamkit.Logs interface, printing
// out basic type and value contents with log.
type TLog struct{}

// Emit prints level and message content, it implements
// streamkit.Logs Emit method.
func (TLog) Emit(l streamkit.Level, m streamkit.LogMessage) {
	fmt.Printf("[%s : %s] %s\n", time.Now().Format(time.RFC3339), l, m.Message())
}
