package dispatch

import (
	"fmt"
	"time"
)

// formatElapsed renders d as HH:MM:SS, truncated to whole seconds.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}
