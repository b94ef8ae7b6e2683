// Package guard switches the process into test mode when imported.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("TACSTATS_TEST_MODE") == "" {
			_ = os.Setenv("TACSTATS_TEST_MODE", "1")
		}
	})
}
