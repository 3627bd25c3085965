package reference

import (
	"fmt"
	"time"

	"github.com/jaevor/go-nanoid"
)

var newSuffix = func() func() string {
	gen, err := nanoid.CustomASCII("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ", 8)
	if err != nil {
		panic(err)
	}
	return gen
}()

// New generates a transaction reference: prefix, millisecond timestamp and a
// random suffix, e.g. "TRF-1721470000000-4X9KQ2ZM".
func New(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), newSuffix())
}
