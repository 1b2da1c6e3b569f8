package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tripwirehq/tripwire/internal/types"
)

/*
 * Scheduler interval strings.
 *
 * Wire format: "<value> <unit>" with the unit pluralized when value > 1,
 * e.g. "1 second", "10 hours". Formatting lives on types.WindowSize
 * (Interval()); this file owns the inverse for scheduler backends that
 * need a time.Duration.
 */

// ParseInterval converts an interval string back to a duration.
func ParseInterval(interval string) (time.Duration, error) {
	parts := strings.SplitN(strings.TrimSpace(interval), " ", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed interval %q", interval)
	}

	value, err := strconv.Atoi(parts[0])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("malformed interval %q", interval)
	}

	unit := strings.TrimSuffix(parts[1], "s")
	window := types.WindowSize{Unit: types.WindowUnit(unit), Value: value}
	if err := window.Validate(); err != nil {
		return 0, fmt.Errorf("malformed interval %q: %w", interval, err)
	}
	return window.Duration(), nil
}
