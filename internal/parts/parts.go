// Package parts binds Analog Devices parts and evaluation boards to the IIO
// devices that expose them. Every binding holds *iio.Device handles and reads
// or writes attributes on demand; nothing is cached except values the board
// fixes at construction time.
package parts

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rjboer/GoADI/internal/iio"
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", iio.ErrInvalidValue, fmt.Sprintf(format, args...))
}

// channelIndex parses the numeric part of IDs such as "voltage3" or
// "voltage3-4".
func channelIndex(id string) (int, bool) {
	i := strings.IndexFunc(id, func(r rune) bool { return r >= '0' && r <= '9' })
	if i < 0 {
		return 0, false
	}
	rest := id[i:]
	if j := strings.IndexByte(rest, '-'); j >= 0 {
		rest = rest[:j]
	}
	n, err := strconv.Atoi(rest)
	return n, err == nil
}

// voltageChannels returns the voltage channels of dev in one direction,
// ordered by their numeric index.
func voltageChannels(dev *iio.Device, output bool) []*iio.Channel {
	var out []*iio.Channel
	for _, ch := range dev.Channels {
		if ch.Output == output && strings.HasPrefix(ch.ID, "voltage") {
			out = append(out, ch)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := channelIndex(out[i].ID)
		b, _ := channelIndex(out[j].ID)
		return a < b
	})
	return out
}

// checkRaw validates v against a "[min step max]" range.
func checkRaw(ctx context.Context, set iio.AttrSet, name string, v int64) error {
	avail, err := set.Available(ctx, name)
	if err != nil {
		return err
	}
	if avail.Range == nil {
		return nil
	}
	r := avail.Range
	if !r.Contains(float64(v)) {
		return invalidf("%s %d outside [%g, %g]", name, v, r.Min, r.Max)
	}
	if r.Step > 0 && math.Mod(float64(v), r.Step) != 0 {
		return invalidf("%s %d is not a multiple of %g", name, v, r.Step)
	}
	return nil
}

// checkList validates v against a whitespace separated "_available" list.
func checkList(ctx context.Context, set iio.AttrSet, name, v string) error {
	avail, err := set.Available(ctx, name)
	if err != nil {
		return err
	}
	if len(avail.List) > 0 && !avail.Has(v) {
		return invalidf("%s %q not in %v", name, v, avail.List)
	}
	return nil
}
