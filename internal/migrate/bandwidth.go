package migrate

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/time/rate"
)

// burstMultiplier sizes the token bucket relative to the per-second rate.
const burstMultiplier = 2

// BandwidthLimiter caps aggregate upload throughput across all workers.
// A nil *BandwidthLimiter is unlimited.
type BandwidthLimiter struct {
	limiter *rate.Limiter
}

// NewBandwidthLimiter returns a limiter for bytesPerSec, or nil when
// bytesPerSec <= 0.
func NewBandwidthLimiter(bytesPerSec int64, logger *slog.Logger) *BandwidthLimiter {
	if bytesPerSec <= 0 {
		return nil
	}

	burst := int(bytesPerSec) * burstMultiplier

	logger.Info("bandwidth limiter enabled",
		slog.Int64("bytes_per_sec", bytesPerSec),
		slog.Int("burst", burst),
	)

	return &BandwidthLimiter{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

// WrapReaderAt returns a rate-limited view of r. Reads block until the
// limiter admits the bytes returned or ctx ends.
func (bl *BandwidthLimiter) WrapReaderAt(ctx context.Context, r io.ReaderAt) io.ReaderAt {
	if bl == nil {
		return r
	}

	return &rateLimitedReaderAt{r: r, limiter: bl.limiter, ctx: ctx}
}

type rateLimitedReaderAt struct {
	r       io.ReaderAt
	limiter *rate.Limiter
	ctx     context.Context
}

func (rl *rateLimitedReaderAt) ReadAt(p []byte, off int64) (int, error) {
	// Read in bucket-sized pieces so no single wait exceeds the burst.
	burst := rl.limiter.Burst()

	var total int

	for total < len(p) {
		end := min(total+burst, len(p))

		n, err := rl.r.ReadAt(p[total:end], off+int64(total))
		if n > 0 {
			if waitErr := rl.limiter.WaitN(rl.ctx, n); waitErr != nil {
				return total + n, waitErr
			}
		}

		total += n

		if err != nil {
			return total, err
		}
	}

	return total, nil
}
