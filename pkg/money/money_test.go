package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundCentsHalfUp(t *testing.T) {
	assert.Equal(t, int64(3889), RoundCents(3888.5))
	assert.Equal(t, int64(3888), RoundCents(3888.4999))
	assert.Equal(t, int64(0), RoundCents(0))
	assert.Equal(t, int64(-3888), RoundCents(-3888.5))
}

func TestApplyBps(t *testing.T) {
	// 18% of 450.00.
	assert.Equal(t, int64(8100), ApplyBps(45000, 1800))
	// 15% of 149.99 is 2249.85 cents, rounds up.
	assert.Equal(t, int64(2250), ApplyBps(14999, 1500))
	assert.Equal(t, int64(0), ApplyBps(45000, 0))
	assert.Equal(t, int64(45000), ApplyBps(45000, 10000))
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "1234.50", FormatCents(123450))
	assert.Equal(t, "0.05", FormatCents(5))
	assert.Equal(t, "0.00", FormatCents(0))
	assert.Equal(t, "-12.34", FormatCents(-1234))
}
