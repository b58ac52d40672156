package postgresengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_PendingGaps_ResolvesAndExpiresSkippedPositions(t *testing.T) {
	// setup
	gaps := newPendingGaps(100)
	skippedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	// arrange
	gaps.add(3, 5, skippedAt)
	gaps.add(9, 9, skippedAt.Add(time.Minute))

	// act
	gaps.resolve(4)
	expired := gaps.expire(skippedAt.Add(10*time.Minute), 10*time.Minute)

	// assert
	assert.Equal(t, []uint64{3, 5}, expired)
	assert.Equal(t, []uint64{9}, gaps.positions())
	assert.Equal(t, 1, gaps.count())
}

func Test_PendingGaps_DropsTheOldestPositionsBeyondTheLimit(t *testing.T) {
	// setup
	gaps := newPendingGaps(3)
	skippedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	// act
	firstDropped := gaps.add(1, 2, skippedAt)
	secondDropped := gaps.add(5, 6, skippedAt)
	wideDropped := gaps.add(10, 14, skippedAt)

	// assert
	assert.Zero(t, firstDropped)
	assert.Equal(t, 1, secondDropped)
	assert.Equal(t, 5, wideDropped)
	assert.Equal(t, []uint64{12, 13, 14}, gaps.positions())
}

func Test_PendingGaps_AddingAKnownPositionKeepsItsSkipTime(t *testing.T) {
	// setup
	gaps := newPendingGaps(10)
	skippedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	// arrange
	gaps.add(7, 7, skippedAt)

	// act
	gaps.add(7, 8, skippedAt.Add(5*time.Minute))
	expired := gaps.expire(skippedAt.Add(6*time.Minute), 6*time.Minute)

	// assert
	assert.Equal(t, []uint64{7}, expired)
	assert.Equal(t, []uint64{8}, gaps.positions())
}
