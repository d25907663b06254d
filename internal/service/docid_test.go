package service

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var documentIDPattern = regexp.MustCompile(`^DOC-(\d+)-(\d{1,3})$`)

func parseDocumentID(t *testing.T, id string) (int64, int) {
	t.Helper()
	m := documentIDPattern.FindStringSubmatch(id)
	require.NotNil(t, m, "unexpected document id %q", id)
	ms, err := strconv.ParseInt(m[1], 10, 64)
	require.NoError(t, err)
	suffix, err := strconv.Atoi(m[2])
	require.NoError(t, err)
	require.GreaterOrEqual(t, suffix, 0)
	require.Less(t, suffix, 1000)
	return ms, suffix
}

func TestIDGenerator_Format(t *testing.T) {
	g := NewIDGenerator()
	g.now = func() time.Time { return time.UnixMilli(1700000000123) }
	g.intn = func(int) int { return 42 }

	assert.Equal(t, "DOC-1700000000123-42", g.Next())
	// Same millisecond, same random draw: the next free suffix is used.
	assert.Equal(t, "DOC-1700000000123-43", g.Next())
}

func TestIDGenerator_FrozenClockStaysUnique(t *testing.T) {
	g := NewIDGenerator()
	g.now = func() time.Time { return time.UnixMilli(1700000000000) }

	seen := make(map[string]struct{})
	var lastMs int64
	for i := 0; i < 2500; i++ {
		id := g.Next()
		ms, _ := parseDocumentID(t, id)
		assert.GreaterOrEqual(t, ms, lastMs)
		lastMs = ms
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	assert.Equal(t, int64(1700000000002), lastMs)
}

func TestIDGenerator_ClockGoingBackwards(t *testing.T) {
	g := NewIDGenerator()
	current := time.UnixMilli(1700000000500)
	g.now = func() time.Time { return current }

	first, _ := parseDocumentID(t, g.Next())
	current = current.Add(-time.Second)
	second, _ := parseDocumentID(t, g.Next())

	assert.Equal(t, first, second)
}

func TestIDGenerator_Concurrent(t *testing.T) {
	g := NewIDGenerator()
	const n = 2000

	var mu sync.Mutex
	seen := make(map[string]struct{}, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.Next()
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	for id := range seen {
		assert.True(t, strings.HasPrefix(id, "DOC-"))
	}
}
