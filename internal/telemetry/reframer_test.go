package telemetry

import (
	"errors"
	"io"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/banshee-data/motion.report/internal/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(t *testing.T, r *Reframer, chunks []string) ([]Sample, []error) {
	t.Helper()
	var (
		out  []Sample
		errs []error
	)
	for _, c := range chunks {
		samples, err := r.Feed([]byte(c))
		out = append(out, samples...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return out, errs
}

func TestReframer_DeviceExample(t *testing.T) {
	input := `{"s":0,"a_x":1,"a_y":0,"a_z":0,"g_x":400,"g_y":0,"g_z":0}{"s":1,"a_x":0,"a_y":1,"a_z":0,"g_x":0,"g_y":400,"g_z":0}`
	want := []Sample{
		{S: 0, AX: 1, GX: 400},
		{S: 1, AY: 1, GY: 400},
	}

	for cut := 0; cut <= len(input); cut++ {
		r := NewReframer()
		got, errs := feedAll(t, r, []string{input[:cut], input[cut:]})
		if len(errs) != 0 {
			t.Fatalf("cut %d: unexpected errors %v", cut, errs)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("cut %d: samples mismatch (-want +got):\n%s", cut, diff)
		}
		if r.Pending() != 0 {
			t.Fatalf("cut %d: %d bytes left pending", cut, r.Pending())
		}
	}
}

func TestReframer_EverySplitPoint(t *testing.T) {
	input := testutil.Records(0, 3)
	want := fixtureSamples(0, 3)

	for a := 0; a <= len(input); a++ {
		for b := a; b <= len(input); b += 7 {
			r := NewReframer()
			got, errs := feedAll(t, r, []string{input[:a], input[a:b], input[b:]})
			if len(errs) != 0 {
				t.Fatalf("split %d/%d: unexpected errors %v", a, b, errs)
			}
			if !cmp.Equal(want, got) {
				t.Fatalf("split %d/%d: got %v", a, b, got)
			}
		}
	}
}

func TestReframer_RandomPartitions(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 30007))

	for trial := 0; trial < 200; trial++ {
		n := rng.IntN(40)
		input := testutil.Records(trial, n)

		offsets := make([]int, rng.IntN(12))
		for i := range offsets {
			offsets[i] = rng.IntN(len(input) + 1)
		}
		slices.Sort(offsets)
		chunks := testutil.Split(input, offsets...)

		r := NewReframer()
		got, errs := feedAll(t, r, chunks)
		require.Empty(t, errs, "trial %d", trial)
		require.Len(t, got, n, "trial %d: %d chunks", trial, len(chunks))
		if diff := cmp.Diff(fixtureSamples(trial, n), got); diff != "" {
			t.Fatalf("trial %d: samples mismatch (-want +got):\n%s", trial, diff)
		}
		assert.Equal(t, int64(n), r.Stats().Records)
		assert.Equal(t, int64(len(input)), r.Stats().Bytes)
		assert.Zero(t, r.Pending())
	}
}

func TestReframer_ByteAtATime(t *testing.T) {
	input := testutil.Records(100, 5)
	r := NewReframer()

	var got []Sample
	recordEnds := map[int]bool{}
	end := 0
	for i := 100; i < 105; i++ {
		end += len(testutil.Record(i))
		recordEnds[end] = true
	}

	for i := 0; i < len(input); i++ {
		samples, err := r.Feed([]byte{input[i]})
		require.NoError(t, err)
		got = append(got, samples...)
		if recordEnds[i+1] {
			assert.Len(t, samples, 1, "record should complete at byte %d", i+1)
			assert.Zero(t, r.Pending())
		} else {
			assert.Empty(t, samples, "no record should complete at byte %d", i+1)
		}
	}
	assert.Equal(t, fixtureSamples(100, 5), got)
}

func TestReframer_PendingHoldsOnePartialObject(t *testing.T) {
	input := testutil.Records(0, 4)
	starts := []int{0}
	for i := 0; i < 4; i++ {
		starts = append(starts, starts[i]+len(testutil.Record(i)))
	}

	for k := 0; k <= len(input); k++ {
		r := NewReframer()
		samples, err := r.Feed([]byte(input[:k]))
		require.NoError(t, err)

		// the last record boundary at or before k
		done := 0
		for done+1 < len(starts) && starts[done+1] <= k {
			done++
		}
		assert.Len(t, samples, done, "prefix %d", k)
		assert.Equal(t, k-starts[done], r.Pending(), "prefix %d", k)
	}
}

func TestReframer_MalformedDiscardsBuffer(t *testing.T) {
	one, two := testutil.Record(1), testutil.Record(2)
	r := NewReframer()

	samples, err := r.Feed([]byte(one + "GARBAGE" + two))
	require.ErrorIs(t, err, ErrMalformedRecord)
	assert.Equal(t, []Sample{fixtureSample(1)}, samples)
	assert.Zero(t, r.Pending())

	st := r.Stats()
	assert.Equal(t, int64(1), st.Malformed)
	assert.Equal(t, int64(len("GARBAGE"+two)), st.Discarded)
	assert.Equal(t, int64(1), st.Dropped())

	// the stream continues with the next read
	samples, err = r.Feed([]byte(testutil.Record(3)))
	require.NoError(t, err)
	assert.Equal(t, []Sample{fixtureSample(3)}, samples)
}

func TestReframer_MalformedCountIndependentOfReads(t *testing.T) {
	input := testutil.Record(1) + "GARBAGE" + testutil.Record(2)

	r := NewReframer()
	for i := 0; i < len(input); i++ {
		_, err := r.Feed([]byte{input[i]})
		if err != nil {
			assert.ErrorIs(t, err, ErrMalformedRecord)
		}
	}
	st := r.Stats()
	assert.Equal(t, int64(2), st.Records)
	assert.Equal(t, int64(1), st.Malformed)
	assert.Equal(t, int64(len("GARBAGE")), st.Discarded)

	// a second corrupt run after a good record is a new event
	_, err := r.Feed([]byte("}}"))
	require.ErrorIs(t, err, ErrMalformedRecord)
	_, err = r.Feed([]byte("}"))
	require.NoError(t, err)
	samples, err := r.Feed([]byte(testutil.Record(3) + "]"))
	assert.Equal(t, []Sample{fixtureSample(3)}, samples)
	require.ErrorIs(t, err, ErrMalformedRecord)
	assert.Equal(t, int64(3), r.Stats().Malformed)
}

func TestReframer_MissingFieldEndsGarbageRun(t *testing.T) {
	r := NewReframer()
	_, errs := feedAll(t, r, []string{"G", `{"s":1}`, "G"})
	require.Len(t, errs, 3)
	st := r.Stats()
	assert.Equal(t, int64(2), st.Malformed)
	assert.Equal(t, int64(1), st.MissingField)
}

func TestReframer_MalformedSplitAcrossReads(t *testing.T) {
	r := NewReframer()
	got, errs := feedAll(t, r, []string{
		testutil.Record(0) + `{"s":`,
		`1,}` + testutil.Record(2),
		testutil.Record(3),
	})

	assert.Equal(t, []Sample{fixtureSample(0), fixtureSample(3)}, got)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrMalformedRecord)
	assert.Zero(t, r.Pending())
}

func TestReframer_MissingFieldSkipsRecord(t *testing.T) {
	bad := `{"s":9,"a_x":1,"a_y":0,"a_z":0,"g_x":0,"g_y":0}`
	null := `{"s":10,"a_x":null,"a_y":0,"a_z":0,"g_x":0,"g_y":0,"g_z":0}`
	input := testutil.Record(8) + bad + null + testutil.Record(11)

	r := NewReframer()
	samples, err := r.Feed([]byte(input))

	assert.Equal(t, []Sample{fixtureSample(8), fixtureSample(11)}, samples)
	require.ErrorIs(t, err, ErrMissingField)
	assert.NotErrorIs(t, err, ErrMalformedRecord)

	recs := RecordErrors(err)
	require.Len(t, recs, 2)
	assert.Equal(t, "g_z", recs[0].Field)
	assert.Equal(t, "a_x", recs[1].Field)

	st := r.Stats()
	assert.Equal(t, int64(2), st.MissingField)
	assert.Equal(t, int64(2), st.Records)
	assert.Zero(t, st.Discarded)
}

func TestReframer_EmptyFeed(t *testing.T) {
	r := NewReframer()
	samples, err := r.Feed(nil)
	assert.NoError(t, err)
	assert.Empty(t, samples)

	samples, err = r.Feed([]byte("   \n"))
	assert.NoError(t, err)
	assert.Empty(t, samples)
}

// chunkReader returns at most size bytes per Read.
type chunkReader struct {
	r    io.Reader
	size int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.size {
		p = p[:c.size]
	}
	return c.r.Read(p)
}

func TestReframer_Stream(t *testing.T) {
	input := testutil.Records(0, 25)

	for _, size := range []int{1, 3, 17, 64, 1024} {
		r := NewReframer()
		var got []Sample
		for s, err := range r.Stream(&chunkReader{r: strings.NewReader(input), size: size}, 0) {
			require.NoError(t, err, "chunk size %d", size)
			got = append(got, s)
		}
		if diff := cmp.Diff(fixtureSamples(0, 25), got); diff != "" {
			t.Errorf("chunk size %d: samples mismatch (-want +got):\n%s", size, diff)
		}
	}
}

func TestReframer_StreamYieldsDropsAndContinues(t *testing.T) {
	input := testutil.Record(0) + `{"s":1}` + testutil.Record(2)
	r := NewReframer()

	var (
		got  []Sample
		errs []error
	)
	for s, err := range r.Stream(iotest.OneByteReader(strings.NewReader(input)), 8) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		got = append(got, s)
	}
	assert.Equal(t, []Sample{fixtureSample(0), fixtureSample(2)}, got)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrMissingField)
}

func TestReframer_StreamReadError(t *testing.T) {
	boom := errors.New("connection reset")
	src := io.MultiReader(strings.NewReader(testutil.Records(0, 2)), iotest.ErrReader(boom))

	r := NewReframer()
	var (
		n    int
		last error
	)
	for _, err := range r.Stream(src, 0) {
		if err != nil {
			last = err
			continue
		}
		n++
	}
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, last, boom)
}

func TestReframer_StreamStopsEarly(t *testing.T) {
	r := NewReframer()
	n := 0
	for range r.Stream(strings.NewReader(testutil.Records(0, 10)), 0) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}
