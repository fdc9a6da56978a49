package sink

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/fhir"
	"github.com/vk/icupipe/internal/graph"
	"github.com/vk/icupipe/internal/job"
	"github.com/vk/icupipe/internal/testutil"
)

type leaf struct {
	*graph.Base
	frame *fhir.Frame
}

func (l *leaf) GetData(context.Context, *job.Job) (graph.Data, error) {
	return graph.Data{l.ConceptID(): l.frame}, nil
}

func observations(values ...float64) *fhir.Frame {
	f := fhir.NewFrame(fhir.Observation, len(values))
	at := time.Date(2150, 1, 1, 12, 0, 0, 0, time.UTC)
	for _, v := range values {
		f.Rows = append(f.Rows, fhir.Row{
			fhir.ColSubject:           fhir.Reference{Reference: "1234", Type: "mimiciv"},
			fhir.ColCode:              fhir.NewCodeableConcept("snomed", "364075005"),
			fhir.ColEffectiveDateTime: at,
			fhir.ColValueQuantity:     fhir.Quantity{Value: v, Unit: "Hz"},
		})
	}
	return f
}

func testJob() *job.Job {
	return job.NewWithID("job-1", config.MIMICIV, job.Batch{Columns: []string{"subject_id"}, Rows: [][]any{{1234}}})
}

func TestSink_GetData(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ids := graph.NewIDGenerator()
	g := graph.New(nil)
	mem := NewMemory()
	s := New(ids.Next(), mem)
	hr := &leaf{Base: graph.NewBase("Leaf", ids.Next(), "HeartRate"), frame: observations(1, 2)}
	temp := &leaf{Base: graph.NewBase("Leaf", ids.Next(), "BodyTemperature"), frame: observations(310)}
	for _, l := range []graph.Node{hr, temp} {
		_, err := g.AddPipe(l, s)
		require.NoError(t, err)
	}

	// --- Act ---
	data, err := s.GetData(testutil.Context(nil), testJob())

	// --- Assert ---
	require.NoError(t, err)
	assert.Len(t, data, 2)
	assert.Equal(t, map[string]int{"HeartRate": 2, "BodyTemperature": 1}, s.Totals())
	require.Len(t, mem.Jobs(), 1)
	assert.Equal(t, data, mem.Data("job-1"))
	assert.NoError(t, s.Close())
}

func TestCSV_Write(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := filepath.Join(t.TempDir(), "out")
	w, err := NewCSV(dir)
	require.NoError(t, err)
	ctx := testutil.Context(nil)

	// --- Act ---
	require.NoError(t, w.Write(ctx, testJob(), graph.Data{"HeartRate": observations(1.5)}))
	require.NoError(t, w.Write(ctx, testJob(), graph.Data{"HeartRate": observations(2), "Empty": fhir.NewFrame(fhir.Observation, 0)}))

	// A second writer appends below the existing header.
	w2, err := NewCSV(dir)
	require.NoError(t, err)
	require.NoError(t, w2.Write(ctx, testJob(), graph.Data{"HeartRate": observations(3)}))

	// --- Assert ---
	f, err := os.Open(w.Path("HeartRate"))
	require.NoError(t, err)
	defer f.Close()
	lines, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	wantHeader := []string{
		"subject__reference", "subject__type",
		"code__coding__code", "code__coding__system",
		"effective_date_time",
		"value_quantity__unit", "value_quantity__value",
	}
	if diff := cmp.Diff(wantHeader, lines[0]); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"1234", "mimiciv", "364075005", "snomed", "2150-01-01T12:00:00Z", "Hz", "1.5"}, lines[1])
	assert.Equal(t, "2", lines[2][6])
	assert.Equal(t, "3", lines[3][6])
	assert.NoFileExists(t, w.Path("Empty"))
}

func TestJSONL_Write(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := NewJSONL(dir)
	require.NoError(t, err)

	require.NoError(t, w.Write(testutil.Context(nil), testJob(), graph.Data{"HeartRate": observations(1, 2)}))

	f, err := os.Open(w.Path("HeartRate"))
	require.NoError(t, err)
	defer f.Close()
	var got []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		got = append(got, rec)
	}
	require.Len(t, got, 2)
	assert.Equal(t, map[string]any{"value": 2.0, "unit": "Hz"}, got[1]["value_quantity"])
	assert.Equal(t, map[string]any{"reference": "1234", "type": "mimiciv"}, got[0]["subject"])
}

func TestSocketIO(t *testing.T) {
	t.Parallel()

	t.Run("rejects invalid url", func(t *testing.T) {
		t.Parallel()
		_, err := NewSocketIO(SocketIOConfig{URL: "not a url"})
		assert.Error(t, err)
	})

	t.Run("unreachable server fails the write", func(t *testing.T) {
		t.Parallel()
		w, err := NewSocketIO(SocketIOConfig{URL: "http://127.0.0.1:1", ConnectTimeout: 500 * time.Millisecond})
		require.NoError(t, err)
		defer w.Close()

		err = w.Write(testutil.Context(nil), testJob(), graph.Data{"HeartRate": observations(1)})

		assert.ErrorContains(t, err, "socket.io connect")
	})
}
