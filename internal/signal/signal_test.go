package signal_test

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/verte-zerg/touchsync/internal/dataset"
	"github.com/verte-zerg/touchsync/internal/signal"
)

func loadBlock(t *testing.T) *dataset.Dataset {
	t.Helper()
	body := "block_id,areaRaw,depthRaw,velAbsRaw,spike\n" +
		"1,1,10,100,0\n" +
		"1,,20,200,1\n" +
		"1,3,NaN,300,0\n"
	ds, err := dataset.Read(strings.NewReader(body), dataset.LoadOptions{
		BlockColumn: "block_id",
		Contact:     []string{"areaRaw", "depthRaw", "velAbsRaw"},
	})
	require.NoError(t, err)
	return ds
}

func TestBuild_ColumnOrderAndNeutralFill(t *testing.T) {
	t.Parallel()
	ds := loadBlock(t)

	m, err := signal.Build(ds.Records, ds.Schema, []string{"velAbsRaw", "areaRaw"})
	require.NoError(t, err)

	r, c := m.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 2, c)
	require.Equal(t, []float64{100, 1, 200, 0, 300, 3}, m.RawMatrix().Data)
}

func TestBuild_UnknownChannel(t *testing.T) {
	t.Parallel()
	ds := loadBlock(t)

	_, err := signal.Build(ds.Records, ds.Schema, []string{"velAbsRaw", "velVertRaw"})
	require.ErrorIs(t, err, signal.ErrUnknownChannel)
}

func TestBuild_Empty(t *testing.T) {
	t.Parallel()
	ds := loadBlock(t)

	_, err := signal.Build(nil, ds.Schema, []string{"velAbsRaw"})
	require.ErrorIs(t, err, signal.ErrEmpty)
	_, err = signal.Build(ds.Records, ds.Schema, nil)
	require.ErrorIs(t, err, signal.ErrEmpty)
}

func TestValues_KeepsNaN(t *testing.T) {
	t.Parallel()
	ds := loadBlock(t)

	values, err := signal.Values(ds.Records, ds.Schema, []string{"areaRaw", "depthRaw"})
	require.NoError(t, err)
	require.Len(t, values, 3)
	require.True(t, math.IsNaN(values[1][0]))
	require.True(t, math.IsNaN(values[2][1]))
	require.Equal(t, 20.0, values[1][1])
}

func TestEqualize_PadsShorterWithNeutralRows(t *testing.T) {
	t.Parallel()
	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	b := mat.NewDense(4, 2, []float64{1, 1, 2, 2, 3, 3, 4, 4})

	pa, pb, maskA, maskB := signal.Equalize(a, b)

	ra, _ := pa.Dims()
	rb, _ := pb.Dims()
	require.Equal(t, 4, ra)
	require.Equal(t, 4, rb)
	require.Equal(t, []float64{1, 2, 3, 4, 0, 0, 0, 0}, pa.RawMatrix().Data)
	require.Equal(t, []bool{true, true, false, false}, maskA)
	require.Equal(t, []bool{true, true, true, true}, maskB)
	require.Equal(t, 1.0, a.At(0, 0), "input must not be modified")
}

func TestEqualize_ChannelMismatchPanics(t *testing.T) {
	t.Parallel()
	a := mat.NewDense(2, 2, nil)
	b := mat.NewDense(2, 3, nil)
	require.Panics(t, func() { signal.Equalize(a, b) })
}

func TestPadValues(t *testing.T) {
	t.Parallel()
	values := [][]float64{{1, 2}, {3, 4}}

	out, mask := signal.PadValues(values, 3, math.NaN())

	require.Len(t, out, 3)
	require.Equal(t, []float64{3, 4}, out[1])
	require.True(t, math.IsNaN(out[2][0]))
	require.True(t, math.IsNaN(out[2][1]))
	require.Equal(t, []bool{true, true, false}, mask)

	out[0][0] = 99
	require.Equal(t, 1.0, values[0][0], "padding copies rows")
	require.Panics(t, func() { signal.PadValues(values, 1, 0) })
}
