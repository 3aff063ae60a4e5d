package errors

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigurationError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		param   string
		reason  string
		value   interface{}
		wantMsg string
	}{
		{
			name:    "with value",
			op:      "schedule.Make",
			param:   "family",
			reason:  "unknown schedule family",
			value:   "sigmoid",
			wantMsg: "diffusion: schedule.Make: invalid configuration for 'family': unknown schedule family (got: sigmoid)",
		},
		{
			name:    "without value",
			op:      "Engine.SetSchedule",
			param:   "phase",
			reason:  "no schedule configured",
			value:   nil,
			wantMsg: "diffusion: Engine.SetSchedule: invalid configuration for 'phase': no schedule configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfigurationError(tt.op, tt.param, tt.reason, tt.value)
			assert.Equal(t, tt.wantMsg, err.Error())

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			assert.True(t, strings.Contains(formatted, "errors_test.go"), "stack trace should mention the test file")

			var cfgErr *ConfigurationError
			require.True(t, As(err, &cfgErr))
			assert.Equal(t, tt.param, cfgErr.Param)
		})
	}
}

func TestNewShapeMismatchError(t *testing.T) {
	err := NewShapeMismatchError("Engine.ComputeLoss", "denoiser_output", []int{2, 7, 8, 8}, []int{2, 3, 8, 8})

	want := "diffusion: Engine.ComputeLoss: shape mismatch for denoiser_output. Expected shape [2 7 8 8], got [2 3 8 8]"
	assert.Equal(t, want, err.Error())

	var shapeErr *ShapeMismatchError
	require.True(t, As(err, &shapeErr))
	assert.Equal(t, []int{2, 3, 8, 8}, shapeErr.Got)

	// 別の型にはキャストできない
	var cfgErr *ConfigurationError
	assert.False(t, As(err, &cfgErr))
}

func TestDenoiserErrorUnwrap(t *testing.T) {
	inner := New("cuda out of memory")
	err := NewDenoiserError("Engine.PSample", inner)

	assert.True(t, Is(err, inner))
	assert.Contains(t, err.Error(), "denoiser failed")
}

func TestCheckNumericalStability(t *testing.T) {
	require.NoError(t, CheckNumericalStability("ok", []float64{0, 1, -1e300}, 0))

	err := CheckNumericalStability("reverse_step", []float64{1, math.NaN(), math.Inf(1)}, 17)
	require.Error(t, err)

	var numErr *NumericalInstabilityError
	require.True(t, As(err, &numErr))
	assert.Equal(t, 17, numErr.Iteration)
	assert.Len(t, numErr.Values, 2)

	assert.Error(t, CheckScalar("loss", math.Inf(-1), 3))
	assert.NoError(t, CheckScalar("loss", 0.5, 3))
}

func TestFlooredLog(t *testing.T) {
	assert.Equal(t, math.Log(1e-20), FlooredLog(0, 1e-20))
	assert.Equal(t, math.Log(0.5), FlooredLog(0.5, 1e-20))
	assert.False(t, math.IsInf(FlooredLog(-1, 1e-20), 0))
}

func TestClipValue(t *testing.T) {
	assert.Equal(t, -1.0, ClipValue(-3, -1, 1))
	assert.Equal(t, 1.0, ClipValue(2, -1, 1))
	assert.Equal(t, 0.25, ClipValue(0.25, -1, 1))
}

func TestWarnUsesHandler(t *testing.T) {
	var got error
	SetWarningHandler(func(w error) { got = w })
	defer SetWarningHandler(nil)

	Warn(NewScheduleWarning("jsd", 9, "cumulative signal reaches zero"))
	require.NotNil(t, got)
	assert.Equal(t, "schedule jsd at step 9: cumulative signal reaches zero", got.Error())
}

// TestRecover_WithPanic tests the Recover function when a panic occurs
func TestRecover_WithPanic(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "denoiser")
		panic("index out of range")
	}

	err := testFunc()
	require.Error(t, err)

	var panicErr *PanicError
	require.True(t, As(err, &panicErr))
	assert.Equal(t, "denoiser", panicErr.Operation)
	assert.NotEmpty(t, panicErr.StackTrace)
	assert.Equal(t, "panic in denoiser: index out of range", panicErr.Error())
}

func TestRecover_WithExistingError(t *testing.T) {
	original := New("bad input")
	testFunc := func() (err error) {
		defer Recover(&err, "denoiser")
		err = original
		panic("boom")
	}

	err := testFunc()
	require.Error(t, err)
	assert.True(t, Is(err, original))
	assert.Contains(t, err.Error(), "panic in denoiser: boom")
}

func TestSafeExecute(t *testing.T) {
	assert.NoError(t, SafeExecute("noop", func() error { return nil }))

	err := SafeExecute("explode", func() error { panic(42) })
	var panicErr *PanicError
	require.True(t, As(err, &panicErr))
	assert.Equal(t, 42, panicErr.PanicValue)
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("StandardScaler", "Transform")

	var nf *NotFittedError
	require.True(t, As(err, &nf))
	assert.Equal(t, "StandardScaler", nf.ModelName)
	assert.Equal(t, "Transform", nf.Method)
	assert.Contains(t, err.Error(), "not fitted")
}
