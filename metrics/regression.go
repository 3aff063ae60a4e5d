// Package metrics は学習損失と復元品質の評価指標を提供する
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/diffusion/core/parallel"
	"github.com/YuminosukeSato/diffusion/pkg/errors"
)

// perExampleParallelThreshold より大きいバッチでのみ並列化する
const perExampleParallelThreshold = 8

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	// 入力検証
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("MSE", "empty vector")
	}

	if yPred.Len() != n {
		return 0, errors.NewDimensionError("MSE", n, yPred.Len())
	}

	// MSE = (1/n) * Σ(yTrue - yPred)²
	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}

	return sum / float64(n), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("MAE", "empty vector")
	}

	if yPred.Len() != n {
		return 0, errors.NewDimensionError("MAE", n, yPred.Len())
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}

	return sum / float64(n), nil
}

// PerExampleMSE はバッチの各サンプルごとにMSEを計算し、その平均を返す
//
// target と pred は連続したバッチデータで、先頭から batch 個の等長ブロックに分割される。
// 全要素をまとめた単一のMSEではなく、各サンプルを自身の要素数で正規化してから平均する。
//
// パラメータ:
//   - target: 正解値 (batch × perExample)
//   - pred: 予測値 (target と同じ長さ)
//   - batch: バッチサイズ
//
// 戻り値:
//   - float64: サンプルごとのMSEの平均
//   - []float64: サンプルごとのMSE
//   - error: 長さが一致しない場合
func PerExampleMSE(target, pred []float64, batch int) (float64, []float64, error) {
	if batch <= 0 || len(target) == 0 {
		return 0, nil, errors.NewValueError("PerExampleMSE", "empty batch")
	}
	if len(pred) != len(target) {
		return 0, nil, errors.NewDimensionError("PerExampleMSE", len(target), len(pred))
	}
	if len(target)%batch != 0 {
		return 0, nil, errors.NewValueError("PerExampleMSE", "data length is not a multiple of the batch size")
	}

	per := len(target) / batch
	losses := make([]float64, batch)
	errs := make([]error, batch)

	// 各ワーカーは自分の担当インデックスにのみ書き込むため結果は決定的
	parallel.ParallelizeWithThreshold(batch, perExampleParallelThreshold, func(start, end int) {
		for b := start; b < end; b++ {
			lo, hi := b*per, (b+1)*per
			losses[b], errs[b] = MSE(
				mat.NewVecDense(per, target[lo:hi]),
				mat.NewVecDense(per, pred[lo:hi]),
			)
		}
	})
	for _, err := range errs {
		if err != nil {
			return 0, nil, err
		}
	}

	var sum float64
	for _, l := range losses {
		sum += l
	}
	return sum / float64(batch), losses, nil
}

// PSNR はピーク信号対雑音比（dB）を計算する
//
// dataRange は信号の取りうる幅で、[-1, 1] の画像なら 2.0 を渡す。
// 完全一致の場合は +Inf を返す。
func PSNR(yTrue, yPred *mat.VecDense, dataRange float64) (float64, error) {
	if dataRange <= 0 {
		return 0, errors.NewValueError("PSNR", "data range must be positive")
	}
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if mse == 0 {
		return math.Inf(1), nil
	}
	return 10 * math.Log10(dataRange*dataRange/mse), nil
}
