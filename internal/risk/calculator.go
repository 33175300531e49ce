package risk

import (
	"github.com/shopspring/decimal"
)

// CalculateImbalance 双边持仓之和的绝对值。
// 符号约定下（主动腿为正、对冲腿为负）完美对冲的结果约等于0
func CalculateImbalance(primarySize, hedgeSize float64) float64 {
	sum := decimal.NewFromFloat(primarySize).Add(decimal.NewFromFloat(hedgeSize))
	v, _ := sum.Abs().Float64()
	return v
}

// CalculateImbalanceRatio 持仓偏差相对主动腿数量的比例，
// 主动腿为0时只有对冲腿视为完全失衡
func CalculateImbalanceRatio(primarySize, hedgeSize float64) float64 {
	if primarySize == 0 {
		if hedgeSize == 0 {
			return 0
		}
		return 1
	}
	ratio := decimal.NewFromFloat(CalculateImbalance(primarySize, hedgeSize)).
		Div(decimal.NewFromFloat(primarySize).Abs())
	v, _ := ratio.Float64()
	return v
}

// IsAcceptableSlippage 滑点是否在允许范围内
func IsAcceptableSlippage(slippage, maxSlippage float64) bool {
	return slippage <= maxSlippage
}

// IsSevereSlippage 滑点是否超过2倍上限
func IsSevereSlippage(slippage, maxSlippage float64) bool {
	return slippage > 2*maxSlippage
}

// CalculateNotional 持仓名义价值
func CalculateNotional(size, price float64) float64 {
	v, _ := decimal.NewFromFloat(size).Mul(decimal.NewFromFloat(price)).Float64()
	return v
}
