package hedge

import (
	"context"

	"github.com/shopspring/decimal"
)

// SpreadInfo 并发采集双边盘口，计算两个执行方向的价差率
// 以及扣除双边taker费后的净值，供开仓前的人工判断使用
func (o *Orchestrator) SpreadInfo(ctx context.Context) (*SpreadInfo, error) {
	primaryBook, hedgeBook, err := o.fetchBooks(ctx, o.cfg.Symbol)
	if err != nil {
		return nil, err
	}

	fees := decimal.NewFromFloat(o.cfg.PrimaryFees.Taker).
		Add(decimal.NewFromFloat(o.cfg.HedgeFees.Taker))

	// 主动腿买入吃主卖一、对冲腿卖出吃对冲买一
	spreadBuy := decimal.NewFromFloat(hedgeBook.Bid).
		Sub(decimal.NewFromFloat(primaryBook.Ask)).
		Div(decimal.NewFromFloat(primaryBook.Ask))
	// 反方向
	spreadSell := decimal.NewFromFloat(primaryBook.Bid).
		Sub(decimal.NewFromFloat(hedgeBook.Ask)).
		Div(decimal.NewFromFloat(hedgeBook.Ask))

	info := &SpreadInfo{
		Symbol:          o.cfg.Symbol,
		PrimaryExchange: o.primaryEx.GetExchangeName(),
		HedgeExchange:   o.hedgeEx.GetExchangeName(),
		PrimaryBid:      primaryBook.Bid,
		PrimaryAsk:      primaryBook.Ask,
		HedgeBid:        hedgeBook.Bid,
		HedgeAsk:        hedgeBook.Ask,
		Timestamp:       o.clock.Now(),
	}
	info.SpreadBuyPrimary, _ = spreadBuy.Float64()
	info.NetBuyPrimary, _ = spreadBuy.Sub(fees).Float64()
	info.SpreadSellPrimary, _ = spreadSell.Float64()
	info.NetSellPrimary, _ = spreadSell.Sub(fees).Float64()
	return info, nil
}
