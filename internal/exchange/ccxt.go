package exchange

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ccxtFloat 从CCXT返回的map中解析浮点字段，缺失或格式错误时返回0
func ccxtFloat(m map[string]interface{}, key string) float64 {
	v, ok := m[key]
	if !ok || v == nil {
		return 0
	}
	f, err := strconv.ParseFloat(fmt.Sprintf("%v", v), 64)
	if err != nil {
		return 0
	}
	return f
}

// ccxtString 从CCXT返回的map中解析字符串字段
func ccxtString(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// ccxtTime 解析毫秒时间戳字段，缺失时返回当前时间
func ccxtTime(m map[string]interface{}, key string) time.Time {
	v, ok := m[key]
	if !ok || v == nil {
		return time.Now()
	}
	ms, err := strconv.ParseInt(fmt.Sprintf("%.0f", toFloat(v)), 10, 64)
	if err != nil || ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}

func toFloat(v interface{}) float64 {
	f, err := strconv.ParseFloat(fmt.Sprintf("%v", v), 64)
	if err != nil {
		return 0
	}
	return f
}

// parseBookLevel 解析[价格, 数量]形式的盘口档位
func parseBookLevel(v interface{}) (price, size float64) {
	level, ok := v.([]interface{})
	if !ok || len(level) < 2 {
		return 0, 0
	}
	return toFloat(level[0]), toFloat(level[1])
}

// parseCCXTOrder 将CCXT订单map转换为统一的Order结构
func parseCCXTOrder(m map[string]interface{}) *Order {
	order := &Order{
		OrderID:      ccxtString(m, "id"),
		Symbol:       ccxtString(m, "symbol"),
		Side:         strings.ToLower(ccxtString(m, "side")),
		Type:         strings.ToLower(ccxtString(m, "type")),
		Status:       strings.ToLower(ccxtString(m, "status")),
		Price:        ccxtFloat(m, "price"),
		Size:         ccxtFloat(m, "amount"),
		Filled:       ccxtFloat(m, "filled"),
		Remaining:    ccxtFloat(m, "remaining"),
		AvgFillPrice: ccxtFloat(m, "average"),
		Timestamp:    ccxtTime(m, "timestamp"),
	}

	// 部分交易所回执不带remaining字段
	if order.Remaining == 0 && order.Size > order.Filled {
		order.Remaining = order.Size - order.Filled
	}

	return order
}

// parseCCXTTrade 将CCXT成交map转换为统一的Trade结构
func parseCCXTTrade(m map[string]interface{}) *Trade {
	return &Trade{
		TradeID:   ccxtString(m, "id"),
		OrderID:   ccxtString(m, "order"),
		Symbol:    ccxtString(m, "symbol"),
		Side:      strings.ToLower(ccxtString(m, "side")),
		Price:     ccxtFloat(m, "price"),
		Size:      ccxtFloat(m, "amount"),
		Timestamp: ccxtTime(m, "timestamp"),
	}
}
