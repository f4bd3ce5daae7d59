package handler

import (
	"net/http"
	"strings"

	"aptos-x402-gateway/internal/adapter/http/dto"
	"aptos-x402-gateway/internal/adapter/http/middleware"
	"aptos-x402-gateway/internal/core/domain"

	"github.com/gin-gonic/gin"
)

// Weather handles GET /api/premium/weather.
func Weather(c *gin.Context) {
	city := c.DefaultQuery("city", "San Francisco")
	c.JSON(http.StatusOK, dto.WeatherResponse{
		City:        city,
		Temperature: 18.5,
		Conditions:  "Partly cloudy",
		Humidity:    72,
		PaidBy:      payer(c),
	})
}

// Stocks handles GET /api/premium/stocks.
func Stocks(c *gin.Context) {
	quotes := []dto.StockQuote{
		{Symbol: "APT", Price: 8.42, Change: 1.7},
		{Symbol: "BTC", Price: 67250.00, Change: -0.4},
		{Symbol: "ETH", Price: 3120.15, Change: 0.9},
	}
	if raw := c.Query("symbols"); raw != "" {
		want := make(map[string]struct{})
		for _, s := range strings.Split(raw, ",") {
			want[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
		}
		filtered := quotes[:0]
		for _, q := range quotes {
			if _, ok := want[q.Symbol]; ok {
				filtered = append(filtered, q)
			}
		}
		quotes = filtered
	}
	c.JSON(http.StatusOK, dto.StocksResponse{Quotes: quotes, PaidBy: payer(c)})
}

// Hello handles GET /api/free/hello.
func Hello(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HelloResponse{Message: "Hello! This endpoint is free."})
}

// payer returns the sender of the verified payment, if any.
func payer(c *gin.Context) string {
	v, ok := c.Get(middleware.CtxPaymentResult)
	if !ok {
		return ""
	}
	if result, ok := v.(*domain.VerifyResult); ok {
		return result.SenderAddress
	}
	return ""
}
