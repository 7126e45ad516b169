package exchange

import (
	"context"
	"fmt"
	"strconv"

	"TradeSentry/internal/biz"
	"TradeSentry/internal/conf"
	"TradeSentry/internal/model"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet is exchange providers.
var ProviderSet = wire.NewSet(NewBinanceFutures, wire.Bind(new(biz.ExchangeService), new(*BinanceFutures)))

// takerFeeRate is the USDⓈ-M market-order fee at the default tier.
// Market orders always pay taker; commission is estimated from the fill
// notional rather than fetched from the trade stream.
const takerFeeRate = 0.0005

// BinanceFutures implements biz.ExchangeService on the Binance USDⓈ-M
// futures API.
type BinanceFutures struct {
	client *futures.Client
	logger *log.Helper
}

// NewBinanceFutures creates the futures client from configuration.
func NewBinanceFutures(c *conf.Bootstrap, logger log.Logger) *BinanceFutures {
	if c.Exchange != nil && c.Exchange.Testnet {
		futures.UseTestnet = true
	}
	var apiKey, apiSecret string
	if c.Exchange != nil {
		apiKey = c.Exchange.ApiKey
		apiSecret = c.Exchange.ApiSecret
	}
	return &BinanceFutures{
		client: futures.NewClient(apiKey, apiSecret),
		logger: log.NewHelper(logger),
	}
}

// AccountTotalValue returns total margin balance (wallet + unrealized PnL).
func (b *BinanceFutures) AccountTotalValue(ctx context.Context) (float64, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance account: %w", err)
	}
	total, err := strconv.ParseFloat(account.TotalMarginBalance, 64)
	if err != nil {
		return 0, fmt.Errorf("parse total margin balance %q: %w", account.TotalMarginBalance, err)
	}
	return total, nil
}

// OpenPositions returns all non-flat positions normalized to model terms.
func (b *BinanceFutures) OpenPositions(ctx context.Context) ([]model.OpenPosition, error) {
	risks, err := b.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance position risk: %w", err)
	}

	positions := make([]model.OpenPosition, 0, len(risks))
	for _, r := range risks {
		amt, err := strconv.ParseFloat(r.PositionAmt, 64)
		if err != nil || amt == 0 {
			continue
		}

		side := "long"
		if amt < 0 {
			side = "short"
			amt = -amt
		}

		entryPrice, _ := strconv.ParseFloat(r.EntryPrice, 64)
		markPrice, _ := strconv.ParseFloat(r.MarkPrice, 64)
		leverage, _ := strconv.ParseFloat(r.Leverage, 64)
		unrealized, _ := strconv.ParseFloat(r.UnRealizedProfit, 64)
		if leverage <= 0 {
			leverage = 1
		}

		positions = append(positions, model.OpenPosition{
			Symbol:        r.Symbol,
			Side:          side,
			EntryPrice:    entryPrice,
			Quantity:      amt,
			Leverage:      leverage,
			UnrealizedPnL: unrealized,
			MarginUsed:    amt * markPrice / leverage,
		})
	}
	return positions, nil
}

// MarkPrice returns the current mark price for a symbol.
func (b *BinanceFutures) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	premiums, err := b.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance premium index %s: %w", symbol, err)
	}
	if len(premiums) == 0 {
		return 0, fmt.Errorf("no premium index for %s", symbol)
	}
	price, err := strconv.ParseFloat(premiums[0].MarkPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("parse mark price %q: %w", premiums[0].MarkPrice, err)
	}
	return price, nil
}

// OpenMarketPosition sets leverage then submits a market order sized from
// the notional at the current mark price.
func (b *BinanceFutures) OpenMarketPosition(ctx context.Context, symbol, side string, notionalUSD, leverage float64) (*biz.ExchangeOrder, error) {
	price, err := b.MarkPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, fmt.Errorf("invalid mark price %f for %s", price, symbol)
	}

	if _, err := b.client.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(int(leverage)).
		Do(ctx); err != nil {
		return nil, fmt.Errorf("set leverage %s: %w", symbol, err)
	}

	orderSide := futures.SideTypeBuy
	if side == "short" {
		orderSide = futures.SideTypeSell
	}
	quantity := strconv.FormatFloat(notionalUSD/price, 'f', 3, 64)

	order, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(orderSide).
		Type(futures.OrderTypeMarket).
		Quantity(quantity).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("open market order %s: %w", symbol, err)
	}

	b.logger.Infow("market order submitted",
		"type", "exchange",
		"symbol", symbol,
		"side", side,
		"quantity", quantity,
		"order_id", order.OrderID)

	return &biz.ExchangeOrder{
		OrderID:  strconv.FormatInt(order.OrderID, 10),
		Symbol:   symbol,
		Side:     side,
		Price:    price,
		Quantity: notionalUSD / price,
		Fee:      notionalUSD * takerFeeRate,
	}, nil
}

// CloseMarketPosition flattens a position with a reduce-only market order.
func (b *BinanceFutures) CloseMarketPosition(ctx context.Context, pos *model.OpenPosition) (*biz.ExchangeOrder, error) {
	// Closing reverses the side of the held position.
	orderSide := futures.SideTypeSell
	if pos.Side == "short" {
		orderSide = futures.SideTypeBuy
	}
	quantity := strconv.FormatFloat(pos.Quantity, 'f', 3, 64)

	order, err := b.client.NewCreateOrderService().
		Symbol(pos.Symbol).
		Side(orderSide).
		Type(futures.OrderTypeMarket).
		Quantity(quantity).
		ReduceOnly(true).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("close market order %s: %w", pos.Symbol, err)
	}

	price, err := b.MarkPrice(ctx, pos.Symbol)
	if err != nil {
		price = pos.EntryPrice
	}

	b.logger.Infow("position close submitted",
		"type", "exchange",
		"symbol", pos.Symbol,
		"quantity", quantity,
		"order_id", order.OrderID)

	return &biz.ExchangeOrder{
		OrderID:  strconv.FormatInt(order.OrderID, 10),
		Symbol:   pos.Symbol,
		Side:     pos.Side,
		Price:    price,
		Quantity: pos.Quantity,
		Fee:      price * pos.Quantity * takerFeeRate,
	}, nil
}
