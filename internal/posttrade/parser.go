package posttrade

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"marketvault/internal/domain"
)

// wireTrade mirrors the upstream JSON shape before field renaming (§4.5
// "Field mapping and schema stabilization"). All fields are optional except
// the seven validated in ParseTrades.
type wireTrade struct {
	MessageID               string  `json:"messageId"`
	SourceName              string  `json:"sourceName"`
	ISIN                    string  `json:"isin"`
	InstrumentID            string  `json:"instrumentId"`
	TransIDCode             string  `json:"transIdCode"`
	TickID                  int64   `json:"tickId"`
	LastTrade               float64 `json:"lastTrade"`
	LastQty                 float64 `json:"lastQty"`
	Currency                string  `json:"currency"`
	QuotationType           *string `json:"quotationType"`
	LastTradeTime           string  `json:"lastTradeTime"`
	DistributionDateTime    *string `json:"distributionDateTime"`
	ExecutionVenueID        string  `json:"executionVenueId"`
	TickActionIndicator     *string `json:"tickActionIndicator"`
	InstrumentIDCode        *string `json:"instrumentIdCode"`
	MMTMarketMechanism      *string `json:"mmtMarketMechanism"`
	MMTTradingMode          *string `json:"mmtTradingMode"`
	MMTNegotTransPretrdWaiv *string `json:"mmtNegotTransPretrdWaivInd"`
	MMTModificationInd      *string `json:"mmtModificationInd"`
	MMTBenchmarkRefprcInd   *string `json:"mmtBenchmarkRefprcInd"`
	MMTPubModeDefReason     *string `json:"mmtPubModeDefReason"`
	MMTAlgoInd              *string `json:"mmtAlgoInd"`
}

// wireTimeLayout is the nanosecond ISO-8601 layout the provider emits,
// e.g. "2025-11-04T09:00:00.123456789Z".
const wireTimeLayout = "2006-01-02T15:04:05.999999999Z07:00"

// ParseTrades parses newline-delimited trade JSON objects into domain
// trades, validating the seven required fields on each record and always
// materializing the full 22-column schema (§3.2's stability invariant).
func ParseTrades(jsonl string) ([]domain.Trade, error) {
	scanner := bufio.NewScanner(strings.NewReader(jsonl))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var trades []domain.Trade
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var w wireTrade
		if err := json.Unmarshal([]byte(line), &w); err != nil {
			return nil, fmt.Errorf("posttrade: parse line %d: %w", lineNo, err)
		}
		trade, err := toDomainTrade(w)
		if err != nil {
			return nil, fmt.Errorf("posttrade: line %d: %w", lineNo, err)
		}
		var raw map[string]json.RawMessage
		_ = json.Unmarshal([]byte(line), &raw)
		for _, req := range [][2]string{{"lastTrade", "price"}, {"lastQty", "volume"}, {"tickId", "tick_id"}} {
			if v, ok := raw[req[0]]; !ok || string(v) == "null" {
				return nil, fmt.Errorf("posttrade: line %d: missing required fields: %s", lineNo, req[1])
			}
		}
		trades = append(trades, trade)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("posttrade: scan trade lines: %w", err)
	}
	return trades, nil
}

func toDomainTrade(w wireTrade) (domain.Trade, error) {
	var missing []string
	if w.ISIN == "" {
		missing = append(missing, "isin")
	}
	if w.Currency == "" {
		missing = append(missing, "currency")
	}
	if w.LastTradeTime == "" {
		missing = append(missing, "trade_time")
	}
	if w.TransIDCode == "" {
		missing = append(missing, "trans_id")
	}
	if len(missing) > 0 {
		return domain.Trade{}, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}

	tradeTime, err := parseWireTime(w.LastTradeTime)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse trade_time: %w", err)
	}

	trade := domain.Trade{
		MessageID:         w.MessageID,
		SourceName:        w.SourceName,
		ISIN:              w.ISIN,
		InstrumentID:      w.InstrumentID,
		TransID:           w.TransIDCode,
		TickID:            w.TickID,
		Price:             w.LastTrade,
		Volume:            w.LastQty,
		Currency:          w.Currency,
		QuoteType:         optionalString(w.QuotationType),
		TradeTime:         tradeTime,
		Venue:             w.ExecutionVenueID,
		TickAction:        optionalString(w.TickActionIndicator),
		InstrumentCode:    optionalString(w.InstrumentIDCode),
		MarketMechanism:   optionalString(w.MMTMarketMechanism),
		TradingMode:       optionalString(w.MMTTradingMode),
		NegotiatedFlag:    optionalString(w.MMTNegotTransPretrdWaiv),
		ModificationFlag:  optionalString(w.MMTModificationInd),
		BenchmarkFlag:     optionalString(w.MMTBenchmarkRefprcInd),
		PubDeferralReason: optionalString(w.MMTPubModeDefReason),
		AlgoIndicator:     w.MMTAlgoInd != nil && *w.MMTAlgoInd == "H",
	}

	if w.DistributionDateTime != nil && *w.DistributionDateTime != "" {
		dt, err := parseWireTime(*w.DistributionDateTime)
		if err == nil {
			trade.DistributionTime = domain.NullTime{Value: dt, Valid: true}
		}
	}

	return trade, nil
}

func parseWireTime(s string) (time.Time, error) {
	t, err := time.Parse(wireTimeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func optionalString(p *string) domain.NullString {
	if p == nil || *p == "" {
		return domain.NullString{}
	}
	return domain.NullString{Value: *p, Valid: true}
}
