package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

type StockSymbol string

// Plain tickers plus class-share suffixes such as BRK.B.
var tickerPattern = regexp.MustCompile(`^[A-Z]{1,10}(\.[A-Z])?$`)

func NewStockSymbol(s string) StockSymbol {
	return StockSymbol(strings.ToUpper(strings.TrimSpace(s)))
}

func (s StockSymbol) String() string {
	return strings.ToUpper(string(s))
}

func (s StockSymbol) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s StockSymbol) Validate() error {
	if !tickerPattern.MatchString(s.String()) {
		return fmt.Errorf("StockSymbol: Validate: invalid ticker: %s", s)
	}

	return nil
}
