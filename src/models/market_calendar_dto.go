package models

// MarketCalendarDTO is one month of the exchange calendar as served by the
// quote provider. Status is "open" or "closed" per day; Open carries the
// session bounds as "HH:MM" strings.
type MarketCalendarDTO struct {
	Calendar struct {
		Month int `json:"month"`
		Year  int `json:"year"`
		Days  struct {
			Day []MarketCalendarDayDTO `json:"day"`
		} `json:"days"`
	} `json:"calendar"`
}

type MarketCalendarDayDTO struct {
	Date   string `json:"date"`
	Status string `json:"status"`
	Open   struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"open"`
}

// FindDay returns the calendar entry for the given "2006-01-02" date, if the
// month covers it.
func (c *MarketCalendarDTO) FindDay(date string) (MarketCalendarDayDTO, bool) {
	for _, day := range c.Calendar.Days.Day {
		if day.Date == date {
			return day, true
		}
	}

	return MarketCalendarDayDTO{}, false
}
