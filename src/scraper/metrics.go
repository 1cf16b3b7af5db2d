package scraper

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// RunMetrics aggregates one collection run's outcome.
type RunMetrics struct {
	RunID            uuid.UUID
	TotalStocks      int
	SuccessfulStocks int
	FailedStocks     int
	SkippedStocks    int
	TotalContracts   int
	APIRequestsUsed  int
	StartedAt        time.Time
	Duration         time.Duration
	Errors           []string
}

func (m RunMetrics) String() string {
	display := &strings.Builder{}
	p := message.NewPrinter(language.English)

	table := tablewriter.NewWriter(display)

	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetColumnSeparator("")
	display.WriteString("Collection Run Summary:\n")

	table.Append([]string{"Run ID", m.RunID.String()})
	table.Append([]string{"Stocks", p.Sprintf("%d", m.TotalStocks)})
	table.Append([]string{"Successful", p.Sprintf("%d", m.SuccessfulStocks)})
	table.Append([]string{"Failed", p.Sprintf("%d", m.FailedStocks)})
	table.Append([]string{"Skipped", p.Sprintf("%d", m.SkippedStocks)})
	table.Append([]string{"Contracts written", p.Sprintf("%d", m.TotalContracts)})
	table.Append([]string{"API requests", p.Sprintf("%d", m.APIRequestsUsed)})
	table.Append([]string{"Duration", m.Duration.Round(time.Millisecond).String()})

	table.Render()

	if len(m.Errors) > 0 {
		display.WriteString("Errors:\n")
		for _, errMsg := range m.Errors {
			display.WriteString(fmt.Sprintf("  - %s\n", errMsg))
		}
	}

	return display.String()
}
