package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/trstruth/pingback"
)

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func renderStats(stats pingback.PingStats) string {
	tableString := &strings.Builder{}
	table := tablewriter.NewWriter(tableString)

	row := []string{
		fmt.Sprintf("%d", stats.Transmitted),
		fmt.Sprintf("%d", stats.Received),
		fmt.Sprintf("%d", stats.Duplicates),
		fmt.Sprintf("%.1f%%", stats.Loss()),
		fmt.Sprintf("%.3f", ms(stats.MinRTT())),
		fmt.Sprintf("%.3f", ms(stats.AvgRTT())),
		fmt.Sprintf("%.3f", ms(stats.MaxRTT())),
		fmt.Sprintf("%.3f", ms(stats.StdDevRTT())),
	}

	table.SetHeader([]string{"tx", "rx", "dup", "loss", "min ms", "avg ms", "max ms", "stddev ms"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.Append(row)
	table.Render()

	return tableString.String()
}
