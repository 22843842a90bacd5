package view

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"bucketadmin/internal/domain"
)

// PanelState is what the administration panel shows at one instant.
type PanelState struct {
	Results  *domain.SearchResult
	Users    []domain.UserSummary
	Selected uint64 // user whose grid is shown; valid when HasGrid
	HasGrid  bool
	Grid     Grid
	Alert    string
	Message  string
}

// RenderPanelText renders s for a terminal.
func RenderPanelText(s PanelState) string {
	var b strings.Builder
	if s.Alert != "" {
		fmt.Fprintf(&b, "error: %s\n\n", s.Alert)
	}
	if s.Message != "" {
		fmt.Fprintf(&b, "%s\n\n", s.Message)
	}

	if s.Results != nil {
		b.WriteString("Buckets\n")
		tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "BID\tNAME\tUSER\tPARTITION")
		for _, m := range s.Results.MainData {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", m.BID, m.BName, m.User, m.Partition)
		}
		tw.Flush()

		b.WriteString("\nFiles\n")
		tw = tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FID\tNAME\tBID\tSIZE")
		for _, d := range s.Results.Details {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", d.FID, d.FName, d.BID, FormatSize(d.FSize))
		}
		tw.Flush()
		b.WriteString("\n")
	}

	if len(s.Users) > 0 {
		tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tFILES\tSIZE\tPARTITIONS")
		for _, u := range s.Users {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%d\n", u.ID, u.Name, u.TotalFiles, FormatSize(u.TotalSize), len(u.Partitions))
		}
		tw.Flush()
		b.WriteString("\n")
	}

	if s.HasGrid {
		fmt.Fprintf(&b, "Partitions of user %d (%d/%d)\n", s.Selected, s.Grid.Present(), domain.PartitionCount)
		b.WriteString(RenderGridText(s.Grid))
	}
	return b.String()
}
