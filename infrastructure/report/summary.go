// Package report renders cycle summaries as text tables.
package report

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"

	"questfarm-go/domain/account"
)

// CycleSummary renders the per-account results of a finished cycle plus
// the total balance.
func CycleSummary(records []account.RunRecord) string {
	var sb strings.Builder

	table := tablewriter.NewWriter(&sb)
	table.SetHeader([]string{"ID", "Username", "Balance", "Next Run Time", "Status"})

	var total float64
	for _, r := range records {
		total += r.Balance
		table.Append([]string{
			string(r.Account),
			r.Username,
			fmt.Sprintf("%.2f", r.Balance),
			r.NextRunDisplay(),
			r.Status.String(),
		})
	}
	table.Render()

	fmt.Fprintf(&sb, "Total balance: %.2f\n", total)
	return sb.String()
}

// RetryList renders the accounts that went through the retry pass.
func RetryList(accounts []account.Account) string {
	if len(accounts) == 0 {
		return "No accounts needed a retry.\n"
	}

	var sb strings.Builder
	table := tablewriter.NewWriter(&sb)
	table.SetHeader([]string{"#", "ID"})
	for i, acct := range accounts {
		table.Append([]string{fmt.Sprintf("%d", i+1), string(acct)})
	}
	table.Render()
	return sb.String()
}
