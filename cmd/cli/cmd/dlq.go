package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(dlqCmd)
}

type dlqEntryView struct {
	JobID    string    `json:"JobID"`
	JobType  string    `json:"JobType"`
	Error    string    `json:"Error"`
	FailedAt time.Time `json:"FailedAt"`
	Attempts int       `json:"Attempts"`
}

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "List jobs that exhausted their retries",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewAPIClient()
		var entries []dlqEntryView
		if err := client.Get("/api/dlq", &entries); err != nil {
			fail(fmt.Sprintf("Failed to fetch dead-letter queue: %v", err))
			return
		}

		if len(entries) == 0 {
			info("Dead-letter queue is empty")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "JOB ID\tTYPE\tATTEMPTS\tFAILED AT\tERROR")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				cyan(e.JobID), e.JobType, e.Attempts,
				e.FailedAt.Format(time.RFC3339), red(e.Error))
		}
		w.Flush()
	},
}
