package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(jobCmd)

	jobCmd.AddCommand(jobStatusCmd)
	jobCmd.AddCommand(jobStopCmd)
	jobCmd.AddCommand(jobQueryPatientsCmd)
	jobCmd.AddCommand(jobQueryStudiesCmd)
	jobCmd.AddCommand(jobQuerySeriesCmd)
	jobCmd.AddCommand(jobRetrieveStudyCmd)
	jobCmd.AddCommand(jobRetrieveSeriesCmd)
	jobCmd.AddCommand(jobEchoCmd)

	for _, c := range []*cobra.Command{
		jobQueryPatientsCmd, jobQueryStudiesCmd, jobQuerySeriesCmd,
		jobRetrieveStudyCmd, jobRetrieveSeriesCmd, jobEchoCmd,
	} {
		c.Flags().IntP("priority", "p", 0, "job priority (0=lowest .. 4=highest)")
	}
	jobQueryPatientsCmd.Flags().StringSliceP("filter", "f", nil, "query filter as key=value (repeatable)")
	jobQueryStudiesCmd.Flags().StringSliceP("filter", "f", nil, "query filter as key=value (repeatable)")
	jobQuerySeriesCmd.Flags().StringSliceP("filter", "f", nil, "query filter as key=value (repeatable)")
}

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Admit and inspect scheduler jobs",
	Long:  `Admit query/retrieve/echo jobs against a registered server, and inspect or stop running ones.`,
}

func parseFilters(pairs []string) map[string]any {
	if len(pairs) == 0 {
		return nil
	}
	filters := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		filters[k] = v
	}
	return filters
}

// jobDetail mirrors responseset.Detail's JSON shape as returned by the API.
type jobDetail struct {
	JobClass               string `json:"JobClass"`
	JobID                  string `json:"JobID"`
	DicomLevel             string `json:"DicomLevel"`
	PatientID              string `json:"PatientID"`
	StudyUID               string `json:"StudyUID"`
	SeriesUID              string `json:"SeriesUID"`
	SopUID                 string `json:"SopUID"`
	ConnectionName         string `json:"ConnectionName"`
	ReferenceInserterJobID string `json:"ReferenceInserterJobID"`
	NumberOfDatasets       int    `json:"NumberOfDatasets"`
}

func printJobDetail(d *jobDetail) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Job ID:\t%s\n", cyan(d.JobID))
	fmt.Fprintf(w, "Kind:\t%s\n", d.JobClass)
	fmt.Fprintf(w, "Level:\t%s\n", d.DicomLevel)
	fmt.Fprintf(w, "Connection:\t%s\n", d.ConnectionName)
	if d.PatientID != "" {
		fmt.Fprintf(w, "Patient:\t%s\n", d.PatientID)
	}
	if d.StudyUID != "" {
		fmt.Fprintf(w, "Study UID:\t%s\n", d.StudyUID)
	}
	if d.SeriesUID != "" {
		fmt.Fprintf(w, "Series UID:\t%s\n", d.SeriesUID)
	}
	if d.SopUID != "" {
		fmt.Fprintf(w, "SOP UID:\t%s\n", d.SopUID)
	}
	fmt.Fprintf(w, "Datasets:\t%d\n", d.NumberOfDatasets)
	w.Flush()
}

func admitJob(cmd *cobra.Command, body map[string]any) {
	client := NewAPIClient()
	var detail jobDetail
	if err := client.Post("/api/jobs", body, &detail); err != nil {
		fail(fmt.Sprintf("Failed to admit job: %v", err))
		return
	}
	success(fmt.Sprintf("Job admitted: %s", cyan(detail.JobID)))
	fmt.Println()
	printJobDetail(&detail)
}

var jobQueryPatientsCmd = &cobra.Command{
	Use:   "query-patients <connection>",
	Short: "Query patients on a registered server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		filters, _ := cmd.Flags().GetStringSlice("filter")
		priority, _ := cmd.Flags().GetInt("priority")
		admitJob(cmd, map[string]any{
			"kind":            "query_patients",
			"connection_name": args[0],
			"filters":         parseFilters(filters),
			"priority":        priority,
		})
	},
}

var jobQueryStudiesCmd = &cobra.Command{
	Use:   "query-studies <connection> <patient-id>",
	Short: "Query studies for a patient on a registered server",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		filters, _ := cmd.Flags().GetStringSlice("filter")
		priority, _ := cmd.Flags().GetInt("priority")
		admitJob(cmd, map[string]any{
			"kind":            "query_studies",
			"connection_name": args[0],
			"patient_id":      args[1],
			"filters":         parseFilters(filters),
			"priority":        priority,
		})
	},
}

var jobQuerySeriesCmd = &cobra.Command{
	Use:   "query-series <connection> <patient-id> <study-uid>",
	Short: "Query series within a study on a registered server",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		filters, _ := cmd.Flags().GetStringSlice("filter")
		priority, _ := cmd.Flags().GetInt("priority")
		admitJob(cmd, map[string]any{
			"kind":            "query_series",
			"connection_name": args[0],
			"patient_id":      args[1],
			"study_uid":       args[2],
			"filters":         parseFilters(filters),
			"priority":        priority,
		})
	},
}

var jobRetrieveStudyCmd = &cobra.Command{
	Use:   "retrieve-study <connection> <patient-id> <study-uid>",
	Short: "Retrieve an entire study from a registered server",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		priority, _ := cmd.Flags().GetInt("priority")
		admitJob(cmd, map[string]any{
			"kind":            "retrieve_study",
			"connection_name": args[0],
			"patient_id":      args[1],
			"study_uid":       args[2],
			"priority":        priority,
		})
	},
}

var jobRetrieveSeriesCmd = &cobra.Command{
	Use:   "retrieve-series <connection> <patient-id> <study-uid> <series-uid>",
	Short: "Retrieve a single series from a registered server",
	Args:  cobra.ExactArgs(4),
	Run: func(cmd *cobra.Command, args []string) {
		priority, _ := cmd.Flags().GetInt("priority")
		admitJob(cmd, map[string]any{
			"kind":            "retrieve_series",
			"connection_name": args[0],
			"patient_id":      args[1],
			"study_uid":       args[2],
			"series_uid":      args[3],
			"priority":        priority,
		})
	},
}

var jobEchoCmd = &cobra.Command{
	Use:   "echo <connection>",
	Short: "Send a C-ECHO verification to a registered server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		priority, _ := cmd.Flags().GetInt("priority")
		admitJob(cmd, map[string]any{
			"kind":            "echo",
			"connection_name": args[0],
			"priority":        priority,
		})
	},
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Get job status",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewAPIClient()
		var detail jobDetail
		if err := client.Get("/api/jobs/"+args[0], &detail); err != nil {
			fail(fmt.Sprintf("Failed to get status: %v", err))
			return
		}
		fmt.Println(bold("Job Status"))
		fmt.Println()
		printJobDetail(&detail)
	},
}

var jobStopCmd = &cobra.Command{
	Use:   "stop <job-id>",
	Short: "Stop a job and every job sharing its patient, study, series or SOP UID",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewAPIClient()
		if err := client.Delete("/api/jobs/" + args[0]); err != nil {
			fail(fmt.Sprintf("Failed to stop job: %v", err))
			return
		}
		success(fmt.Sprintf("Stop requested for %s", cyan(args[0])))
	},
}
