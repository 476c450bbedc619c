package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.AddCommand(serverListCmd)
	serverCmd.AddCommand(serverAddCmd)
	serverCmd.AddCommand(serverRemoveCmd)

	serverAddCmd.Flags().String("calling-ae", "DICOMFLOW", "calling AE title")
	serverAddCmd.Flags().String("called-ae", "", "called AE title (required)")
	serverAddCmd.Flags().String("host", "", "peer host (required)")
	serverAddCmd.Flags().Int("port", 104, "peer port")
	serverAddCmd.Flags().String("protocol", "CGET", "retrieve protocol: CGET or CMOVE")
	serverAddCmd.Flags().Bool("query-retrieve", true, "enable query/retrieve on this connection")
	serverAddCmd.Flags().Bool("storage", false, "enable storage on this connection")
	serverAddCmd.MarkFlagRequired("called-ae")
	serverAddCmd.MarkFlagRequired("host")
}

var serverCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"servers"},
	Short:   "Manage registered DICOM peer connections",
}

type serverView struct {
	ConnectionName       string `json:"ConnectionName"`
	CallingAE            string `json:"CallingAE"`
	CalledAE             string `json:"CalledAE"`
	Host                 string `json:"Host"`
	Port                 int    `json:"Port"`
	RetrieveProtocol     string `json:"RetrieveProtocol"`
	QueryRetrieveEnabled bool   `json:"QueryRetrieveEnabled"`
	StorageEnabled       bool   `json:"StorageEnabled"`
}

var serverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered connections",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewAPIClient()
		var servers []serverView
		if err := client.Get("/api/servers", &servers); err != nil {
			fail(fmt.Sprintf("Failed to list servers: %v", err))
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CONNECTION\tCALLED AE\tHOST\tPORT\tPROTOCOL\tQR\tSTORAGE")
		for _, srv := range servers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%v\t%v\n",
				cyan(srv.ConnectionName), srv.CalledAE, srv.Host, srv.Port,
				srv.RetrieveProtocol, srv.QueryRetrieveEnabled, srv.StorageEnabled)
		}
		w.Flush()
	},
}

var serverAddCmd = &cobra.Command{
	Use:   "add <connection-name>",
	Short: "Register a new DICOM peer connection",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		callingAE, _ := cmd.Flags().GetString("calling-ae")
		calledAE, _ := cmd.Flags().GetString("called-ae")
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		protocol, _ := cmd.Flags().GetString("protocol")
		qr, _ := cmd.Flags().GetBool("query-retrieve")
		storage, _ := cmd.Flags().GetBool("storage")

		body := map[string]any{
			"ConnectionName":       args[0],
			"CallingAE":            callingAE,
			"CalledAE":             calledAE,
			"Host":                 host,
			"Port":                 port,
			"RetrieveProtocol":     protocol,
			"QueryRetrieveEnabled": qr,
			"StorageEnabled":       storage,
		}

		client := NewAPIClient()
		var created serverView
		if err := client.Post("/api/servers", body, &created); err != nil {
			fail(fmt.Sprintf("Failed to register server: %v", err))
			return
		}
		success(fmt.Sprintf("Registered connection %s", cyan(created.ConnectionName)))
	},
}

var serverRemoveCmd = &cobra.Command{
	Use:   "remove <connection-name>",
	Short: "Remove a registered connection",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewAPIClient()
		if err := client.Delete("/api/servers/" + args[0]); err != nil {
			fail(fmt.Sprintf("Failed to remove server: %v", err))
			return
		}
		success(fmt.Sprintf("Removed connection %s", cyan(args[0])))
	},
}
