package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	proposePolicy string
	proposeUseAI  bool
	proposalID    int64
)

var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Compute a new proposed schedule against the running control plane",
	RunE:  runPropose,
}

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Approve a proposed schedule by id",
	RunE:  runApprove,
}

var rejectCmd = &cobra.Command{
	Use:   "reject",
	Short: "Reject a proposed schedule by id",
	RunE:  runReject,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the control plane's health endpoint",
	RunE:  runStatus,
}

func init() {
	proposeCmd.Flags().StringVar(&proposePolicy, "policy", "edf", "sorting policy: edf, priority, or customer")
	proposeCmd.Flags().BoolVar(&proposeUseAI, "use-ai", false, "consult the AI advisor before sorting")
	approveCmd.Flags().Int64Var(&proposalID, "proposal-id", 0, "schedule id to approve")
	rejectCmd.Flags().Int64Var(&proposalID, "proposal-id", 0, "schedule id to reject")
}

func runPropose(cmd *cobra.Command, args []string) error {
	body, err := json.Marshal(map[string]any{"policy": proposePolicy, "use_ai": proposeUseAI})
	if err != nil {
		return err
	}
	return postAndPrint(serverURL + "/proposal/compute", body)
}

func runApprove(cmd *cobra.Command, args []string) error {
	if proposalID == 0 {
		return fmt.Errorf("--proposal-id is required")
	}
	body, err := json.Marshal(map[string]any{"proposal_id": proposalID})
	if err != nil {
		return err
	}
	return postAndPrint(serverURL + "/proposal/approve", body)
}

func runReject(cmd *cobra.Command, args []string) error {
	if proposalID == 0 {
		return fmt.Errorf("--proposal-id is required")
	}
	body, err := json.Marshal(map[string]any{"proposal_id": proposalID})
	if err != nil {
		return err
	}
	return postAndPrint(serverURL + "/proposal/reject", body)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("contacting control plane: %w", err)
	}
	defer resp.Body.Close()
	fmt.Printf("control plane: %s\n", resp.Status)
	return nil
}

func postAndPrint(url string, body []byte) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %s: %s", url, resp.Status, respBody)
	}
	if len(respBody) > 0 {
		fmt.Println(string(respBody))
	} else {
		fmt.Println("ok")
	}
	return nil
}
