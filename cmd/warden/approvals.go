package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quarrylabs/warden/guard"
	"github.com/quarrylabs/warden/internal/clifmt"
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "List and resolve pending approval requests on a running daemon",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending approval requests",
	RunE: func(_ *cobra.Command, _ []string) error {
		var pending []guard.ApprovalRequest
		if err := daemonGet("/v1/approvals", &pending); err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println(clifmt.Dim("no pending approvals"))
			return nil
		}
		fmt.Println(clifmt.Headerf("%d pending approval(s)", len(pending)))
		for _, req := range pending {
			age := time.Since(req.RequestedAt).Round(time.Second)
			fmt.Printf("%s  %s  tier=%s  age=%s\n  %s\n",
				clifmt.Key(req.ID), req.Tool, req.PermissionTier, age, clifmt.Dim(req.Reason))
		}
		return nil
	},
}

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve [id]",
	Short: "Approve a pending request and run the deferred action",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return resolveApprovalCLI(args[0], true)
	},
}

var approvalsRejectCmd = &cobra.Command{
	Use:   "reject [id]",
	Short: "Reject a pending request",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return resolveApprovalCLI(args[0], false)
	},
}

func init() {
	approvalsCmd.AddCommand(approvalsListCmd)
	approvalsCmd.AddCommand(approvalsApproveCmd)
	approvalsCmd.AddCommand(approvalsRejectCmd)
}

func resolveApprovalCLI(id string, approve bool) error {
	verb := "reject"
	if approve {
		verb = "approve"
	}
	var res guard.ToolResult
	body := strings.NewReader(`{"by":"cli"}`)
	if err := daemonPost(fmt.Sprintf("/v1/approvals/%s/%s", strings.TrimSpace(id), verb), body, &res); err != nil {
		return err
	}
	if res.Success {
		fmt.Println(clifmt.Success(verb + "d: " + id))
		if strings.TrimSpace(res.Data) != "" {
			fmt.Println(res.Data)
		}
		return nil
	}
	fmt.Println(clifmt.Warn(res.Error))
	return nil
}

func daemonBaseURL() string {
	viper.SetDefault("daemon.addr", "127.0.0.1:8710")
	addr := strings.TrimSpace(viper.GetString("daemon.addr"))
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	return "http://" + addr
}

func daemonGet(path string, out any) error {
	resp, err := http.Get(daemonBaseURL() + path)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()
	return decodeDaemonResponse(resp, out)
}

func daemonPost(path string, body io.Reader, out any) error {
	resp, err := http.Post(daemonBaseURL()+path, "application/json", body)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()
	return decodeDaemonResponse(resp, out)
}

func decodeDaemonResponse(resp *http.Response, out any) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("daemon error (%d)", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
