package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quarrylabs/warden/agent"
	"github.com/quarrylabs/warden/internal/clifmt"
)

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Run a single task and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task := strings.TrimSpace(strings.Join(args, " "))
		log := newLogger()

		registry := registryFromViper(log)
		g := guardFromViper(log, registry)
		if g != nil {
			defer g.Close()
		}

		client, model, err := llmClientFromViper(cmd.Context())
		if err != nil {
			return err
		}

		viper.SetDefault("agent.max_steps", 20)
		engine := agent.New(client, registry, g,
			agent.WithLogger(log),
			agent.WithModel(model),
			agent.WithMaxSteps(viper.GetInt("agent.max_steps")),
		)

		timeout := viper.GetDuration("agent.timeout")
		if timeout <= 0 {
			timeout = 10 * time.Minute
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		start := time.Now()
		final, agentCtx, err := engine.Run(ctx, task, agent.RunOptions{
			RunID:   uuid.NewString(),
			Channel: "cli",
		})
		if err != nil {
			return err
		}

		if final.Pending {
			if out, ok := final.Output.(agent.PendingOutput); ok {
				fmt.Println(clifmt.Warn("run paused: approval required"))
				fmt.Printf("%s %s\n", clifmt.Key("tool:"), out.Tool)
				fmt.Printf("%s %s\n", clifmt.Key("approval_request_id:"), out.ApprovalRequestID)
				fmt.Println(clifmt.Dim("resolve it with: warden approvals approve " + out.ApprovalRequestID))
				return nil
			}
		}

		fmt.Println(clifmt.Headerf("result (%d steps, %s)", len(agentCtx.Steps), time.Since(start).Round(time.Millisecond)))
		switch out := final.Output.(type) {
		case string:
			fmt.Println(out)
		default:
			b, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(b))
		}
		return nil
	},
}
