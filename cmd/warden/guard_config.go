package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/quarrylabs/warden/db"
	"github.com/quarrylabs/warden/guard"
	"github.com/quarrylabs/warden/internal/pathutil"
	"github.com/quarrylabs/warden/tools"
)

func guardFromViper(log *slog.Logger, registry *tools.Registry) *guard.Guard {
	viper.SetDefault("guard.enabled", true)
	viper.SetDefault("guard.approvals.enabled", true)
	viper.SetDefault("guard.archive.enabled", true)

	if !viper.GetBool("guard.enabled") {
		if log != nil {
			log.Warn("guard_disabled", "reason", "guard.enabled=false in config")
		}
		return nil
	}
	if log == nil {
		log = slog.Default()
	}

	cfg := guard.Config{
		Enabled: true,
		Policy: guard.PolicyConfig{
			StrikeLimit: viper.GetInt("guard.policy.strike_limit"),
		},
		Audit: guard.AuditConfig{
			JSONLPath:      strings.TrimSpace(viper.GetString("guard.audit.jsonl_path")),
			RotateMaxBytes: viper.GetInt64("guard.audit.rotate_max_bytes"),
		},
		Approvals: guard.ApprovalsConfig{
			Enabled: viper.GetBool("guard.approvals.enabled"),
			Timeout: viper.GetDuration("guard.approvals.timeout"),
		},
		Archive: guard.ArchiveConfig{
			Enabled: viper.GetBool("guard.archive.enabled"),
			DSN:     viper.GetString("db.dsn"),
		},
	}

	if policyPath := strings.TrimSpace(viper.GetString("guard.policy_file")); policyPath != "" {
		policy, err := guard.LoadPolicyFile(pathutil.ExpandHomePath(policyPath))
		if err != nil {
			log.Warn("guard_policy_file_error", "path", policyPath, "error", err.Error())
		} else {
			if cfg.Policy.StrikeLimit > 0 {
				policy.StrikeLimit = cfg.Policy.StrikeLimit
			}
			cfg.Policy = policy
		}
	}

	jsonlPath := cfg.Audit.JSONLPath
	if jsonlPath == "" {
		home, err := os.UserHomeDir()
		if err == nil && strings.TrimSpace(home) != "" {
			jsonlPath = filepath.Join(home, ".warden", "guard_audit.jsonl")
		}
	}
	jsonlPath = pathutil.ExpandHomePath(jsonlPath)

	opts := []guard.Option{
		guard.WithLogger(log),
		guard.WithToolSource(tools.GuardSource(registry)),
	}

	if strings.TrimSpace(jsonlPath) != "" {
		sink, err := guard.NewJSONLAuditSink(jsonlPath, cfg.Audit.RotateMaxBytes)
		if err != nil {
			log.Warn("guard_audit_sink_error", "error", err.Error())
		} else {
			opts = append(opts, guard.WithAuditSink(sink))
		}
	}

	if cfg.Archive.Enabled {
		dsn, err := db.ResolveSQLiteDSN(cfg.Archive.DSN)
		if err != nil {
			log.Warn("guard_archive_dsn_error", "error", err.Error())
		} else {
			archive, err := guard.NewSQLiteApprovalArchive(dsn)
			if err != nil {
				log.Warn("guard_archive_error", "error", err.Error())
			} else {
				opts = append(opts, guard.WithApprovalArchive(archive))
			}
		}
	}

	log.Info("guard_enabled",
		"audit_jsonl", jsonlPath,
		"approvals_enabled", cfg.Approvals.Enabled,
		"archive_enabled", cfg.Archive.Enabled,
	)

	return guard.New(cfg, opts...)
}
