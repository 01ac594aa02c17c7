package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/quarrylabs/warden/db"
	"github.com/quarrylabs/warden/tools"
	"github.com/quarrylabs/warden/tools/builtin"
)

func registryFromViper(log *slog.Logger) *tools.Registry {
	viper.SetDefault("tools.read_file.max_bytes", 256*1024)
	viper.SetDefault("tools.read_file.deny_paths", []string{"config.yaml", ".env"})

	viper.SetDefault("tools.write_file.max_bytes", 512*1024)

	viper.SetDefault("tools.url_fetch.enabled", true)
	viper.SetDefault("tools.url_fetch.timeout", 30*time.Second)
	viper.SetDefault("tools.url_fetch.max_bytes", int64(512*1024))

	viper.SetDefault("tools.git_push.enabled", false)
	viper.SetDefault("tools.git_push.timeout", 60*time.Second)

	viper.SetDefault("tools.database.enabled", false)
	viper.SetDefault("tools.database.max_rows", 200)

	r := tools.NewRegistry()
	r.Register(builtin.NewEchoTool())

	r.Register(builtin.NewReadFileTool(builtin.ReadFileOptions{
		MaxBytes:    viper.GetInt64("tools.read_file.max_bytes"),
		DenyPaths:   viper.GetStringSlice("tools.read_file.deny_paths"),
		AllowedDirs: viper.GetStringSlice("tools.read_file.allowed_dirs"),
	}))

	r.Register(builtin.NewWriteFileTool(
		viper.GetInt("tools.write_file.max_bytes"),
		strings.TrimSpace(viper.GetString("file_cache_dir")),
	))

	if viper.GetBool("tools.url_fetch.enabled") {
		r.Register(builtin.NewURLFetchTool(
			true,
			viper.GetDuration("tools.url_fetch.timeout"),
			viper.GetInt64("tools.url_fetch.max_bytes"),
			strings.TrimSpace(viper.GetString("user_agent")),
		))
	}

	if viper.GetBool("tools.git_push.enabled") {
		repoDir := viper.GetString("tools.git_push.repo_dir")
		timeout := viper.GetDuration("tools.git_push.timeout")
		r.Register(builtin.NewGitStatusTool(true, repoDir, timeout))
		r.Register(builtin.NewGitPushTool(true, repoDir, timeout))
	}

	if viper.GetBool("tools.database.enabled") {
		sqlDB, err := db.Open(context.Background(), dbConfigFromViper())
		if err != nil {
			log.Warn("database_tool_disabled", "error", err.Error())
		} else {
			r.Register(builtin.NewDatabaseTool(sqlDB, viper.GetInt("tools.database.max_rows")))
		}
	}

	return r
}

func dbConfigFromViper() db.Config {
	cfg := db.Config{
		DSN:             viper.GetString("db.dsn"),
		BusyTimeoutMs:   viper.GetInt("db.busy_timeout_ms"),
		WAL:             viper.GetBool("db.wal"),
		ForeignKeys:     viper.GetBool("db.foreign_keys"),
		MaxOpenConns:    viper.GetInt("db.max_open_conns"),
		ConnMaxLifetime: viper.GetDuration("db.conn_max_lifetime"),
	}
	if cfg.BusyTimeoutMs <= 0 {
		cfg.BusyTimeoutMs = 5000
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 1
	}
	return cfg
}
