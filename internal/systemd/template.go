// Package systemd renders the unit file that runs the selection server.
package systemd

import (
	"fmt"
	"strings"
)

// ServeOptions are the flags baked into the unit's ExecStart line.
type ServeOptions struct {
	Binary   string
	Policy   string
	Profile  string
	Port     int
	HTTPAddr string
	AuditLog string
	User     string
}

func (o ServeOptions) withDefaults() ServeOptions {
	if o.Binary == "" {
		o.Binary = "/usr/local/bin/factorwatch"
	}
	if o.Policy == "" {
		o.Policy = "/etc/factorwatch/policy.yaml"
	}
	if o.Port == 0 {
		o.Port = 50051
	}
	if o.AuditLog == "" {
		o.AuditLog = "/var/lib/factorwatch/decisions.jsonl"
	}
	if o.User == "" {
		o.User = "factorwatch"
	}
	return o
}

// ServeUnit returns the systemd unit for factorwatch.service.
func ServeUnit(opts ServeOptions) string {
	o := opts.withDefaults()

	args := []string{
		o.Binary, "serve",
		"--policy", o.Policy,
		"--port", fmt.Sprint(o.Port),
		"--http", o.HTTPAddr,
		"--audit-log", o.AuditLog,
	}
	if o.HTTPAddr == "" {
		args[7] = `""`
	}
	if o.Profile != "" {
		args = append(args, "--profile", o.Profile)
	}

	return fmt.Sprintf(`[Unit]
Description=factorwatch MFA factor selection server
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
User=%s
ExecStart=%s
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure
RestartSec=2
NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=strict
ProtectHome=true
ReadWritePaths=/var/lib/factorwatch
StateDirectory=factorwatch

[Install]
WantedBy=multi-user.target
`, o.User, strings.Join(args, " "))
}
