package systemd

import (
	"strings"
	"testing"
)

func TestServeUnitDefaults(t *testing.T) {
	unit := ServeUnit(ServeOptions{HTTPAddr: ":8080"})

	for _, section := range []string{"[Unit]", "[Service]", "[Install]"} {
		if !strings.Contains(unit, section) {
			t.Errorf("unit missing section %s", section)
		}
	}

	want := "ExecStart=/usr/local/bin/factorwatch serve --policy /etc/factorwatch/policy.yaml --port 50051 --http :8080 --audit-log /var/lib/factorwatch/decisions.jsonl\n"
	if !strings.Contains(unit, want) {
		t.Errorf("expected %q in unit:\n%s", want, unit)
	}
	if !strings.Contains(unit, "User=factorwatch") {
		t.Error("unit missing User=factorwatch")
	}

	for _, directive := range []string{"NoNewPrivileges=true", "PrivateTmp=true", "ProtectSystem=strict"} {
		if !strings.Contains(unit, directive) {
			t.Errorf("unit missing security directive %s", directive)
		}
	}
}

func TestServeUnitOptions(t *testing.T) {
	unit := ServeUnit(ServeOptions{
		Binary:  "/opt/fw/factorwatch",
		Policy:  "/srv/policy.yaml",
		Profile: "office",
		Port:    6000,
		User:    "mfa",
	})

	for _, want := range []string{
		"ExecStart=/opt/fw/factorwatch serve --policy /srv/policy.yaml --port 6000 --http \"\"",
		"--profile office",
		"User=mfa",
	} {
		if !strings.Contains(unit, want) {
			t.Errorf("expected %q in unit:\n%s", want, unit)
		}
	}
}
