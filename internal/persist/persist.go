// Package persist renders the boot-time reapplication artifacts: a
// standalone shell script that rebuilds the managed chain, and a systemd
// unit that runs it once the network and the container runtime are up.
// Rendering is pure; writing to disk is a separate step.
package persist

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/hostwall/hostwall/internal/firewall"
	"github.com/hostwall/hostwall/internal/rules"
)

// Options scope the rendered artifacts.
type Options struct {
	// Chain is the managed chain name baked into the script.
	Chain string

	// Iface, when set, confines the jump rules to one ingress interface.
	Iface string

	// ScriptPath is where the script will live; the unit's ExecStart
	// points at it.
	ScriptPath string
}

// Artifacts holds the rendered text, ready to be written.
type Artifacts struct {
	Script string
	Unit   string
}

var scriptTemplate = template.Must(template.New("script").Parse(`#!/bin/sh
# Generated by hostwall. Rebuilds the {{.Chain}} chain from scratch and
# re-installs the jump rules. Safe to run repeatedly.
set -e

iptables -t filter -N {{.Chain}} 2>/dev/null || true
iptables -t filter -F {{.Chain}}
{{range .Rules}}iptables -t filter -A {{$.Chain}} {{.}}
{{end}}
iptables -t filter -C INPUT {{.JumpSpec}} 2>/dev/null || iptables -t filter -I INPUT 1 {{.JumpSpec}}
if iptables -t filter -n -L DOCKER-USER >/dev/null 2>&1; then
    iptables -t filter -C DOCKER-USER {{.JumpSpec}} 2>/dev/null || iptables -t filter -I DOCKER-USER 1 {{.JumpSpec}}
fi
`))

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=Reapply hostwall firewall rules
After=network-online.target docker.service
Wants=network-online.target

[Service]
Type=oneshot
ExecStart={{.ScriptPath}}
RemainAfterExit=yes

[Install]
WantedBy=multi-user.target
`))

// Render produces both artifacts from an already generated rule list.
// Identical inputs yield byte-identical output. The chain name is
// interpolated into a shell script, so it gets the same shape check the
// backends apply.
func Render(list rules.RuleList, opts Options) (Artifacts, error) {
	if err := firewall.ValidateChain(opts.Chain); err != nil {
		return Artifacts{}, err
	}
	if err := firewall.ValidateIface(opts.Iface); err != nil {
		return Artifacts{}, err
	}
	if opts.ScriptPath == "" {
		return Artifacts{}, fmt.Errorf("script path must be set")
	}

	lines := make([]string, len(list))
	for i, r := range list {
		lines[i] = shellJoin(r.Spec())
	}

	jump := "-j " + opts.Chain
	if opts.Iface != "" {
		jump = "-i " + opts.Iface + " " + jump
	}

	var script bytes.Buffer
	err := scriptTemplate.Execute(&script, struct {
		Chain    string
		Rules    []string
		JumpSpec string
	}{opts.Chain, lines, jump})
	if err != nil {
		return Artifacts{}, fmt.Errorf("render script: %w", err)
	}

	var unit bytes.Buffer
	if err := unitTemplate.Execute(&unit, opts); err != nil {
		return Artifacts{}, fmt.Errorf("render unit: %w", err)
	}

	return Artifacts{Script: script.String(), Unit: unit.String()}, nil
}

// Write puts the artifacts on disk. The script must be executable; the
// unit must not be.
func Write(a Artifacts, scriptPath, unitPath string) error {
	for _, dir := range []string{filepath.Dir(scriptPath), filepath.Dir(unitPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(scriptPath, []byte(a.Script), 0o755); err != nil {
		return fmt.Errorf("write script: %w", err)
	}
	if err := os.WriteFile(unitPath, []byte(a.Unit), 0o644); err != nil {
		return fmt.Errorf("write unit: %w", err)
	}
	return nil
}

// shellJoin quotes any argument the shell would split.
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t\"'") {
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}
