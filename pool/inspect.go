package pool

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/appfleet/appfleet/group"
)

// Inspect renders a human-readable table of every group and process:
// ragged columns, tab-separated, flushed once at the end.
func (p *Pool) Inspect() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "GROUP\tPID\tGUPID\tSTATE\tSESSIONS\tPROCESSED\tBUSYNESS\n") //nolint:errcheck

	for _, name := range sortedGroupNames(p.groups) {
		g := p.groups[name]
		procs := g.AllProcesses()
		sort.Slice(procs, func(i, j int) bool { return procs[i].Gupid < procs[j].Gupid })
		if len(procs) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\t-\n", name) //nolint:errcheck
			continue
		}
		for _, proc := range procs {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%d\t%.2f\n", //nolint:errcheck
				name, proc.Pid, proc.Gupid, proc.Enabled, proc.Sessions(), proc.Processed, proc.Busyness())
		}
	}
	w.Flush() //nolint:errcheck
	return buf.String()
}

func sortedGroupNames(groups map[string]*group.Group) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// xmlInfo mirrors the status document format existing monitoring tooling
// already parses: <info><supergroups><supergroup><group><processes><process>...
type xmlInfo struct {
	XMLName     xml.Name        `xml:"info"`
	Supergroups []xmlSupergroup `xml:"supergroups>supergroup"`
}

type xmlSupergroup struct {
	Name  string   `xml:"name"`
	Group xmlGroup `xml:"group"`
}

type xmlGroup struct {
	Name      string       `xml:"name"`
	AppRoot   string       `xml:"app_root"`
	Secret    string       `xml:"secret,omitempty"`
	Processes []xmlProcess `xml:"processes>process"`
}

type xmlProcess struct {
	Pid       int    `xml:"pid"`
	Gupid     string `xml:"gupid"`
	Sessions  int    `xml:"sessions"`
	Processed uint64 `xml:"processed_count"`
	Enabled   string `xml:"enabled"`
}

// ToXML renders the same snapshot Inspect does, in the XML shape this
// pool's existing consumers already parse. includeSecrets controls whether
// each group's detach secret (the same value DetachGroupBySecret accepts)
// is rendered — callers without admin privilege should pass false.
func (p *Pool) ToXML(includeSecrets bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	info := xmlInfo{}
	for _, name := range sortedGroupNames(p.groups) {
		g := p.groups[name]
		procs := g.AllProcesses()
		sort.Slice(procs, func(i, j int) bool { return procs[i].Gupid < procs[j].Gupid })

		xg := xmlGroup{Name: name, AppRoot: g.Options.AppRoot}
		if includeSecrets {
			xg.Secret = g.Secret
		}
		for _, proc := range procs {
			xg.Processes = append(xg.Processes, xmlProcess{
				Pid:       proc.Pid,
				Gupid:     proc.Gupid,
				Sessions:  proc.Sessions(),
				Processed: proc.Processed,
				Enabled:   proc.Enabled.String(),
			})
		}
		info.Supergroups = append(info.Supergroups, xmlSupergroup{Name: name, Group: xg})
	}

	out, err := xml.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", err
	}
	return xml.Header + string(out), nil
}
