package inventory

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"

	"github.com/benchfleet/benchfleet/internal/pathutil"
)

// LocalMarker is the host-line directive that marks a node as the local
// machine rather than an SSH target.
const LocalMarker = "connection=local"

// Host represents one node from the inventory with resolved connection details.
type Host struct {
	Name         string // identity label, first token of the host line
	Addr         string // address to connect to (defaults to Name)
	User         string
	Port         int
	IdentityFile string
	ProxyJump    string
	Connection   string            // "ssh" (default) or "local"
	Vars         map[string]string // unrecognized key=value directives
}

// IsLocal reports whether the host runs commands on the local machine.
func (h Host) IsLocal() bool {
	return h.Connection == "local"
}

// Inventory is an ordered set of hosts grouped by section.
type Inventory struct {
	Hosts  []Host
	Groups map[string][]string // section name -> host names, file order
	order  []string            // section names, file order
}

// Parse reads an INI-style inventory: section headers like [all], host lines
// of the form "name key=value ...", comments starting with # or ;. Duplicate
// host names collapse to the first occurrence; later lines may still add
// the name to additional groups.
func Parse(r io.Reader) (*Inventory, error) {
	inv := &Inventory{Groups: make(map[string][]string)}
	seen := make(map[string]int) // name -> index into inv.Hosts

	section := "all"
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("line %d: unterminated section header %q", lineNo, line)
			}
			section = strings.TrimSpace(line[1 : len(line)-1])
			if section == "" {
				return nil, fmt.Errorf("line %d: empty section name", lineNo)
			}
			if _, ok := inv.Groups[section]; !ok {
				inv.Groups[section] = nil
				inv.order = append(inv.order, section)
			}
			continue
		}

		host, err := parseHostLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		if _, ok := inv.Groups[section]; !ok {
			inv.Groups[section] = nil
			inv.order = append(inv.order, section)
		}
		if !contains(inv.Groups[section], host.Name) {
			inv.Groups[section] = append(inv.Groups[section], host.Name)
		}

		if _, dup := seen[host.Name]; dup {
			continue
		}
		seen[host.Name] = len(inv.Hosts)
		inv.Hosts = append(inv.Hosts, host)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}

	return inv, nil
}

// parseHostLine parses "name key=value ..." into a Host. Recognized keys are
// host, user, port, identity_file, proxy_jump and connection; anything else
// is kept in Vars.
func parseHostLine(line string) (Host, error) {
	fields := strings.Fields(line)
	host := Host{Name: fields[0], Addr: fields[0], Port: 22, Connection: "ssh"}

	for _, f := range fields[1:] {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			return Host{}, fmt.Errorf("host %q: directive %q is not key=value", host.Name, f)
		}
		switch key {
		case "host":
			host.Addr = value
		case "user":
			host.User = value
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil || port <= 0 {
				return Host{}, fmt.Errorf("host %q: invalid port %q", host.Name, value)
			}
			host.Port = port
		case "identity_file":
			host.IdentityFile = pathutil.ExpandHome(value)
		case "proxy_jump":
			host.ProxyJump = value
		case "connection":
			if value != "ssh" && value != "local" {
				return Host{}, fmt.Errorf("host %q: unknown connection %q", host.Name, value)
			}
			host.Connection = value
		default:
			if host.Vars == nil {
				host.Vars = make(map[string]string)
			}
			host.Vars[key] = value
		}
	}

	return host, nil
}

// Load reads and parses an inventory file, then fills missing SSH fields
// from the user's ~/.ssh/config for every remote host.
func Load(path string) (*Inventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}
	defer f.Close()

	inv, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(inv.Hosts) == 0 {
		return nil, fmt.Errorf("inventory %s declares no hosts", path)
	}

	for i := range inv.Hosts {
		if !inv.Hosts[i].IsLocal() {
			MergeSSHConfig(&inv.Hosts[i])
		}
	}

	return inv, nil
}

// HasLocalMarker reports whether the file at path contains the local
// connection marker. The file only has to be readable; it is not parsed.
func HasLocalMarker(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), LocalMarker)
}

// WriteLocal seeds a single-host local inventory at path. It never
// overwrites: an existing file is left alone and reported via the bool.
func WriteLocal(path string) (created bool, err error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create inventory directory: %w", err)
		}
	}
	content := "[all]\nlocalhost " + LocalMarker + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write inventory file: %w", err)
	}
	return true, nil
}

// HasLocalOnly reports whether every host in the inventory is local.
func (inv *Inventory) HasLocalOnly() bool {
	if len(inv.Hosts) == 0 {
		return false
	}
	for _, h := range inv.Hosts {
		if !h.IsLocal() {
			return false
		}
	}
	return true
}

// Names returns all host names in file order.
func (inv *Inventory) Names() []string {
	names := make([]string, len(inv.Hosts))
	for i, h := range inv.Hosts {
		names[i] = h.Name
	}
	return names
}

// Get returns the host with the given name.
func (inv *Inventory) Get(name string) (Host, bool) {
	for _, h := range inv.Hosts {
		if h.Name == name {
			return h, true
		}
	}
	return Host{}, false
}

// GroupNames returns the section names in file order.
func (inv *Inventory) GroupNames() []string {
	return append([]string(nil), inv.order...)
}

// Filter selects hosts by pattern: "" and "all" select everything, an exact
// group name selects that group, anything else is a glob matched against
// host names. Results are deduplicated and keep inventory order. A pattern
// matching nothing is an error.
func (inv *Inventory) Filter(pattern string) ([]Host, error) {
	if pattern == "" || pattern == "all" {
		return append([]Host(nil), inv.Hosts...), nil
	}

	if names, ok := inv.Groups[pattern]; ok {
		hosts := make([]Host, 0, len(names))
		for _, h := range inv.Hosts {
			if contains(names, h.Name) {
				hosts = append(hosts, h)
			}
		}
		if len(hosts) == 0 {
			return nil, fmt.Errorf("group %q has no hosts", pattern)
		}
		return hosts, nil
	}

	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid host pattern %q: %w", pattern, err)
	}

	var matched []Host
	for _, h := range inv.Hosts {
		if ok, _ := path.Match(pattern, h.Name); ok {
			matched = append(matched, h)
		}
	}
	if len(matched) == 0 {
		available := inv.Names()
		sort.Strings(available)
		return nil, fmt.Errorf("no hosts match %q (inventory has: %s)", pattern, strings.Join(available, ", "))
	}

	return matched, nil
}

// MergeSSHConfig reads ~/.ssh/config and fills in User, Port, IdentityFile,
// and ProxyJump for the host if they are not already set. Lookups use the
// Addr field (the actual SSH target), not the display Name.
func MergeSSHConfig(host *Host) {
	lookup := host.Addr
	if lookup == "" {
		lookup = host.Name
	}

	if host.User == "" {
		if user := sshConfigGet(lookup, "User"); user != "" {
			host.User = user
		}
	}

	if host.Port == 22 {
		if portStr := sshConfigGet(lookup, "Port"); portStr != "" {
			if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
				host.Port = port
			}
		}
	}

	if host.IdentityFile == "" {
		if identity := sshConfigGet(lookup, "IdentityFile"); identity != "" {
			expanded := pathutil.ExpandHome(identity)
			if _, err := os.Stat(expanded); err == nil {
				host.IdentityFile = expanded
			}
		}
	}

	if host.ProxyJump == "" {
		if proxy := sshConfigGet(lookup, "ProxyJump"); proxy != "" {
			host.ProxyJump = proxy
		}
	}
}

// sshConfigGet looks up a key for a host in the user's SSH config.
func sshConfigGet(hostname, key string) string {
	val, err := ssh_config.GetStrict(hostname, key)
	if err != nil {
		return ""
	}
	return val
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
