// Package setup bootstraps a working directory for benchfleet: it
// checks the tools the other commands depend on and seeds the starter
// inventory and config. Running it twice changes nothing.
package setup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/benchfleet/benchfleet/internal/config"
	"github.com/benchfleet/benchfleet/internal/inventory"
	"github.com/benchfleet/benchfleet/internal/localexec"
)

const (
	// StateDir holds benchfleet's working state inside the target
	// directory.
	StateDir = ".benchfleet"
	// InventoryFile and ConfigFile are the convenience artifacts seeded
	// for a single-machine start.
	InventoryFile = "host.ini"
	ConfigFile    = "config.yaml"
)

// The deploy path shells out to git on the nodes; anything from the 2.x
// line works.
const minGitMajor = 2

// Result reports what setup did, for the summary.
type Result struct {
	StateDir         string
	InventoryPath    string
	InventoryCreated bool
	ConfigPath       string
	ConfigCreated    bool
}

// Run bootstraps dir. Missing prerequisites abort before anything is
// written; a missing docker or an unreachable benchfleet binary only
// warn.
func Run(ctx context.Context, dir string) (*Result, error) {
	if err := checkPrerequisites(ctx); err != nil {
		return nil, err
	}

	res := &Result{
		StateDir:      filepath.Join(dir, StateDir),
		InventoryPath: filepath.Join(dir, InventoryFile),
		ConfigPath:    filepath.Join(dir, ConfigFile),
	}

	if err := os.MkdirAll(res.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	created, err := inventory.WriteLocal(res.InventoryPath)
	if err != nil {
		return nil, fmt.Errorf("seed inventory: %w", err)
	}
	res.InventoryCreated = created
	if created {
		log.Info().Str("path", res.InventoryPath).Msg("seeded single-host inventory")
	} else {
		log.Debug().Str("path", res.InventoryPath).Msg("inventory already present, left untouched")
	}

	created, err = config.WriteDefault(res.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("seed config: %w", err)
	}
	res.ConfigCreated = created
	if created {
		log.Info().Str("path", res.ConfigPath).Msg("seeded sample config")
	} else {
		log.Debug().Str("path", res.ConfigPath).Msg("config already present, left untouched")
	}

	selfCheck()
	return res, nil
}

// checkPrerequisites verifies git (at a usable version) and ssh are on
// PATH. docker is optional: without it, runs need --skip-deploy.
func checkPrerequisites(ctx context.Context) error {
	var missing []string

	if _, err := look("git"); err != nil {
		missing = append(missing, "git")
	} else if major, minor, err := gitVersionProbe(ctx); err != nil {
		log.Warn().Err(err).Msg("could not determine git version")
	} else if major < minGitMajor {
		return fmt.Errorf("git %d.%d is too old, need %d.0 or newer", major, minor, minGitMajor)
	}

	if _, err := look("ssh"); err != nil {
		missing = append(missing, "ssh")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing prerequisites: %s", strings.Join(missing, ", "))
	}

	if _, err := look("docker"); err != nil {
		log.Warn().Msg("docker not found; runs will need --skip-deploy")
	}
	return nil
}

// selfCheck warns when the benchfleet binary itself does not resolve on
// PATH, since the remote deploy instructions assume it does.
func selfCheck() {
	if _, err := look("benchfleet"); err != nil {
		log.Warn().Msg("benchfleet is not on PATH; add its install directory to PATH")
	}
}

var gitVersionRe = regexp.MustCompile(`git version (\d+)\.(\d+)`)

func gitVersion(ctx context.Context) (major, minor int, err error) {
	out, err := localexec.Output(ctx, "git version")
	if err != nil {
		return 0, 0, err
	}
	return parseGitVersion(out)
}

func parseGitVersion(out string) (major, minor int, err error) {
	m := gitVersionRe.FindStringSubmatch(out)
	if m == nil {
		return 0, 0, fmt.Errorf("unrecognized git version output %q", out)
	}
	major, _ = strconv.Atoi(m[1])
	minor, _ = strconv.Atoi(m[2])
	return major, minor, nil
}

// Stubbed in tests.
var (
	look            = localexec.Look
	gitVersionProbe = gitVersion
)
