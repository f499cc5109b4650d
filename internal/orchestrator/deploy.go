package orchestrator

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/benchfleet/benchfleet/internal/buildtool"
	"github.com/benchfleet/benchfleet/internal/executor"
	"github.com/benchfleet/benchfleet/internal/results"
)

const (
	// remoteBundlePath is where the bundle lands on every node before
	// extraction.
	remoteBundlePath = "/tmp/benchfleet-bundle.tar.gz"
	// remoteBinDir is where extracted benchmark binaries live on the
	// nodes. Bundle-mode commands get it prepended to PATH.
	remoteBinDir = "$HOME/.benchfleet/bin"
)

// Deploy prepares every node for the run. With a container image, each
// node pulls it and recreates the workspace container; without one, the
// locally built benchmark binaries are bundled and shipped out. Any
// node failing to deploy aborts the run.
func (o *Orchestrator) Deploy(ctx context.Context) error {
	if o.image != "" {
		return o.deployImage(ctx)
	}
	return o.deployBundle(ctx)
}

func (o *Orchestrator) deployImage(ctx context.Context) error {
	hosts := o.hosts()
	log.Info().Str("image", o.image).Int("nodes", len(hosts)).Msg("deploying container image")

	// The GPU flag is decided on the node itself so CPU-only boxes can
	// share the fleet with GPU ones.
	command := fmt.Sprintf(
		"docker pull %[1]s && (docker rm -f %[2]s >/dev/null 2>&1 || true) && "+
			"docker run -d --name %[2]s --network host "+
			"$(command -v nvidia-smi >/dev/null 2>&1 && echo --gpus all) %[1]s sleep infinity",
		o.image, containerName)

	if err := firstFailure(o.exec.Execute(ctx, hosts, command)); err != nil {
		return fmt.Errorf("deploy image: %w", err)
	}
	return nil
}

func (o *Orchestrator) deployBundle(ctx context.Context) error {
	bundle := filepath.Join(os.TempDir(), fmt.Sprintf("benchfleet-bundle-%d.tar.gz", os.Getpid()))
	count, err := writeBundle(o.bundleDir, bundle, buildtool.Targets())
	if err != nil {
		return err
	}
	defer os.Remove(bundle)

	locals, remotes := o.splitHosts()
	log.Info().Int("binaries", count).Int("nodes", len(locals)+len(remotes)).Msg("deploying benchmark bundle")

	if len(remotes) > 0 {
		if o.push == nil {
			return fmt.Errorf("no transfer channel configured for remote nodes")
		}
		for _, res := range o.push.Push(ctx, remotes, bundle, remoteBundlePath, nil) {
			if res.Err != nil {
				return fmt.Errorf("push bundle to %s: %w", res.Node, res.Err)
			}
			log.Debug().Str("host", res.Node).Int64("bytes", res.Bytes).Str("sha256", res.SHA256).Msg("bundle pushed")
		}
	}
	if len(locals) > 0 {
		// cp through the executor so local nodes share the extract path
		// below.
		stage := fmt.Sprintf("cp %s %s", bundle, remoteBundlePath)
		if err := firstFailure(o.exec.Execute(ctx, locals, stage)); err != nil {
			return fmt.Errorf("stage bundle locally: %w", err)
		}
	}

	extract := fmt.Sprintf("mkdir -p %[1]s && tar -xzf %[2]s -C %[1]s && chmod +x %[1]s/*",
		remoteBinDir, remoteBundlePath)
	if err := firstFailure(o.exec.Execute(ctx, o.hosts(), extract)); err != nil {
		return fmt.Errorf("extract bundle: %w", err)
	}
	return nil
}

// writeBundle tars the available benchmark binaries from srcDir into a
// gzipped archive at destPath. Binaries that were never built are left
// out with a warning; an empty bundle is an error.
func writeBundle(srcDir, destPath string, names []string) (int, error) {
	f, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create bundle: %w", err)
	}
	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)

	count := 0
	for _, name := range names {
		path := filepath.Join(srcDir, name)
		if err := addBundleFile(tw, path, name); err != nil {
			if os.IsNotExist(err) {
				log.Warn().Str("binary", path).Msg("not built, leaving out of bundle")
				continue
			}
			f.Close()
			os.Remove(destPath)
			return 0, err
		}
		count++
	}

	if err := tw.Close(); err == nil {
		err = gw.Close()
		if err == nil {
			err = f.Close()
		}
	}
	if err != nil {
		os.Remove(destPath)
		return 0, fmt.Errorf("finish bundle: %w", err)
	}

	if count == 0 {
		os.Remove(destPath)
		return 0, fmt.Errorf("no benchmark binaries under %s, run the build first", srcDir)
	}
	return count, nil
}

func addBundleFile(tw *tar.Writer, path, name string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return fmt.Errorf("bundle %s: %w", name, err)
	}
	hdr.Name = name
	hdr.Mode = 0o755
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("bundle %s: %w", name, err)
	}
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("bundle %s: %w", name, err)
	}
	defer src.Close()
	if _, err := io.Copy(tw, src); err != nil {
		return fmt.Errorf("bundle %s: %w", name, err)
	}
	return nil
}

// wrapCommand adapts a rendered benchmark command to the deploy mode:
// docker exec in container mode, a PATH prefix in bundle mode, and
// untouched in no-docker mode.
func (o *Orchestrator) wrapCommand(command string) string {
	switch {
	case o.skipDeploy:
		return command
	case o.image != "":
		return fmt.Sprintf("docker exec %s sh -c %s", containerName, shellQuote(command))
	default:
		return fmt.Sprintf("export PATH=%s:$PATH; %s", remoteBinDir, command)
	}
}

// shellQuote wraps s in single quotes for safe embedding in a shell
// command line.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// firstFailure returns the first result that errored or exited nonzero.
func firstFailure(rs []*executor.HostResult) error {
	for _, r := range rs {
		if r.Err != nil {
			return fmt.Errorf("%s: %w", r.Host, r.Err)
		}
		if r.ExitCode != 0 {
			detail := strings.TrimSpace(results.Tail(r.Stderr, 400))
			if detail == "" {
				detail = strings.TrimSpace(results.Tail(r.Stdout, 400))
			}
			return fmt.Errorf("%s: exit %d: %s", r.Host, r.ExitCode, detail)
		}
	}
	return nil
}
