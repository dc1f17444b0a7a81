package swap

import (
	"context"
	"fmt"
)

const (
	stagingSuffix = ".saveswap-tmp"
	asideSuffix   = ".saveswap-old"
)

// Archiver copies directory trees between the live app-data directory and
// the backup location through the privileged Executor.
//
// A plain recursive copy under a different effective user loses the original
// ownership, so every copy first captures the source's ownership triple.
// Capture and re-application are best effort: a usable copy without exact
// ownership beats no copy. The copy itself is fatal on failure and never retried.
type Archiver struct {
	exec      Executor
	inspector *Inspector
	logger    Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(exec Executor, inspector *Inspector, logger Logger) *Archiver {
	return &Archiver{exec: exec, inspector: inspector, logger: logger}
}

// Export copies src into dst, replacing any previous snapshot at dst, then
// re-applies src's ownership to dst. The copy goes to a staging sibling first,
// so a failed copy leaves the previous snapshot untouched.
// It returns the captured ownership of src (nil if capture failed) and the
// warnings raised by best-effort steps.
func (a *Archiver) Export(ctx context.Context, src, dst string) (*FilePermissions, []string, error) {
	var warnings []string

	perms, err := a.inspector.GetFilePermissions(ctx, src)
	if err != nil {
		warnings = append(warnings, a.warn("capturing source permissions failed", src, err))
		perms = nil
	}

	staging := dst + stagingSuffix
	if err := a.step(ctx, copyTreeCommand(src, staging)); err != nil {
		a.cleanup(ctx, staging)
		return nil, warnings, fmt.Errorf("%w: copying %s to %s: %w", ErrCopyFailed, src, dst, err)
	}
	if err := ctx.Err(); err != nil {
		a.cleanup(ctx, staging)
		return nil, warnings, err
	}
	if err := promote(ctx, a.exec, a.logger, staging, dst); err != nil {
		return nil, warnings, fmt.Errorf("%w: replacing snapshot at %s: %w", ErrCopyFailed, dst, err)
	}

	if perms != nil {
		if err := a.inspector.Apply(ctx, dst, perms); err != nil {
			warnings = append(warnings, a.warn("reapplying permissions failed", dst, err))
		}
	}

	a.logger.Info("tree exported", "src", src, "dst", dst)
	return perms, warnings, nil
}

// Import copies src over the live directory dst. The live directory is moved
// aside first and restored if the copy fails. Import does not re-apply
// ownership; it returns the captured ownership of src so the caller can
// decide which triple to apply.
func (a *Archiver) Import(ctx context.Context, src, dst string) (*FilePermissions, []string, error) {
	var warnings []string

	perms, err := a.inspector.GetFilePermissions(ctx, src)
	if err != nil {
		warnings = append(warnings, a.warn("capturing source permissions failed", src, err))
		perms = nil
	}

	aside := dst + asideSuffix
	moveAside := "rm -rf " + Quote(aside) + " && if [ -e " + Quote(dst) + " ]; then mv " + Quote(dst) + " " + Quote(aside) + "; fi"
	if err := a.step(ctx, moveAside); err != nil {
		return nil, warnings, fmt.Errorf("%w: moving %s aside: %w", ErrCopyFailed, dst, err)
	}

	if err := a.step(ctx, copyTreeCommand(src, dst)); err != nil {
		// Background context: the rollback must run even when ctx was cancelled.
		rollback := "rm -rf " + Quote(dst) + " && if [ -e " + Quote(aside) + " ]; then mv " + Quote(aside) + " " + Quote(dst) + "; fi"
		if _, rbErr := a.exec.Execute(context.WithoutCancel(ctx), rollback); rbErr != nil {
			a.logger.Error("rollback of live directory failed", "path", dst, "aside", aside, "error", rbErr)
			return nil, warnings, fmt.Errorf("%w: copying %s to %s: %w (rollback failed: %v)", ErrCopyFailed, src, dst, err, rbErr)
		}
		return nil, warnings, fmt.Errorf("%w: copying %s to %s: %w", ErrCopyFailed, src, dst, err)
	}

	if _, err := a.exec.Execute(ctx, "rm -rf "+Quote(aside)); err != nil {
		warnings = append(warnings, a.warn("removing previous live directory failed", aside, err))
	}

	a.logger.Info("tree imported", "src", src, "dst", dst)
	return perms, warnings, nil
}

// Remove deletes a directory tree.
func (a *Archiver) Remove(ctx context.Context, path string) error {
	if _, err := a.exec.Execute(ctx, "rm -rf "+Quote(path)); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// step runs one command, checking for cancellation first so a long sequence
// stops between phases.
func (a *Archiver) step(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := a.exec.Execute(ctx, cmd)
	return err
}

func (a *Archiver) cleanup(ctx context.Context, path string) {
	if _, err := a.exec.Execute(context.WithoutCancel(ctx), "rm -rf "+Quote(path)); err != nil {
		a.logger.Warn("cleanup failed", "path", path, "error", err)
	}
}

func (a *Archiver) warn(msg, path string, err error) string {
	a.logger.Warn(msg, "path", path, "error", err)
	return fmt.Sprintf("%s for %s: %v", msg, path, err)
}

// promote installs the complete tree at staging as dst. The previous dst is
// moved aside and only removed once staging is in place. If the rename fails
// the previous dst is put back and staging is kept, so neither copy is lost.
func promote(ctx context.Context, exec Executor, logger Logger, staging, dst string) error {
	aside := dst + asideSuffix
	moveAside := "rm -rf " + Quote(aside) + " && if [ -e " + Quote(dst) + " ]; then mv " + Quote(dst) + " " + Quote(aside) + "; fi"
	if _, err := exec.Execute(ctx, moveAside); err != nil {
		return fmt.Errorf("moving %s aside: %w", dst, err)
	}

	if _, err := exec.Execute(ctx, "mv "+Quote(staging)+" "+Quote(dst)); err != nil {
		putBack := "if [ -e " + Quote(aside) + " ] && [ ! -e " + Quote(dst) + " ]; then mv " + Quote(aside) + " " + Quote(dst) + "; fi"
		if _, rbErr := exec.Execute(context.WithoutCancel(ctx), putBack); rbErr != nil {
			logger.Error("restoring previous copy failed", "path", dst, "aside", aside, "error", rbErr)
			return fmt.Errorf("installing %s: %w (previous copy left at %s: %v)", staging, err, aside, rbErr)
		}
		logger.Warn("new copy kept in staging", "path", staging)
		return fmt.Errorf("installing %s: %w", staging, err)
	}

	if _, err := exec.Execute(ctx, "rm -rf "+Quote(aside)); err != nil {
		logger.Warn("removing previous copy failed", "path", aside, "error", err)
	}
	return nil
}

// copyTreeCommand recreates dst and copies the contents of src into it,
// preserving attributes where the copying user can.
func copyTreeCommand(src, dst string) string {
	return "rm -rf " + Quote(dst) + " && mkdir -p " + Quote(dst) + " && cp -a " + Quote(joinPath(src, ".")) + " " + Quote(joinPath(dst, ""))
}
