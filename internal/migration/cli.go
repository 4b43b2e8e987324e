package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI 在 Migrator 之上提供面向终端的输出
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI 创建 CLI，默认输出到 stdout
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

// step 打印开始提示，执行 fn，成功后打印当前版本
func (c *CLI) step(ctx context.Context, start, done string, fn func() error) error {
	fmt.Fprintln(c.output, start)
	if err := fn(); err != nil {
		return err
	}
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "%s Current version: %d\n", done, info.CurrentVersion)
	return nil
}

func (c *CLI) RunUp(ctx context.Context) error {
	return c.step(ctx, "Running migrations...", "Migrations complete.", func() error {
		return c.migrator.Up(ctx)
	})
}

func (c *CLI) RunDown(ctx context.Context) error {
	return c.step(ctx, "Rolling back last migration...", "Rollback complete.", func() error {
		return c.migrator.Down(ctx)
	})
}

func (c *CLI) RunDownAll(ctx context.Context) error {
	return c.step(ctx, "Rolling back all migrations...", "All migrations rolled back.", func() error {
		return c.migrator.DownAll(ctx)
	})
}

// RunSteps n 为正时前进 n 个版本，为负时回滚
func (c *CLI) RunSteps(ctx context.Context, n int) error {
	start := fmt.Sprintf("Applying %d migration(s)...", n)
	if n < 0 {
		start = fmt.Sprintf("Rolling back %d migration(s)...", -n)
	}
	return c.step(ctx, start, "Complete.", func() error {
		return c.migrator.Steps(ctx, n)
	})
}

func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	return c.step(ctx, fmt.Sprintf("Migrating to version %d...", version), "Migration complete.", func() error {
		return c.migrator.Goto(ctx, version)
	})
}

// RunForce 只改写版本号，用于修复 dirty 状态
func (c *CLI) RunForce(ctx context.Context, version int) error {
	return c.step(ctx, fmt.Sprintf("Forcing version to %d...", version), "Version forced.", func() error {
		return c.migrator.Force(ctx, version)
	})
}

func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	switch {
	case version == 0:
		fmt.Fprintln(c.output, "No migrations applied yet.")
	case dirty:
		fmt.Fprintf(c.output, "Current version: %d (dirty)\n", version)
	default:
		fmt.Fprintf(c.output, "Current version: %d\n", version)
	}
	return nil
}

// RunStatus 以表格列出每个版本及汇总
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.output, "No migrations found.")
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	applied := 0
	for _, s := range statuses {
		state := "Pending"
		switch {
		case s.Dirty:
			state = "Dirty"
		case s.Applied:
			state = "Applied"
		}
		if s.Applied {
			applied++
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(c.output, "\nTotal: %d, Applied: %d, Pending: %d\n",
		len(statuses), applied, len(statuses)-applied)
	return nil
}

func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Current Version:\t", info.CurrentVersion)
	fmt.Fprintln(w, "Dirty:\t", info.Dirty)
	fmt.Fprintln(w, "Total Migrations:\t", info.TotalMigrations)
	fmt.Fprintln(w, "Applied Migrations:\t", info.AppliedMigrations)
	fmt.Fprintln(w, "Pending Migrations:\t", info.PendingMigrations)
	return w.Flush()
}
