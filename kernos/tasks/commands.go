package tasks

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"hwkern/kernos/kernel"
)

var errUsage = errors.New("usage")

func registerCommands(r *registry) error {
	for _, cmd := range []command{
		{Name: "help", Aliases: []string{"?"}, Usage: "help", Desc: "list commands", Run: cmdHelp},
		{Name: "clear", Usage: "clear", Desc: "clear the console", Run: cmdClear},
		{Name: "echo", Usage: "echo [args...]", Desc: "print arguments", Run: cmdEcho},
		{Name: "ps", Aliases: []string{"top"}, Usage: "ps", Desc: "print the activity table", Run: cmdPs},
		{Name: "uptime", Usage: "uptime", Desc: "RTC interrupts seen", Run: cmdUptime},
		{Name: "vm", Usage: "vm", Desc: "guest state", Run: cmdVm},
		{Name: "crash", Usage: "crash [msg]", Desc: "start a thread that faults", Run: cmdCrash},
		{Name: "migrate", Usage: "migrate <cpu>", Desc: "move the shell to another cpu", Run: cmdMigrate},
	} {
		if err := r.register(cmd); err != nil {
			return err
		}
	}
	return nil
}

func cmdHelp(ctx *kernel.Context, s *Shell, _ []string) error {
	var b strings.Builder
	for _, name := range s.reg.names() {
		cmd, _ := s.reg.resolve(name)
		fmt.Fprintf(&b, "  %-16s %s\n", cmd.Usage, cmd.Desc)
	}
	ctx.Print(b.String())
	return nil
}

func cmdClear(ctx *kernel.Context, _ *Shell, _ []string) error {
	ctx.Print("\f")
	return nil
}

func cmdEcho(ctx *kernel.Context, _ *Shell, args []string) error {
	ctx.Print(strings.Join(args, " ") + "\n")
	return nil
}

func cmdPs(ctx *kernel.Context, _ *Shell, _ []string) error {
	ctx.PrintChar(0)
	return nil
}

func cmdUptime(ctx *kernel.Context, s *Shell, _ []string) error {
	if s.d.rtc == nil {
		return errors.New("no rtc")
	}
	ctx.Print(fmt.Sprintf("rtc %d\n", s.d.rtc.Count()))
	return nil
}

func cmdVm(ctx *kernel.Context, s *Shell, _ []string) error {
	if s.d.vmm == nil {
		return errors.New("no guest")
	}
	st, err := ctx.VmState(s.d.vmm.Vm())
	if err != nil {
		return err
	}
	ctx.Print(fmt.Sprintf("guest exits=%d io=%d last=%s ip=%#x r0=%d\n",
		st.Exits, s.d.vmm.IOExits(), st.Last.Reason, st.Regs.IP, st.Regs.R[0]))
	return nil
}

func cmdCrash(ctx *kernel.Context, s *Shell, args []string) error {
	msg := "crash requested"
	if len(args) > 0 {
		msg = strings.Join(args, " ")
	}
	th, err := ctx.CreateObject(kernel.KindThread, kernel.ThreadArgs{
		Label:    "crasher",
		Priority: 1,
		Body:     func(*kernel.Context) { panic(msg) },
	})
	if err != nil {
		return err
	}
	if err := s.d.pager.Route(ctx, th); err != nil {
		_ = ctx.Destroy(th)
		return err
	}
	return ctx.StartThread(th, kernel.Capability{}, 0)
}

func cmdMigrate(ctx *kernel.Context, s *Shell, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	cpu, err := strconv.Atoi(args[0])
	if err != nil || cpu < 0 || cpu >= s.d.cpus {
		return fmt.Errorf("bad cpu %q", args[0])
	}
	if err := ctx.MigrateThread(ctx.Self(), cpu); err != nil {
		return err
	}
	ctx.Print(fmt.Sprintf("shell on cpu%d\n", cpu))
	return nil
}
