package poolctl

import (
	"fmt"
	"os"
	"strconv"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/appfleet/appfleet/types"
)

func optionsFromFlags(cmd *cobra.Command, groupName string) (types.Options, error) {
	appRoot, _ := cmd.Flags().GetString("app-root")
	user, _ := cmd.Flags().GetString("user")
	env, _ := cmd.Flags().GetString("env")
	minProcs, _ := cmd.Flags().GetInt("min-processes")
	maxProcs, _ := cmd.Flags().GetInt("max-processes")
	maxReqs, _ := cmd.Flags().GetInt("max-requests")
	memStr, _ := cmd.Flags().GetString("memory-limit")
	label, _ := cmd.Flags().GetString("label")

	memBytes, err := types.ParseMemoryLimit(memStr)
	if err != nil {
		return types.Options{}, fmt.Errorf("invalid --memory-limit %q: %w", memStr, err)
	}

	return types.Options{
		AppGroupName: groupName,
		AppRoot:      appRoot,
		User:         user,
		Environment:  env,
		MinProcesses: minProcs,
		MaxProcesses: maxProcs,
		MaxRequests:  maxReqs,
		MemoryLimit:  memBytes,
		Label:        label,
	}.WithDefaults(), nil
}

func (h *Handler) Get(cmd *cobra.Command, args []string) error {
	ctx, _, err := h.Init(cmd)
	if err != nil {
		return err
	}
	p, err := h.Pool()
	if err != nil {
		return err
	}
	options, err := optionsFromFlags(cmd, args[0])
	if err != nil {
		return err
	}

	sess, err := p.Get(ctx, options)
	if err != nil {
		return fmt.Errorf("get session for %s: %w", args[0], err)
	}
	defer sess.Close()

	logger := log.WithFunc("poolctl.get")
	logger.Infof(ctx, "session served by pid %d (gupid %s)", sess.Process().Pid, sess.Process().Gupid)
	return nil
}

func (h *Handler) Inspect(cmd *cobra.Command, _ []string) error {
	if _, _, err := h.Init(cmd); err != nil {
		return err
	}
	p, err := h.Pool()
	if err != nil {
		return err
	}

	asXML, _ := cmd.Flags().GetBool("xml")
	if asXML {
		showSecrets, _ := cmd.Flags().GetBool("show-secrets")
		out, err := p.ToXML(showSecrets)
		if err != nil {
			return fmt.Errorf("render xml: %w", err)
		}
		fmt.Println(out)
		return nil
	}

	fmt.Print(p.Inspect())
	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Printf("\n%d group(s), %d process(es)\n", p.GetGroupCount(), p.GetProcessCount())
	}
	return nil
}

func (h *Handler) Detach(cmd *cobra.Command, args []string) error {
	if _, _, err := h.Init(cmd); err != nil {
		return err
	}
	p, err := h.Pool()
	if err != nil {
		return err
	}

	groupName, _ := cmd.Flags().GetString("group")
	secret, _ := cmd.Flags().GetString("secret")

	switch {
	case groupName != "":
		if err := p.DetachGroupByName(groupName); err != nil {
			return fmt.Errorf("detach group %s: %w", groupName, err)
		}
	case secret != "":
		if err := p.DetachGroupBySecret(secret); err != nil {
			return fmt.Errorf("detach group by secret: %w", err)
		}
	case len(args) == 1:
		if err := p.DetachProcess(args[0]); err != nil {
			return fmt.Errorf("detach process %s: %w", args[0], err)
		}
	default:
		return fmt.Errorf("specify a GUPID, --group, or --secret")
	}
	return nil
}

func (h *Handler) Disable(cmd *cobra.Command, args []string) error {
	ctx, _, err := h.Init(cmd)
	if err != nil {
		return err
	}
	p, err := h.Pool()
	if err != nil {
		return err
	}

	result, err := p.DisableProcess(args[0], func(r types.DisableResult) {
		log.WithFunc("poolctl.disable").Infof(ctx, "deferred disable of %s resolved: %s", args[0], r)
	})
	if err != nil {
		return fmt.Errorf("disable %s: %w", args[0], err)
	}
	log.WithFunc("poolctl.disable").Infof(ctx, "disable %s: %s", args[0], result)
	return nil
}

func (h *Handler) Enable(cmd *cobra.Command, args []string) error {
	if _, _, err := h.Init(cmd); err != nil {
		return err
	}
	p, err := h.Pool()
	if err != nil {
		return err
	}
	if err := p.EnableProcess(args[0]); err != nil {
		return fmt.Errorf("enable %s: %w", args[0], err)
	}
	return nil
}

func (h *Handler) Restart(cmd *cobra.Command, args []string) error {
	ctx, _, err := h.Init(cmd)
	if err != nil {
		return err
	}
	p, err := h.Pool()
	if err != nil {
		return err
	}

	methodStr, _ := cmd.Flags().GetString("method")
	method := types.RestartRolling
	if methodStr == "blocking" {
		method = types.RestartBlocking
	}

	appRoot, _ := cmd.Flags().GetString("app-root")
	logger := log.WithFunc("poolctl.restart")

	if appRoot != "" {
		n := p.RestartGroupsByAppRoot(appRoot, method)
		logger.Infof(ctx, "restarted %d group(s) under %s", n, appRoot)
		return nil
	}
	if len(args) != 1 {
		return fmt.Errorf("specify a GROUP or --app-root")
	}
	if err := p.RestartGroupByName(args[0], method); err != nil {
		return fmt.Errorf("restart %s: %w", args[0], err)
	}
	return nil
}

func (h *Handler) SetMax(cmd *cobra.Command, args []string) error {
	if _, _, err := h.Init(cmd); err != nil {
		return err
	}
	p, err := h.Pool()
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid N %q: %w", args[0], err)
	}
	p.SetMax(n)
	return nil
}
