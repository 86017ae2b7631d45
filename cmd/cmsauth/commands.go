package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/cmsauth"
	"github.com/MrEthical07/cmsauth/permission"
)

// openApp loads the configuration and builds the shared collaborators.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, newLogger())
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.Install(ctx); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "tables installed with prefix %q\n", a.cfg.Session.TablePrefix)
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.engine.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired sessions\n", n)
	return nil
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	perm, err := parsePermission(userPermission)
	if err != nil {
		return err
	}
	secret, err := readPassword(userPassword, cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	value := permission.New(perm)
	if userSuper {
		value = permission.Super()
	}
	id, err := a.store.CreateUser(ctx, args[0], secret, userSuper, value)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created user %q with id %d\n", args[0], id)
	return nil
}

func runUserPasswd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	secret, err := readPassword(userPassword, cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.SetPassword(ctx, args[0], secret); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "password of %q replaced\n", args[0])
	return nil
}

func runGrant(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if !grantRevoke && len(args) != 3 {
		return fmt.Errorf("grant needs <username> <resource> <permission>")
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.store.User(ctx, args[0])
	if err != nil {
		return err
	}
	rid, ok := a.engine.Registry().ID(args[1])
	if !ok {
		return fmt.Errorf("%w: %q", cmsauth.ErrUnknownResource, args[1])
	}

	if grantRevoke {
		if err := a.store.Revoke(ctx, user.ID, rid); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked %s on %s\n", args[0], args[1])
		return nil
	}

	in, err := parsePermission(args[2])
	if err != nil {
		return err
	}
	value := permission.New(in)
	if err := a.store.Grant(ctx, user.ID, rid, value); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "granted %s on %s: %s\n", args[0], args[1], value.Binary())
	return nil
}

func runCheckConfig(cmd *cobra.Command, args []string) error {
	w := io.Writer(os.Stdout)
	if cmd != nil {
		w = cmd.OutOrStdout()
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
		overrideExitCode = ExitConfig
		return nil
	}

	fmt.Fprintln(w, "configuration is valid")
	fmt.Fprintf(w, "  Database:       %s\n", cfg.Database.Dialect)
	fmt.Fprintf(w, "  Table prefix:   %q\n", cfg.Session.TablePrefix)
	fmt.Fprintf(w, "  Session cookie: %s (timeout %s)\n", cfg.Session.CookieName, cfg.Session.Timeout)
	fmt.Fprintf(w, "  Lockout:        %d attempts / %s\n", cfg.Lockout.MaxAttempts, cfg.Lockout.Duration)
	fmt.Fprintf(w, "  Resources:      %s\n", strings.Join(cfg.Resources, ", "))
	if cfg.Server.Redis != "" {
		fmt.Fprintf(w, "  Redis:          %s\n", cfg.Server.Redis)
	}
	fmt.Fprintln(w, "  Salt:           [SET]")

	engineCfg, _ := cfg.engineConfig()
	for _, warning := range engineCfg.SecurityReport().Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
	return nil
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	cfg := defaultFileConfig()
	if loaded, err := loadConfig(configFile); err == nil {
		cfg = loaded
	}
	hasher, err := newHasher(cfg.Password)
	if err != nil {
		return err
	}
	secret, err := readPassword("", cmd.InOrStdin())
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

// readPassword prefers flag, then CMSAUTH_PASSWORD, then one line of in.
func readPassword(flag string, in io.Reader) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if v := os.Getenv("CMSAUTH_PASSWORD"); v != "" {
		return v, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("password is required")
	}
	return line, nil
}

// parsePermission accepts a decimal 0-15, a 4-character bit string or a comma
// separated list of capability names such as "read,update".
func parsePermission(s string) (permission.Input, error) {
	s = strings.TrimSpace(s)
	if len(s) == 4 && strings.Trim(s, "01") == "" {
		return permission.Bits(s), nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > permission.All {
			return permission.Input{}, fmt.Errorf("permission must be 0-15, got %d", n)
		}
		return permission.Decimal(n), nil
	}

	bits := 0
	for name := range strings.SplitSeq(s, ",") {
		c, ok := permission.ParseCapability(strings.TrimSpace(name))
		if !ok {
			return permission.Input{}, fmt.Errorf("permission must be 0-15, a bit string like 0101 or names like read,update, got %q", s)
		}
		bits |= 1 << c
	}
	return permission.Decimal(bits), nil
}
