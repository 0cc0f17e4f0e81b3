package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/app"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/config"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/logging"
	sessiondomain "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
)

// cli holds the global flags and the App wired for the running subcommand.
type cli struct {
	device   string
	cacheDir string
	verbose  bool

	app *app.App
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Log in, inspect and end portal sessions from this device",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&c.device, "device", "", "Device id for the local cache (overrides DEVICE_ID)")
	cmd.PersistentFlags().StringVar(&c.cacheDir, "cache-dir", "", "Directory for the file cache (overrides CACHE_DIR)")
	cmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log to stderr")

	cmd.AddCommand(
		c.loginCommand(),
		c.whoamiCommand(),
		c.devicesCommand(),
		c.logoutCommand(),
		c.logoutAllCommand(),
		c.reapCommand(),
	)
	// Every subcommand runs against a freshly wired App that is closed even when it fails.
	for _, sub := range cmd.Commands() {
		run := sub.RunE
		sub.RunE = func(cmd *cobra.Command, args []string) error {
			if err := c.open(cmd); err != nil {
				return err
			}
			err := run(cmd, args)
			return errors.Join(err, c.close())
		}
	}
	return cmd
}

func (c *cli) open(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.device != "" {
		cfg.DeviceID = c.device
	}
	if c.cacheDir != "" {
		cfg.CacheDir = c.cacheDir
	}
	level := "error"
	if c.verbose {
		level = cfg.LogLevel
	}
	logger := logging.New(cmd.ErrOrStderr(), level, "console")
	c.app, err = app.New(ctx(cmd), cfg, logger, app.Options{Service: "sessionctl"})
	return err
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := c.app.Close(closeCtx)
	c.app = nil
	return err
}

func ctx(cmd *cobra.Command) context.Context {
	if c := cmd.Context(); c != nil {
		return c
	}
	return context.Background()
}

// currentToken returns this device's session token or an error telling the user to log in.
func (c *cli) currentToken(cmd *cobra.Command) (string, error) {
	token := c.app.Manager.CurrentToken(ctx(cmd))
	if token == "" {
		return "", errors.New("not logged in on this device")
	}
	return token, nil
}

func (c *cli) loginCommand() *cobra.Command {
	var (
		role          string
		loginID       string
		password      string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a roll number, employee id or email",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := sessiondomain.ParseRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q (student, faculty, admin, hod)", role)
			}
			if passwordStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("a password is required (--password or --password-stdin)")
			}
			res, err := c.app.Auth.Login(ctx(cmd), r, loginID, password)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Logged in as %s (%s)\n", displayName(res.Identity), res.Identity.Role)
			if res.OfferLogoutEverywhere {
				fmt.Fprintf(out, "You have %d active sessions. Run 'sessionctl logout-all' to end them everywhere.\n", res.ActiveSessions)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "Account role: student, faculty, admin or hod")
	cmd.Flags().StringVar(&loginID, "id", "", "Roll number, employee id, admin id or email")
	cmd.Flags().StringVar(&password, "password", "", "Password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func (c *cli) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Validate this device's session and print the identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := c.currentToken(cmd)
			if err != nil {
				return err
			}
			v, err := c.app.Manager.Validate(ctx(cmd), token)
			if err != nil {
				return errors.New("session is no longer valid; log in again")
			}
			id := v.Identity
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", displayName(id), id.Role)
			if id.RoleIdentifier != "" {
				fmt.Fprintf(out, "id:         %s\n", id.RoleIdentifier)
			}
			if id.Department != "" {
				fmt.Fprintf(out, "department: %s\n", id.Department)
			}
			if id.Email != "" {
				fmt.Fprintf(out, "email:      %s\n", id.Email)
			}
			if v.Degraded {
				fmt.Fprintln(out, "offline: validated from this device's cache")
			}
			return nil
		},
	}
}

func (c *cli) devicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the active sessions of the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := c.currentToken(cmd)
			if err != nil {
				return err
			}
			list, err := c.app.Auth.Devices(ctx(cmd), token)
			if err != nil {
				return errors.New("session is no longer valid; log in again")
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sessions found (the session store may be unreachable)")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "\tDEVICE\tLOGIN\tLAST ACTIVE\tEXPIRES")
			for _, s := range list {
				marker := ""
				if s.Token == token {
					marker = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", marker, s.DeviceDescriptor,
					s.CreatedAt.Local().Format(time.DateTime),
					s.LastActivityAt.Local().Format(time.DateTime),
					s.ExpiresAt.Local().Format(time.DateOnly))
			}
			return w.Flush()
		},
	}
}

func (c *cli) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End this device's session",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := c.currentToken(cmd)
			if err != nil {
				return err
			}
			c.app.Auth.Logout(ctx(cmd), token)
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func (c *cli) logoutAllCommand() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "logout-all",
		Short: "End every session of a user (yourself by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := c.currentToken(cmd)
			if err != nil {
				return err
			}
			n, err := c.app.Auth.LogoutEverywhere(ctx(cmd), token, target)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ended %d session(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "user", "", "User id whose sessions to end (admins and HODs only)")
	return cmd
}

func (c *cli) reapCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Deactivate every expired session in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := c.app.Manager.ReapExpired(ctx(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deactivated %d expired session(s)\n", n)
			return nil
		},
	}
}

func displayName(id sessiondomain.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	return id.UserID
}
