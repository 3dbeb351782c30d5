package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/jrsteele09/rhr-session/dispatch"
	"github.com/jrsteele09/rhr-session/identity"
	"github.com/jrsteele09/rhr-session/internal/config"
	apperrors "github.com/jrsteele09/rhr-session/internal/errors"
	"github.com/jrsteele09/rhr-session/session"
)

const passwordEnvVar = "RHR_PASSWORD"

// withApp opens the client app for the duration of fn
func withApp(ctx context.Context, cfg config.Config, fn func(a *app) error) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close() //nolint:errcheck
	return fn(a)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func loginCmd(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	fs := newFlagSet("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv(passwordEnvVar), "account password (or "+passwordEnvVar+")")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if *email == "" || *password == "" {
		return fmt.Errorf("%w: login requires -email and -password", errUsage)
	}

	return withApp(ctx, cfg, func(a *app) error {
		s, err := a.auth.Login(ctx, identity.Credentials{Email: *email, Password: *password})
		if err != nil {
			return err
		}
		printSession(out, s)
		return nil
	})
}

func registerCmd(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	fs := newFlagSet("register")
	reg := identity.Registration{}
	fs.StringVar(&reg.Email, "email", "", "account email")
	fs.StringVar(&reg.Password, "password", os.Getenv(passwordEnvVar), "account password (or "+passwordEnvVar+")")
	fs.StringVar(&reg.FirstName, "first-name", "", "first name")
	fs.StringVar(&reg.LastName, "last-name", "", "last name")
	fs.StringVar(&reg.TenantName, "tenant", "", "name of the tenant to create")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	reg.PasswordConfirm = reg.Password

	return withApp(ctx, cfg, func(a *app) error {
		s, err := a.auth.Register(ctx, reg)
		var verr *apperrors.ValidationError
		if apperrors.As(err, &verr) {
			for field, msgs := range verr.Fields {
				fmt.Fprintf(out, "%s: %s\n", field, strings.Join(msgs, " "))
			}
		}
		if err != nil {
			return err
		}
		printSession(out, s)
		return nil
	})
}

func logoutCmd(ctx context.Context, cfg config.Config, _ []string, out io.Writer) error {
	return withApp(ctx, cfg, func(a *app) error {
		a.auth.Logout(ctx)
		fmt.Fprintln(out, "Logged out")
		return nil
	})
}

func statusCmd(ctx context.Context, cfg config.Config, _ []string, out io.Writer) error {
	return withApp(ctx, cfg, func(a *app) error {
		printSession(out, a.auth.Current())
		return nil
	})
}

// tenantCmd lists memberships, or switches to the tenant named by ID or slug.
func tenantCmd(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	return withApp(ctx, cfg, func(a *app) error {
		current := a.auth.Current()
		if len(args) == 0 {
			for _, m := range current.TenantMemberships {
				marker := " "
				if m.Tenant.ID == current.ActiveTenantID() {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\t%s\t%s\n", marker, m.Tenant.ID, m.Tenant.Slug, m.Role)
			}
			return nil
		}

		tenantID := args[0]
		for _, m := range current.TenantMemberships {
			if m.Tenant.Slug == args[0] {
				tenantID = m.Tenant.ID
			}
		}
		s, err := a.auth.SelectTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		printSession(out, s)
		return nil
	})
}

func getCmd(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: get requires a path, e.g. /users/me/", errUsage)
	}
	target, err := url.Parse(args[0])
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidArgument, err)
	}

	return withApp(ctx, cfg, func(a *app) error {
		resp, err := a.api.Send(ctx, dispatch.Request{
			Method: http.MethodGet,
			Path:   target.Path,
			Query:  target.Query(),
		})
		if err != nil {
			return err
		}
		if !resp.OK() {
			return resp.Err()
		}

		var pretty bytes.Buffer
		if json.Indent(&pretty, resp.Body, "", "  ") == nil {
			resp.Body = pretty.Bytes()
		}
		fmt.Fprintln(out, string(resp.Body))
		return nil
	})
}

func printSession(out io.Writer, s session.Session) {
	if !s.IsAuthenticated() {
		fmt.Fprintln(out, "Not logged in")
		return
	}
	fmt.Fprintf(out, "Logged in as %s (%s)\n", s.Principal.DisplayName(), s.Principal.Email)
	if s.ActiveTenant != nil {
		fmt.Fprintf(out, "Active tenant: %s (%s)\n", s.ActiveTenant.Name, s.ActiveTenant.ID)
	} else {
		fmt.Fprintln(out, "Active tenant: none")
	}
	if tok := s.Token(); tok != nil && !tok.Expiry.IsZero() {
		fmt.Fprintf(out, "Access token expires: %s\n", tok.Expiry.Local().Format("2006-01-02 15:04:05"))
	}
}
