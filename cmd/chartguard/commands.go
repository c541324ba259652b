package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/chartguard/internal/access"
	"github.com/2389/chartguard/internal/audit"
	"github.com/2389/chartguard/internal/auth"
	"github.com/2389/chartguard/internal/store"
)

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// parseFlags parses args and checks that every named flag was given a value.
func parseFlags(fs *flag.FlagSet, args []string, required ...string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	for _, name := range required {
		if f := fs.Lookup(name); f == nil || f.Value.String() == "" {
			return fmt.Errorf("%w: %s: -%s is required", errUsage, fs.Name(), name)
		}
	}
	return nil
}

// parseRoles turns "admin,provider" into role flags.
func parseRoles(s string) (store.Roles, error) {
	var r store.Roles
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "":
		case "admin":
			r.Admin = true
		case "provider":
			r.Provider = true
		case "supervisor":
			r.Supervisor = true
		case "social_worker", "social-worker":
			r.SocialWorker = true
		default:
			return store.Roles{}, fmt.Errorf("unknown role %q", name)
		}
	}
	return r, nil
}

func rolesString(r store.Roles) string {
	if names := r.Names(); len(names) > 0 {
		return strings.Join(names, ",")
	}
	return "-"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func (a *app) success(format string, args ...any) {
	color.New(color.FgGreen).Fprint(a.out, "✓ ")
	fmt.Fprintf(a.out, format+"\n", args...)
}

func (a *app) principal(ctx context.Context, username string) (*store.Principal, error) {
	p, err := a.store.GetPrincipalByUsername(ctx, username)
	if errors.Is(err, store.ErrPrincipalNotFound) {
		return nil, fmt.Errorf("no user named %q", username)
	}
	return p, err
}

// explain expands validation failures into their violations.
func explain(err error) error {
	var ve *auth.ValidationError
	if errors.As(err, &ve) && len(ve.Violations) > 0 {
		return fmt.Errorf("%s: %s", ve.Reason, strings.Join(ve.Violations, ", "))
	}
	return err
}

func (a *app) cmdInit() error {
	a.success("Database ready at %s", a.cfg.Database.Path)
	return nil
}

func (a *app) cmdUser(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: user needs a subcommand", errUsage)
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "add":
		fs := newFlags("user add")
		username := fs.String("username", "", "login name")
		email := fs.String("email", "", "email address")
		name := fs.String("name", "", "display name")
		password := fs.String("password", "", "initial password")
		roles := fs.String("roles", "", "comma-separated roles")
		if err := parseFlags(fs, rest, "username", "name", "password"); err != nil {
			return err
		}
		r, err := parseRoles(*roles)
		if err != nil {
			return err
		}

		p, err := a.engine.CreateUser(ctx, "", auth.NewUser{
			Username:    *username,
			Email:       *email,
			DisplayName: *name,
			Password:    *password,
			Roles:       r,
		})
		if err != nil {
			return explain(err)
		}
		a.success("Created user %s (%s) roles=%s", p.Username, p.ID, rolesString(p.Roles))
		return nil

	case "list":
		principals, err := a.store.ListPrincipals(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  USERNAME\tNAME\tROLES\tSTATUS\tLAST LOGIN")
		fmt.Fprintln(w, "  --------\t----\t-----\t------\t----------")
		now := time.Now()
		for _, p := range principals {
			status := "active"
			switch {
			case !p.Active:
				status = "inactive"
			case p.IsLocked(now):
				status = "locked"
			}
			last := "never"
			if p.LastLogin != nil {
				last = p.LastLogin.Local().Format("Jan 02 15:04")
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
				p.Username, truncate(p.DisplayName, 24), rolesString(p.Roles), status, last)
		}
		return w.Flush()

	case "passwd":
		fs := newFlags("user passwd")
		username := fs.String("username", "", "login name")
		password := fs.String("password", "", "new password")
		if err := parseFlags(fs, rest, "username", "password"); err != nil {
			return err
		}
		p, err := a.principal(ctx, *username)
		if err != nil {
			return err
		}
		if err := a.engine.ChangePassword(ctx, "", p.ID, *password, nil); err != nil {
			return explain(err)
		}
		a.success("Password reset for %s", p.Username)
		return nil

	case "roles":
		fs := newFlags("user roles")
		username := fs.String("username", "", "login name")
		roles := fs.String("roles", "", "comma-separated roles")
		if err := parseFlags(fs, rest, "username"); err != nil {
			return err
		}
		r, err := parseRoles(*roles)
		if err != nil {
			return err
		}
		p, err := a.principal(ctx, *username)
		if err != nil {
			return err
		}
		if err := a.engine.SetRoles(ctx, "", p.ID, r); err != nil {
			return err
		}
		a.success("Roles for %s: %s", p.Username, rolesString(r))
		return nil

	case "deactivate", "activate", "delete":
		fs := newFlags("user " + sub)
		username := fs.String("username", "", "login name")
		if err := parseFlags(fs, rest, "username"); err != nil {
			return err
		}
		p, err := a.principal(ctx, *username)
		if err != nil {
			return err
		}
		switch sub {
		case "deactivate":
			err = a.engine.SetActive(ctx, "", p.ID, false)
		case "activate":
			err = a.engine.SetActive(ctx, "", p.ID, true)
		default:
			err = a.engine.DeleteUser(ctx, "", p.ID)
		}
		if err != nil {
			return err
		}
		a.success("User %s: %sd", p.Username, sub)
		return nil

	default:
		return fmt.Errorf("%w: unknown user subcommand %q", errUsage, sub)
	}
}

func (a *app) cmdClient(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] != "add" {
		return fmt.Errorf("%w: client needs the add subcommand", errUsage)
	}

	fs := newFlags("client add")
	id := fs.String("id", "", "client ID")
	name := fs.String("name", "", "display name")
	if err := parseFlags(fs, args[1:], "id", "name"); err != nil {
		return err
	}

	if err := a.store.CreateClient(ctx, &store.Client{ID: *id, DisplayName: *name}); err != nil {
		return err
	}
	a.success("Registered client %s", *id)
	return nil
}

func (a *app) cmdAssign(ctx context.Context, args []string) error {
	fs := newFlags("assign")
	username := fs.String("username", "", "provider login name")
	clientID := fs.String("client", "", "client ID")
	role := fs.String("role", string(access.RoleClinician), "assignment role label")
	if err := parseFlags(fs, args, "username", "client"); err != nil {
		return err
	}

	p, err := a.principal(ctx, *username)
	if err != nil {
		return err
	}
	asg, err := a.access.AssignClient(ctx, "", p.ID, *clientID, access.Role(*role))
	if err != nil {
		return err
	}
	a.success("Assigned %s to %s as %s (assignment %s)", p.Username, *clientID, *role, asg.ID)
	return nil
}

func (a *app) cmdUnassign(ctx context.Context, args []string) error {
	fs := newFlags("unassign")
	id := fs.String("id", "", "assignment ID")
	if err := parseFlags(fs, args, "id"); err != nil {
		return err
	}
	if err := a.access.EndAssignment(ctx, "", *id); err != nil {
		return err
	}
	a.success("Ended assignment %s", *id)
	return nil
}

func (a *app) cmdSupervise(ctx context.Context, args []string) error {
	fs := newFlags("supervise")
	supervisor := fs.String("supervisor", "", "supervisor login name")
	supervisee := fs.String("supervisee", "", "supervisee login name")
	if err := parseFlags(fs, args, "supervisor", "supervisee"); err != nil {
		return err
	}

	sup, err := a.principal(ctx, *supervisor)
	if err != nil {
		return err
	}
	sub, err := a.principal(ctx, *supervisee)
	if err != nil {
		return err
	}
	edge, err := a.access.AddSupervision(ctx, "", sup.ID, sub.ID)
	if err != nil {
		return err
	}
	a.success("%s now supervises %s (edge %s)", sup.Username, sub.Username, edge.ID)
	return nil
}

func (a *app) cmdUnsupervise(ctx context.Context, args []string) error {
	fs := newFlags("unsupervise")
	id := fs.String("id", "", "supervision edge ID")
	if err := parseFlags(fs, args, "id"); err != nil {
		return err
	}
	if err := a.access.EndSupervision(ctx, "", *id); err != nil {
		return err
	}
	a.success("Ended supervision %s", *id)
	return nil
}

func (a *app) cmdAccess(ctx context.Context, args []string) error {
	fs := newFlags("access")
	username := fs.String("username", "", "login name")
	clientID := fs.String("client", "", "show permissions for one client")
	if err := parseFlags(fs, args, "username"); err != nil {
		return err
	}

	p, err := a.principal(ctx, *username)
	if err != nil {
		return err
	}
	scope := a.access.ForRequest(p.ID)

	if *clientID != "" {
		role, ok := scope.ClientRole(ctx, *clientID)
		if !ok {
			role = "-"
		}
		w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  PERMISSION\tALLOWED")
		fmt.Fprintln(w, "  ----------\t-------")
		fmt.Fprintf(w, "  access\t%t\n", scope.CanAccessClient(ctx, *clientID))
		fmt.Fprintf(w, "  view clinical notes\t%t\n", scope.CanViewClinicalNotes(ctx, *clientID))
		fmt.Fprintf(w, "  create clinical notes\t%t\n", scope.CanCreateClinicalNotes(ctx, *clientID))
		fmt.Fprintf(w, "  edit demographics\t%t\n", scope.CanEditDemographics(ctx, *clientID))
		fmt.Fprintf(w, "  role\t%s\n", role)
		return w.Flush()
	}

	set, err := scope.AccessibleClientIDs(ctx)
	if err != nil {
		return err
	}
	if set.IsAll() {
		fmt.Fprintf(a.out, "%s can access all clients\n", p.Username)
		return nil
	}
	ids := set.IDs()
	if len(ids) == 0 {
		fmt.Fprintf(a.out, "%s cannot access any clients\n", p.Username)
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(a.out, id)
	}
	return nil
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := newFlags("login")
	username := fs.String("username", "", "login name")
	password := fs.String("password", "", "password")
	if err := parseFlags(fs, args, "username", "password"); err != nil {
		return err
	}

	p, err := a.engine.Authenticate(ctx, *username, *password)
	if err != nil {
		return err
	}

	sc, err := a.sessions.Start(ctx, "")
	if err != nil {
		return err
	}
	if err := sc.Login(ctx, p); err != nil {
		return err
	}
	a.success("Logged in as %s", p.Username)
	fmt.Fprintf(a.out, "session: %s\n", sc.ID())
	return nil
}

func (a *app) cmdSessions(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: sessions needs a subcommand", errUsage)
	}

	switch args[0] {
	case "gc":
		n, err := a.sessions.Collect(ctx)
		if err != nil {
			return err
		}
		a.success("Removed %d idle sessions", n)
		return nil

	case "revoke":
		fs := newFlags("sessions revoke")
		username := fs.String("username", "", "login name")
		if err := parseFlags(fs, args[1:], "username"); err != nil {
			return err
		}
		p, err := a.principal(ctx, *username)
		if err != nil {
			return err
		}
		n, err := a.sessions.RevokePrincipal(ctx, "", p.ID)
		if err != nil {
			return err
		}
		a.success("Revoked %d sessions for %s", n, p.Username)
		return nil

	default:
		return fmt.Errorf("%w: unknown sessions subcommand %q", errUsage, args[0])
	}
}

func (a *app) cmdAudit(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: audit needs a subcommand", errUsage)
	}

	var (
		events []*store.AuditEvent
		err    error
	)
	switch args[0] {
	case "recent":
		fs := newFlags("audit recent")
		action := fs.String("action", "", "only this action")
		limit := fs.Int("limit", 50, "maximum entries")
		if err := parseFlags(fs, args[1:]); err != nil {
			return err
		}
		var filter *audit.Action
		if *action != "" {
			act := audit.Action(*action)
			filter = &act
		}
		events, err = a.audit.RecentLogs(ctx, *limit, filter)

	case "trail":
		fs := newFlags("audit trail")
		resourceType := fs.String("type", "", "resource type")
		resourceID := fs.String("id", "", "resource ID")
		limit := fs.Int("limit", 50, "maximum entries")
		if err := parseFlags(fs, args[1:], "type", "id"); err != nil {
			return err
		}
		events, err = a.audit.AuditTrail(ctx, *resourceType, *resourceID, *limit)

	default:
		return fmt.Errorf("%w: unknown audit subcommand %q", errUsage, args[0])
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TIME\tACTOR\tACTION\tRESOURCE\tDETAIL")
	fmt.Fprintln(w, "  ----\t-----\t------\t--------\t------")
	for _, e := range events {
		actor := e.ActorName
		if actor == "" {
			actor = e.ActorID
		}
		if actor == "" {
			actor = "-"
		}
		resource := e.ResourceType
		if e.ResourceID != "" {
			resource += ":" + truncate(e.ResourceID, 20)
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format("Jan 02 15:04:05"), actor, e.Action, resource, formatDetail(e.Detail))
	}
	return w.Flush()
}

func formatDetail(d map[string]any) string {
	if len(d) == 0 {
		return ""
	}
	parts := make([]string, 0, len(d))
	for k, v := range d {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
