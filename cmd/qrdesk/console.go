package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/qrdesk/qrdesk/pkg/auth"
	"github.com/qrdesk/qrdesk/pkg/directory"
	"github.com/qrdesk/qrdesk/pkg/domain"
	"github.com/qrdesk/qrdesk/pkg/ledger"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run the single-terminal counter console",
	Long: `Run an interactive, line-oriented counter terminal. One session is
active at a time; type "help" for the list of commands.`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags().Changed("log-level"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	svc, err := newServices(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	go svc.auth.Policy().Run(ctx, cfg.Auth.Lockout.SweepIntervalValue())

	c := newConsole(cmd.InOrStdin(), cmd.OutOrStdout(),
		auth.NewTerminal(svc.auth), svc.ledger, svc.directory)

	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.readSecret = func() (string, error) {
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(c.out)

			return string(b), err
		}
	}

	return c.run(ctx)
}

// console drives a Terminal and the ledger from line input.
type console struct {
	in        *bufio.Scanner
	out       io.Writer
	terminal  *auth.Terminal
	ledger    *ledger.Ledger
	directory *directory.Directory
	// readSecret reads a password without echo. It falls back to a plain
	// line when input is not a terminal.
	readSecret func() (string, error)
}

func newConsole(
	in io.Reader,
	out io.Writer,
	t *auth.Terminal,
	l *ledger.Ledger,
	d *directory.Directory,
) *console {
	c := &console{
		in:        bufio.NewScanner(in),
		out:       out,
		terminal:  t,
		ledger:    l,
		directory: d,
	}

	c.readSecret = c.readLine

	return c
}

var errQuit = errors.New("quit")

func (c *console) run(ctx context.Context) error {
	c.printf("qrdesk console. Type \"help\" for commands.\n")

	for {
		c.printf("%s> ", c.prompt())

		if !c.in.Scan() {
			return c.in.Err()
		}

		fields := strings.Fields(c.in.Text())
		if len(fields) == 0 {
			continue
		}

		err := c.dispatch(ctx, fields[0], fields[1:])

		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			c.printf("error: %s\n", describe(err))
		}
	}
}

func (c *console) prompt() string {
	if s := c.terminal.Session(); s != nil {
		return s.Identity
	}

	if r := c.terminal.SelectedRole(); r != "" {
		return "[" + r.String() + "]"
	}

	return "qrdesk"
}

func (c *console) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		c.help()

		return nil
	case "quit", "exit":
		return errQuit
	case "role":
		return c.selectRole(args)
	case "login":
		return c.login(ctx)
	case "logout":
		c.terminal.Logout()
		c.printf("logged out\n")

		return nil
	case "whoami":
		return c.whoami()
	case "items":
		items, err := c.ledger.VisibleItems(ctx, c.terminal.Session())
		if err != nil {
			return err
		}

		c.printItems(items)

		return nil
	case "archive":
		items, err := c.ledger.VisibleArchive(ctx, c.terminal.Session())
		if err != nil {
			return err
		}

		c.printItems(items)

		return nil
	case "accept":
		return c.accept(ctx)
	case "issue", "return", "find":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <id|qr>", cmd)
		}

		return c.move(ctx, cmd, args[0])
	case "users":
		return c.users(ctx)
	case "user":
		return c.user(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *console) help() {
	c.printf(`commands:
  role <role>                     select the role to log in as (%s)
  login                           log in with the selected role
  logout                          end the session
  whoami                          show the session
  items | archive                 list stored or issued items
  accept                          accept a new item into storage
  issue <id> | return <id>        move an item between storage and archive
  find <qr>                       look up an item by QR token
  users                           list directory accounts
  user add <name> <phone> [role]  create an account
  user block <phone>              block or unblock an account
  quit
`, strings.Join(roleNames(), ", "))
}

func roleNames() []string {
	roles := domain.Roles()
	names := make([]string, 0, len(roles))

	for _, r := range roles {
		names = append(names, r.String())
	}

	return names
}

func (c *console) selectRole(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: role <role>")
	}

	role, err := domain.ParseRole(args[0])
	if err != nil {
		return err
	}

	return c.terminal.SelectRole(role)
}

func (c *console) login(ctx context.Context) error {
	if c.terminal.SelectedRole() == domain.RoleClient {
		c.printf("phone: ")

		phone, err := c.readLine()
		if err != nil {
			return err
		}

		c.terminal.SetPhone(phone)
	} else if c.terminal.SelectedRole() != "" {
		c.printf("password: ")

		secret, err := c.readSecret()
		if err != nil {
			return err
		}

		c.terminal.SetPassword(secret)
	}

	s, err := c.terminal.Login(ctx)
	if err != nil {
		return err
	}

	c.printf("logged in as %s (%s)\n", s.Identity, s.Role)

	return nil
}

func (c *console) whoami() error {
	s := c.terminal.Session()
	if s == nil {
		c.printf("not logged in (%s)\n", c.terminal.State())

		return nil
	}

	c.printf("%s, role %s (level %d)\n", s.Identity, s.Role, s.Role.Level())

	return nil
}

func (c *console) accept(ctx context.Context) error {
	if err := domain.Authorize(c.terminal.Session(), ledger.CreateRole); err != nil {
		return err
	}

	var (
		d   domain.ItemDraft
		err error
	)

	ask := func(label string) string {
		if err != nil {
			return ""
		}

		c.printf("%s: ", label)

		var v string
		v, err = c.readLine()

		return v
	}

	d.Name = ask("name")
	d.Category = domain.Category(ask("category (documents, photos, maps, other)"))
	d.ClientName = ask("client name")
	d.ClientPhone = ask("client phone")
	d.ClientEmail = ask("client email")
	amount := ask("deposit amount")

	if err != nil {
		return err
	}

	if amount != "" {
		n, perr := strconv.ParseInt(amount, 10, 64)
		if perr != nil {
			return domain.InvalidField("depositAmount")
		}

		d.DepositAmount = n
	}

	item, err := c.ledger.CreateItem(ctx, c.terminal.Session(), d)
	if err != nil {
		return err
	}

	c.printf("accepted %s, QR %s\n", item.ID, item.QRCode)

	return nil
}

func (c *console) move(ctx context.Context, op, ref string) error {
	var (
		item *domain.Item
		err  error
	)

	switch op {
	case "issue":
		item, err = c.ledger.IssueItem(ctx, c.terminal.Session(), ref)
	case "return":
		item, err = c.ledger.ReturnItem(ctx, c.terminal.Session(), ref)
	default:
		item, err = c.ledger.FindByQRCode(ctx, c.terminal.Session(), ref)
	}

	if err != nil {
		return err
	}

	c.printItems([]domain.Item{*item})

	return nil
}

func (c *console) users(ctx context.Context) error {
	users, err := c.directory.ListUsers(ctx, c.terminal.Session())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tPHONE\tROLE\tBLOCKED\tCREATED")

	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
			u.Username, u.Phone, u.Role, u.Blocked,
			units.HumanDuration(time.Since(u.CreatedAt))+" ago")
	}

	return tw.Flush()
}

func (c *console) user(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: user add|block ...")
	}

	switch args[0] {
	case "add":
		if len(args) < 3 || len(args) > 4 {
			return fmt.Errorf("usage: user add <name> <phone> [role]")
		}

		nu := domain.NewUser{Username: args[1], Phone: args[2]}

		if len(args) == 4 {
			role, err := domain.ParseRole(args[3])
			if err != nil {
				return err
			}

			nu.Role = role
		}

		u, err := c.directory.CreateUser(ctx, c.terminal.Session(), nu)
		if err != nil {
			return err
		}

		c.printf("created %s (%s) as %s\n", u.Username, u.Phone, u.Role)

		return nil
	case "block":
		if len(args) != 2 {
			return fmt.Errorf("usage: user block <phone>")
		}

		u, err := c.directory.ToggleBlock(ctx, c.terminal.Session(), args[1])
		if err != nil {
			return err
		}

		state := "unblocked"
		if u.Blocked {
			state = "blocked"
		}

		c.printf("%s is now %s\n", u.Phone, state)

		return nil
	default:
		return fmt.Errorf("unknown user command %q", args[0])
	}
}

func (c *console) printItems(items []domain.Item) {
	if len(items) == 0 {
		c.printf("no items\n")

		return
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tCLIENT\tPHONE\tSTATUS\tQR")

	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			it.ID, it.Name, it.Category, it.ClientName, it.ClientPhone,
			it.Status, it.QRCode)
	}

	_ = tw.Flush()
}

func (c *console) readLine() (string, error) {
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return strings.TrimSpace(c.in.Text()), nil
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// describe renders core errors for the terminal.
func describe(err error) string {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		return err.Error()
	}

	wait := time.Duration(derr.RemainingSeconds) * time.Second

	switch derr.Kind {
	case domain.KindLockedOut:
		return fmt.Sprintf("login locked, try again in %s (%ds)",
			strings.ToLower(units.HumanDuration(wait)), derr.RemainingSeconds)
	case domain.KindTooManyAttempts:
		return fmt.Sprintf("too many failed attempts, login locked for %s (%ds)",
			strings.ToLower(units.HumanDuration(wait)), derr.RemainingSeconds)
	case domain.KindForbidden:
		return fmt.Sprintf("not allowed, requires %s or above",
			roleAtLevel(derr.RequiredLevel))
	default:
		return derr.Error()
	}
}

func roleAtLevel(level int) domain.Role {
	for _, r := range domain.Roles() {
		if r.Level() == level {
			return r
		}
	}

	return domain.TopRole()
}
