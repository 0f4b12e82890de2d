package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/go-hr-sync/internal/application/arbitration"
	"github.com/go-hr-sync/internal/application/feed"
	"github.com/go-hr-sync/internal/application/session"
	"github.com/go-hr-sync/internal/domain"
)

type sessionControl interface {
	Login(ctx context.Context, creds domain.Credentials) (*domain.Session, error)
	RequestOTP(ctx context.Context, mobile string) error
	LoginWithOTP(ctx context.Context, mobile, otp string) (*domain.Session, error)
	Logout(ctx context.Context) error
	Current() *domain.Session
}

type feedControl interface {
	Items() []domain.Notification
	UnreadCount() int
	MarkRead(ctx context.Context, notificationID string) bool
	MarkAllRead(ctx context.Context)
}

type interstitialControl interface {
	Current() *arbitration.Interstitial
	Dismiss(ctx context.Context) error
}

var errQuit = errors.New("quit")

// console renders engine events and runs line commands read from stdin.
type console struct {
	sessions sessionControl
	feed     feedControl
	arbiter  interstitialControl

	mu  sync.Mutex
	out io.Writer
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *console) onSession(ev session.Event) {
	if ev.Session == nil {
		c.printf("[session] %s (%s)", ev.State, ev.Reason)
		return
	}
	c.printf("[session] %s as %s %s (%s)", ev.State, ev.Session.Profile.FirstName, ev.Session.Profile.EmployeeCode, ev.Reason)
}

func (c *console) onFeed(ch feed.Change) {
	c.printf("[feed] %s: %d items, %d unread", ch.Reason, len(ch.Items), ch.Unread)
}

func (c *console) onInterstitial(ev arbitration.Event) {
	if ev.Interstitial == nil {
		c.printf("[interstitial] %s", ev.Action)
		return
	}
	it := ev.Interstitial
	c.printf("[interstitial] %s %s %s: %s\n  %s", ev.Action, it.Kind, it.EntityID, it.Title, it.Body)
}

// run executes commands until in is exhausted, ctx ends or quit is read.
func (c *console) run(ctx context.Context, in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := c.exec(ctx, strings.Fields(line)); err != nil {
			if errors.Is(err, errQuit) {
				return
			}
			c.printf("error: %v", err)
		}
	}
}

func (c *console) exec(ctx context.Context, args []string) error {
	switch args[0] {
	case "help":
		c.printf("commands: login <code|email> <password>, otp <mobile>, code <mobile> <otp>, whoami, list, read <id>, read-all, show, dismiss, logout, quit")
	case "login":
		if len(args) != 3 {
			return errors.New("usage: login <code|email> <password>")
		}
		_, err := c.sessions.Login(ctx, domain.Credentials{Login: args[1], Password: args[2]})
		return err
	case "otp":
		if len(args) != 2 {
			return errors.New("usage: otp <mobile>")
		}
		if err := c.sessions.RequestOTP(ctx, args[1]); err != nil {
			return err
		}
		c.printf("code sent to %s", args[1])
	case "code":
		if len(args) != 3 {
			return errors.New("usage: code <mobile> <otp>")
		}
		_, err := c.sessions.LoginWithOTP(ctx, args[1], args[2])
		return err
	case "whoami":
		sess := c.sessions.Current()
		if sess == nil {
			c.printf("signed out")
			return nil
		}
		c.printf("%s %s (%s)", sess.Profile.FirstName, sess.Profile.LastName, sess.Profile.EmployeeCode)
	case "list":
		items := c.feed.Items()
		for _, n := range items {
			mark := " "
			if !n.IsRead {
				mark = "*"
			}
			c.printf("%s %s [%s] %s", mark, n.NotificationID, n.DisplayCategory(), n.Title)
		}
		c.printf("%d unread", c.feed.UnreadCount())
	case "read":
		if len(args) != 2 {
			return errors.New("usage: read <id>")
		}
		if !c.feed.MarkRead(ctx, args[1]) {
			c.printf("%s is already read or not in the feed", args[1])
		}
	case "read-all":
		c.feed.MarkAllRead(ctx)
	case "show":
		it := c.arbiter.Current()
		if it == nil {
			c.printf("nothing on screen")
			return nil
		}
		c.printf("%s %s: %s", it.Kind, it.EntityID, it.Title)
	case "dismiss":
		return c.arbiter.Dismiss(ctx)
	case "logout":
		return c.sessions.Logout(ctx)
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q, try help", args[0])
	}
	return nil
}
