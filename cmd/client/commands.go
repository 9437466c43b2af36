package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrsteele09/go-auth-client/internal/app"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/internal/logging"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/jrsteele09/go-auth-client/wallet"
	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "authclient",
		Usage: "Inspect and manage the signed-in session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "warn",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Resolve the stored credential and print the session",
				Action: withApp(statusAction),
			},
			{
				Name:   "reload",
				Usage:  "Re-verify the stored credential with the backend",
				Action: withApp(reloadAction),
			},
			{
				Name:  "login",
				Usage: "Sign in with the configured OpenID Connect provider",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, EnvVars: []string{"AUTHCLIENT_PASSWORD"}, Required: true},
				},
				Action: withApp(loginAction),
			},
			{
				Name:   "logout",
				Usage:  "Forget the stored credential",
				Action: withApp(logoutAction),
			},
			{
				Name:   "wallet",
				Usage:  "Print the active wallet address and follow changes until interrupted",
				Action: withApp(walletAction),
			},
			{
				Name:  "recover-key",
				Usage: "Reconstruct the account private key through the threshold-key service",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "factor", Usage: "Recovery factor", EnvVars: []string{"AUTHCLIENT_RECOVERY_FACTOR"}, Required: true},
				},
				Action: withApp(recoverKeyAction),
			},
		},
	}
}

// withApp builds the application for one command and tears it down afterwards.
func withApp(fn func(*cli.Context, *app.App) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}
		logging.Setup(c.String("log-level"), cfg.GetEnv())

		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(c, a)
	}
}

func statusAction(c *cli.Context, a *app.App) error {
	out, err := a.Start(c.Context)
	if err != nil {
		return err
	}
	printOutcome(c, out)
	if a.Wallet != nil {
		printAddress(c, a.Wallet)
	}
	return nil
}

func reloadAction(c *cli.Context, a *app.App) error {
	if _, err := a.Start(c.Context); err != nil {
		return err
	}
	printOutcome(c, a.Session.Reload(c.Context))
	return nil
}

func loginAction(c *cli.Context, a *app.App) error {
	out, err := a.Login(c.Context, c.String("username"), c.String("password"))
	if err != nil {
		return err
	}
	printOutcome(c, out)
	if !out.State.IsAuthenticated {
		return cli.Exit("login did not produce an authenticated session", 1)
	}
	return nil
}

func logoutAction(c *cli.Context, a *app.App) error {
	if err := a.Session.Logout(c.Context); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "logged out")
	return nil
}

func walletAction(c *cli.Context, a *app.App) error {
	if a.Wallet == nil {
		return cli.Exit("WALLET_ACCOUNT_FILE is not set", 1)
	}
	printAddress(c, a.Wallet)
	remove := a.Wallet.OnChange(func(string, bool) { printAddress(c, a.Wallet) })
	defer remove()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

func recoverKeyAction(c *cli.Context, a *app.App) error {
	if _, err := a.Start(c.Context); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, time.Minute)
	defer cancel()

	key, err := a.RecoverKey(ctx, c.String("email"), c.String("factor"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, key)
	return nil
}

func printOutcome(c *cli.Context, out session.Outcome) {
	w := c.App.Writer
	fmt.Fprintf(w, "status:  %s (%s)\n", out.State.Status, out.Kind)
	if out.Err != nil {
		fmt.Fprintf(w, "reason:  %v\n", out.Err)
	}
	if claims := out.State.Claims; claims != nil {
		fmt.Fprintf(w, "subject: %s\n", claims.Subject)
		if claims.Email != "" {
			fmt.Fprintf(w, "email:   %s\n", claims.Email)
		}
		if exp := claims.Expiry(); !exp.IsZero() {
			fmt.Fprintf(w, "expires: %s\n", exp.Format(time.RFC3339))
		}
	}
}

func printAddress(c *cli.Context, b *wallet.Binding) {
	if addr, ok := b.Address(); ok {
		fmt.Fprintf(c.App.Writer, "wallet:  %s\n", wallet.Abbreviate(addr))
		return
	}
	fmt.Fprintln(c.App.Writer, "wallet:  not connected")
}
