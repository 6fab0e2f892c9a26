package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/fieldsync/internal/client/client"
	"github.com/dmitrijs2005/fieldsync/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for a username and password and creates the account on
// the server. It does not sign in.
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.remote.Register(ctx, userName, string(password)); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Success!")
	return nil
}

// Login prompts for credentials and signs in online.
//
// If the server is unavailable and the same user still holds a valid
// session from an earlier run, the client keeps working offline with it.
// Signing in as a different user wipes the previous user's local data.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.session.SetAttemptingLogin(ctx, true); err != nil {
		return err
	}
	defer func() {
		if err := a.session.SetAttemptingLogin(ctx, false); err != nil {
			a.logger.Warn(ctx, "reset login flag", "error", err)
		}
	}()

	access, refresh, err := a.remote.Login(ctx, userName, string(password))
	if err != nil {
		if errors.Is(err, client.ErrUnavailable) {
			a.setMode(ModeOffline)
			if a.session.IsAuthenticated() && a.session.Username() == userName {
				fmt.Fprintln(a.out, "Server unavailable, continuing offline")
				a.resume(ctx)
				return nil
			}
		}
		a.logger.Warn(ctx, "login unsuccessful", "user", userName, "error", err)
		return fmt.Errorf("login: %w", err)
	}

	if prev := a.session.Username(); prev != "" && prev != userName {
		a.layers.m.Stop(ctx)
		if err := a.store.Wipe(ctx); err != nil {
			return err
		}
	}

	if err := a.session.SignIn(ctx, userName, access, refresh); err != nil {
		return err
	}
	a.logger.Info(ctx, "login successful", "user", userName)
	a.setMode(ModeOnline)
	fmt.Fprintln(a.out, "Logged in as", userName)

	a.resume(ctx)
	return nil
}

// resume follows the selected scope on the map and starts syncing.
func (a *App) resume(ctx context.Context) {
	a.layers.m.SetScope(ctx, a.session.Scope())
	a.orch.SendAllLocalContent(ctx)
	a.orch.RefreshAll(ctx)
}

// Logout revokes the refresh token when the server is reachable, then wipes
// local data and the session. The device id survives.
func (a *App) Logout(ctx context.Context) error {
	if err := a.remote.Logout(ctx); err != nil {
		a.logger.Warn(ctx, "server logout failed", "error", err)
	}

	a.layers.m.Stop(ctx)
	if err := a.store.Wipe(ctx); err != nil {
		return err
	}
	if err := a.session.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}
