package main

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/user"
)

// addAdmin creates the account if needed, then grants it admin rights.
// An empty pwd keeps the password of an existing account.
func (cli *commandLine) addAdmin(email, pwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUserByEmail(ctx, email)
	switch {
	case err == user.ErrNotFound:
		if pwd == "" {
			return fmt.Errorf("a password is required to create %s", email)
		}
		usr = user.User{Email: email, CreatedAt: time.Now().UTC()}
		if err = usr.SetPassword(pwd); err != nil {
			return err
		}
		if usr, err = cli.usrRepo.CreateUser(ctx, usr); err != nil {
			return err
		}
	case err != nil:
		return err
	case pwd != "":
		if err = usr.SetPassword(pwd); err != nil {
			return err
		}
		if usr, err = cli.usrRepo.UpdateUser(ctx, usr); err != nil {
			return err
		}
	}

	if err = cli.usrRepo.AddAdmin(ctx, usr.ID); err != nil {
		return err
	}
	logger.Printf("%s is now an admin", usr.Email)
	return nil
}
