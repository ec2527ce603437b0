package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"wealthywise/internal/core"
	"wealthywise/internal/log"
	"wealthywise/internal/storage"
)

// DefaultAccountName is the account every new user starts with.
const DefaultAccountName = "Cash"

// Provisioning is the outcome of Provisioner.Provision.
type Provisioning struct {
	Profile core.Profile
	// Account is the default account, set only when it was created now.
	Account *core.Account
	Created bool
}

// Provisioner prepares a newly registered user. The registration workflow
// calls it explicitly after the user exists.
type Provisioner struct {
	store    storage.Store
	registry *Registry
	opts     Options
	log      *log.Logger
}

func NewProvisioner(store storage.Store, registry *Registry, opts Options) *Provisioner {
	opts = opts.withDefaults()
	return &Provisioner{
		store:    store,
		registry: registry,
		opts:     opts,
		log:      opts.Logger.WithComponent(log.ComponentRegistry),
	}
}

// Provision creates the user's profile and, if the user has no accounts, a
// default Cash account. Calling it again is a no-op.
func (p *Provisioner) Provision(ctx context.Context, userID string) (Provisioning, error) {
	if userID == "" {
		return Provisioning{}, core.Invalid("owner", core.ErrInvalidOwner)
	}

	var out Provisioning
	err := runUnit(ctx, p.store, p.opts, log.OpProvision, func(tx storage.Tx) error {
		out = Provisioning{}
		existing, err := tx.GetProfile(ctx, userID)
		if err == nil {
			out.Profile = existing
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("get profile: %w", err)
		}

		profile := core.Profile{UserID: userID, Currency: p.opts.Settings.Currency, CreatedAt: p.opts.now()}
		if err := tx.InsertProfile(ctx, profile); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return storage.ErrConflict
			}
			return fmt.Errorf("insert profile: %w", err)
		}
		out.Profile = profile
		out.Created = true

		accounts, err := tx.ListAccounts(ctx, userID, true)
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}
		if len(accounts) > 0 {
			return nil
		}
		a, err := p.registry.insertAccount(ctx, tx, CreateAccountParams{
			OwnerID:  userID,
			Name:     DefaultAccountName,
			Type:     core.AccountCash,
			Currency: profile.Currency,
		}, core.NewMoney(decimal.Zero, profile.Currency))
		if err != nil {
			return err
		}
		out.Account = &a
		return nil
	})
	if err != nil {
		return Provisioning{}, err
	}

	if out.Created {
		p.log.InfoContext(ctx, "User provisioned", log.FieldUserID, userID)
	}
	return out, nil
}
