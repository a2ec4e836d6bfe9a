package identity

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/right-to-ask/rta/core"
)

type service struct {
	repo Repository
}

func NewService(repo Repository) core.IdentityService {
	return &service{repo}
}

// Register creates a brand-new user. UID collisions are checked
// case-insensitively via UIDUpper.
func (s *service) Register(ctx context.Context, cmd core.NewRegistrationCommand, publicKey string) (core.User, error) {
	ctx, span := tracer.Start(ctx, "Identity.Service.Register")
	defer span.End()

	uidUpper := core.NormalizeUID(cmd.UID)
	if _, err := s.repo.GetByUID(ctx, uidUpper); err == nil {
		return core.User{}, core.NewErrorUidTaken(cmd.UID)
	} else if err != gorm.ErrRecordNotFound {
		span.RecordError(err)
		return core.User{}, core.NewErrorInternal(err)
	}

	var electorates []core.UserElectorate
	for _, pair := range cmd.Electorates {
		if !core.IsValidChamber(pair.Chamber) {
			return core.User{}, core.NewErrorIllegalElectorate(string(pair.Chamber), pair.ElectorateName)
		}
		e, err := s.repo.UpsertElectorate(ctx, pair.Chamber, pair.ElectorateName)
		if err != nil {
			span.RecordError(err)
			return core.User{}, core.NewErrorInternal(err)
		}
		electorates = append(electorates, core.UserElectorate{ElectorateID: e.ID})
	}

	user := core.User{
		UID:         cmd.UID,
		UIDUpper:    uidUpper,
		DisplayName: cmd.DisplayName,
		State:       cmd.State,
		PublicKey:   publicKey,
		Electorates: electorates,
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		span.RecordError(err)
		return core.User{}, core.NewErrorInternal(err)
	}
	return created, nil
}

// Edit applies a partial update; nil fields on the command are
// left untouched.
func (s *service) Edit(ctx context.Context, uid string, cmd core.EditUserCommand) (core.User, error) {
	ctx, span := tracer.Start(ctx, "Identity.Service.Edit")
	defer span.End()

	user, err := s.repo.GetByUID(ctx, core.NormalizeUID(uid))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return core.User{}, core.NewErrorUnknownUser(uid)
		}
		span.RecordError(err)
		return core.User{}, core.NewErrorInternal(err)
	}
	if user.Blocked {
		return core.User{}, core.NewErrorBlocked()
	}

	if cmd.DisplayName != nil {
		user.DisplayName = *cmd.DisplayName
	}
	if cmd.State != nil {
		user.State = cmd.State
	}

	_, err = s.repo.Update(ctx, user)
	if err != nil {
		span.RecordError(err)
		return core.User{}, core.NewErrorInternal(err)
	}

	if cmd.Electorates != nil {
		var electorates []core.Electorate
		for _, pair := range cmd.Electorates {
			if !core.IsValidChamber(pair.Chamber) {
				return core.User{}, core.NewErrorIllegalElectorate(string(pair.Chamber), pair.ElectorateName)
			}
			e, err := s.repo.UpsertElectorate(ctx, pair.Chamber, pair.ElectorateName)
			if err != nil {
				span.RecordError(err)
				return core.User{}, core.NewErrorInternal(err)
			}
			electorates = append(electorates, e)
		}
		if err := s.repo.ReplaceElectorates(ctx, user.ID, electorates); err != nil {
			span.RecordError(err)
			return core.User{}, core.NewErrorInternal(err)
		}
	}

	return s.repo.GetByUID(ctx, user.UIDUpper)
}

func (s *service) Get(ctx context.Context, uid string) (core.User, error) {
	ctx, span := tracer.Start(ctx, "Identity.Service.Get")
	defer span.End()

	user, err := s.repo.GetByUID(ctx, core.NormalizeUID(uid))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return core.User{}, core.NewErrorUnknownUser(uid)
		}
		span.RecordError(err)
		return core.User{}, core.NewErrorInternal(err)
	}
	return user, nil
}

// GrantBadge is called by x/emailproof once a code has been validated
// for the matching purpose, and directly for administratively granted
// Moderator badges.
func (s *service) GrantBadge(ctx context.Context, userID uint, kind core.BadgeKind, what string) (core.Badge, error) {
	ctx, span := tracer.Start(ctx, "Identity.Service.GrantBadge")
	defer span.End()

	badge, err := s.repo.CreateBadge(ctx, core.Badge{UserID: userID, Kind: kind, What: what})
	if err != nil {
		span.RecordError(err)
		return core.Badge{}, errors.Wrap(err, "failed to create badge")
	}
	return badge, nil
}

func (s *service) RevokeBadge(ctx context.Context, userID uint, kind core.BadgeKind, what string) error {
	ctx, span := tracer.Start(ctx, "Identity.Service.RevokeBadge")
	defer span.End()

	if err := s.repo.DeleteBadge(ctx, userID, kind, what); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to revoke badge")
	}
	return nil
}

// SetBlockStatus toggles the blocked flag in either direction, backing
// both block_user and its reversal.
func (s *service) SetBlockStatus(ctx context.Context, uid string, blocked bool) error {
	ctx, span := tracer.Start(ctx, "Identity.Service.SetBlockStatus")
	defer span.End()

	user, err := s.repo.GetByUID(ctx, core.NormalizeUID(uid))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return core.NewErrorUnknownUser(uid)
		}
		span.RecordError(err)
		return core.NewErrorInternal(err)
	}
	return s.repo.SetBlocked(ctx, user.ID, blocked)
}

// SetVerifiedEmail is called by x/emailproof once an AccountValidation
// proof succeeds, so the optional verified-email invariant on User is
// actually populated rather than left dead.
func (s *service) SetVerifiedEmail(ctx context.Context, userID uint, email string) error {
	ctx, span := tracer.Start(ctx, "Identity.Service.SetVerifiedEmail")
	defer span.End()

	if err := s.repo.SetVerifiedEmail(ctx, userID, email, time.Now()); err != nil {
		span.RecordError(err)
		return core.NewErrorInternal(err)
	}
	return nil
}

func (s *service) HasVerifiedEmail(ctx context.Context, userID uint) (bool, error) {
	ctx, span := tracer.Start(ctx, "Identity.Service.HasVerifiedEmail")
	defer span.End()

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return false, core.NewErrorInternal(err)
	}
	return user.Email != nil, nil
}

func (s *service) GetUserList(ctx context.Context) ([]core.User, error) {
	ctx, span := tracer.Start(ctx, "Identity.Service.GetUserList")
	defer span.End()

	users, err := s.repo.List(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, core.NewErrorInternal(err)
	}
	return users, nil
}

func (s *service) SearchUser(ctx context.Context, q string, wantBadges []core.BadgeKind) ([]core.User, error) {
	ctx, span := tracer.Start(ctx, "Identity.Service.SearchUser")
	defer span.End()

	users, err := s.repo.Search(ctx, q, wantBadges)
	if err != nil {
		span.RecordError(err)
		return nil, core.NewErrorInternal(err)
	}
	return users, nil
}

func (s *service) HasBadge(ctx context.Context, userID uint, kind core.BadgeKind, what string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Identity.Service.HasBadge")
	defer span.End()

	ok, err := s.repo.HasBadge(ctx, userID, kind, what)
	if err != nil {
		span.RecordError(err)
		return false, core.NewErrorInternal(err)
	}
	return ok, nil
}
