package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accessd/internal/config"
	contractdomain "github.com/smallbiznis/accessd/internal/contract/domain"
	"github.com/smallbiznis/accessd/internal/invitation/domain"
	"github.com/smallbiznis/accessd/internal/invitation/token"
	"github.com/smallbiznis/accessd/internal/providers/email"
	roledomain "github.com/smallbiznis/accessd/internal/role/domain"
	seatdomain "github.com/smallbiznis/accessd/internal/seat/domain"
	"github.com/smallbiznis/accessd/internal/testkit"
	userdomain "github.com/smallbiznis/accessd/internal/user/domain"
	"github.com/smallbiznis/accessd/internal/user/password"
	userservice "github.com/smallbiznis/accessd/internal/user/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outbox struct {
	mu   sync.Mutex
	sent []string
}

func (o *outbox) Send(_ context.Context, to []string, subject string, htmlBody string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, to[0])
	return nil
}

type world struct {
	f        *testkit.Fixture
	svc      domain.Service
	users    userdomain.Service
	mail     *outbox
	owner    *userdomain.User
	contract *contractdomain.Contract
}

func setup(t *testing.T, contractType string) world {
	f := testkit.New(t)
	mail := &outbox{}
	users := userservice.NewService(userservice.Params{
		DB:    f.DB,
		Log:   f.Log,
		GenID: f.Node,
		Clock: f.Clock,
		Repo:  f.Users,
	})
	owner := f.User(t, "owner@example.com")
	contract := f.Contract(t, owner, contractType)
	w := world{f: f, users: users, mail: mail, owner: owner, contract: contract}
	w.svc = w.service(users)
	return w
}

func (w world) service(users userdomain.Service) domain.Service {
	return NewService(Params{
		DB:        w.f.DB,
		Log:       w.f.Log,
		GenID:     w.f.Node,
		Clock:     w.f.Clock,
		Seats:     w.f.Seats,
		Contracts: w.f.Contracts,
		Roles:     w.f.Roles,
		Users:     users,
		Audit:     w.f.Audit,
		Cache:     w.f.Cache,
		Mailer:    email.NewInvitationMailer(w.mail, "https://app.example.com/invite"),
	})
}

// usersDuring runs a mutation once, on the first user lookup.
type usersDuring struct {
	userdomain.Service
	mutate func()
}

func (u *usersDuring) FindByID(ctx context.Context, id snowflake.ID) (*userdomain.User, error) {
	if mutate := u.mutate; mutate != nil {
		u.mutate = nil
		mutate()
	}
	return u.Service.FindByID(ctx, id)
}

func (w world) invite(t *testing.T, addr string) *domain.Issued {
	t.Helper()
	issued, err := w.svc.CreateInvitation(context.Background(), w.owner.ID, domain.CreateInvitationRequest{
		ContractID: w.contract.ID,
		Email:      addr,
		RoleID:     roledomain.SystemRoleAnalystID,
	})
	require.NoError(t, err)
	return issued
}

func TestCreateInvitationStoresOnlyHash(t *testing.T) {
	w := setup(t, config.ContractTypeIndividual)
	issued := w.invite(t, " New.Member@Example.com ")

	assert.Len(t, issued.PlaintextToken, 64)
	assert.Equal(t, testkit.T0.Add(token.TTL), issued.ExpiresAt)

	seat, err := w.f.Seats.FindByID(context.Background(), issued.Seat.ID)
	require.NoError(t, err)
	assert.Equal(t, seatdomain.SeatStatusPending, seat.Status)
	assert.Equal(t, "new.member@example.com", seat.Email)
	require.NotNil(t, seat.InvitationTokenHash)
	assert.Equal(t, token.Hash(issued.PlaintextToken), *seat.InvitationTokenHash)
	assert.NotEqual(t, issued.PlaintextToken, *seat.InvitationTokenHash)
	require.NotNil(t, seat.InvitedBy)
	assert.Equal(t, w.owner.ID, *seat.InvitedBy)

	user, err := w.f.Users.FindByID(context.Background(), seat.UserID)
	require.NoError(t, err)
	assert.False(t, user.HasPassword())
	assert.Equal(t, []string{"new.member@example.com"}, w.mail.sent)
}

func TestCreateInvitationChecksQuotaBeforeWriting(t *testing.T) {
	w := setup(t, config.ContractTypeIndividual)
	w.invite(t, "a@example.com")
	w.invite(t, "b@example.com")

	_, err := w.svc.CreateInvitation(context.Background(), w.owner.ID, domain.CreateInvitationRequest{
		ContractID: w.contract.ID,
		Email:      "c@example.com",
		RoleID:     roledomain.SystemRoleViewerID,
	})
	assert.ErrorIs(t, err, seatdomain.ErrQuotaExceeded)

	_, err = w.f.Users.FindByEmail(context.Background(), "c@example.com")
	assert.ErrorIs(t, err, userdomain.ErrNotFound)
}

func TestCreateInvitationRejectsInvalidRequests(t *testing.T) {
	w := setup(t, config.ContractTypeAgency)
	ctx := context.Background()
	w.invite(t, "dup@example.com")

	otherOwner := w.f.User(t, "other@example.com")
	other := w.f.Contract(t, otherOwner, config.ContractTypeAgency)
	foreign := w.f.Store(t, other.ID, "Foreign", true)

	cases := []struct {
		name string
		req  domain.CreateInvitationRequest
		want error
	}{
		{"duplicate seat", domain.CreateInvitationRequest{Email: "dup@example.com", RoleID: roledomain.SystemRoleViewerID}, seatdomain.ErrSeatExists},
		{"owner role", domain.CreateInvitationRequest{Email: "x@example.com", RoleID: roledomain.SystemRoleOwnerID}, seatdomain.ErrRoleNotUsable},
		{"unknown role", domain.CreateInvitationRequest{Email: "x@example.com", RoleID: 424242}, seatdomain.ErrRoleNotUsable},
		{"bad email", domain.CreateInvitationRequest{Email: "not-an-email", RoleID: roledomain.SystemRoleViewerID}, userdomain.ErrInvalidEmail},
		{"foreign store", domain.CreateInvitationRequest{
			Email:      "x@example.com",
			RoleID:     roledomain.SystemRoleViewerID,
			StoreScope: []seatdomain.StoreAccessInput{{StoreID: foreign.ID}},
		}, seatdomain.ErrStoreNotInScope},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.ContractID = w.contract.ID
			_, err := w.svc.CreateInvitation(ctx, w.owner.ID, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateInvitationWithStoreScope(t *testing.T) {
	w := setup(t, config.ContractTypeAgency)
	store := w.f.Store(t, w.contract.ID, "Main", true)

	issued, err := w.svc.CreateInvitation(context.Background(), w.owner.ID, domain.CreateInvitationRequest{
		ContractID: w.contract.ID,
		Email:      "scoped@example.com",
		RoleID:     roledomain.SystemRoleViewerID,
		StoreScope: []seatdomain.StoreAccessInput{{StoreID: store.ID}},
	})
	require.NoError(t, err)

	seat, err := w.f.Seats.FindByID(context.Background(), issued.Seat.ID)
	require.NoError(t, err)
	require.Len(t, seat.StoreAccess, 1)
	assert.Equal(t, store.ID, seat.StoreAccess[0].StoreID)
}

func TestValidateInvitation(t *testing.T) {
	w := setup(t, config.ContractTypeIndividual)
	ctx := context.Background()
	issued := w.invite(t, "member@example.com")

	res, err := w.svc.ValidateInvitation(ctx, issued.PlaintextToken)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	require.NotNil(t, res.Seat)
	assert.Equal(t, w.contract.Name, res.Seat.ContractName)
	assert.Equal(t, "Analyst", res.Seat.RoleName)
	assert.Equal(t, "member@example.com", res.Seat.Email)

	res, err = w.svc.ValidateInvitation(ctx, "garbage")
	require.NoError(t, err)
	assert.Equal(t, domain.ValidateResult{Valid: false, Reason: "invalid"}, res)

	res, err = w.svc.ValidateInvitation(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "invalid", res.Reason)
}

func TestInvitationExpiresAfterSevenDays(t *testing.T) {
	w := setup(t, config.ContractTypeIndividual)
	ctx := context.Background()
	issued := w.invite(t, "member@example.com")

	w.f.Clock.Set(testkit.T0.Add(7 * 24 * time.Hour))
	res, err := w.svc.ValidateInvitation(ctx, issued.PlaintextToken)
	require.NoError(t, err)
	assert.True(t, res.Valid)

	w.f.Clock.Set(testkit.T0.Add(7*24*time.Hour + time.Second))
	res, err = w.svc.ValidateInvitation(ctx, issued.PlaintextToken)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "expired", res.Reason)

	_, err = w.svc.AcceptInvitation(ctx, domain.AcceptRequest{Token: issued.PlaintextToken, Password: "correct horse"})
	assert.ErrorIs(t, err, token.ErrExpiredToken)

	seat, err := w.f.Seats.FindByID(ctx, issued.Seat.ID)
	require.NoError(t, err)
	assert.Equal(t, seatdomain.SeatStatusPending, seat.Status)
}

func TestAcceptInvitation(t *testing.T) {
	w := setup(t, config.ContractTypeIndividual)
	ctx := context.Background()
	issued := w.invite(t, "member@example.com")

	_, err := w.svc.AcceptInvitation(ctx, domain.AcceptRequest{Token: issued.PlaintextToken})
	assert.ErrorIs(t, err, domain.ErrCredentialsRequired)
	_, err = w.svc.AcceptInvitation(ctx, domain.AcceptRequest{Token: issued.PlaintextToken, Password: "short"})
	assert.ErrorIs(t, err, password.ErrTooShort)

	w.f.Clock.Advance(time.Hour)
	res, err := w.svc.AcceptInvitation(ctx, domain.AcceptRequest{
		Token:       issued.PlaintextToken,
		Password:    "correct horse",
		DisplayName: "New Member",
	})
	require.NoError(t, err)
	assert.Equal(t, seatdomain.SeatStatusActive, res.Seat.Status)
	require.NotNil(t, res.Seat.ActivatedAt)
	assert.True(t, res.Seat.ActivatedAt.Equal(testkit.T0.Add(time.Hour)))
	assert.True(t, res.User.HasPassword())
	assert.True(t, password.Verify("correct horse", *res.User.PasswordHash))
	assert.Equal(t, "New Member", res.User.DisplayName)

	_, err = w.svc.AcceptInvitation(ctx, domain.AcceptRequest{Token: issued.PlaintextToken, Password: "another password"})
	assert.ErrorIs(t, err, token.ErrAlreadyActivated)

	v, err := w.svc.ValidateInvitation(ctx, issued.PlaintextToken)
	require.NoError(t, err)
	assert.Equal(t, "already_activated", v.Reason)
}

func TestAcceptKeepsExistingPassword(t *testing.T) {
	w := setup(t, config.ContractTypeIndividual)
	ctx := context.Background()

	existing := w.f.User(t, "member@example.com")
	hash, err := password.Hash("original secret")
	require.NoError(t, err)
	_, err = w.f.Users.SetPasswordIfEmpty(ctx, existing.ID, hash, "Member", testkit.T0)
	require.NoError(t, err)

	issued := w.invite(t, "member@example.com")
	assert.Equal(t, existing.ID, issued.Seat.UserID)

	res, err := w.svc.AcceptInvitation(ctx, domain.AcceptRequest{Token: issued.PlaintextToken})
	require.NoError(t, err)
	assert.True(t, password.Verify("original secret", *res.User.PasswordHash))
}

func TestConcurrentAcceptActivatesOnce(t *testing.T) {
	w := setup(t, config.ContractTypeIndividual)
	issued := w.invite(t, "member@example.com")

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = w.svc.AcceptInvitation(context.Background(), domain.AcceptRequest{
				Token:    issued.PlaintextToken,
				Password: "correct horse",
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, token.ErrAlreadyActivated):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)

	seats, err := w.f.Seats.ListByUser(context.Background(), issued.Seat.UserID, seatdomain.SeatStatusActive)
	require.NoError(t, err)
	assert.Len(t, seats, 1)
}

func TestResendRotatesToken(t *testing.T) {
	w := setup(t, config.ContractTypeIndividual)
	ctx := context.Background()
	first := w.invite(t, "member@example.com")

	w.f.Clock.Advance(24 * time.Hour)
	second, err := w.svc.ResendInvitation(ctx, w.owner.ID, first.Seat.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.PlaintextToken, second.PlaintextToken)
	assert.Equal(t, testkit.T0.Add(24*time.Hour+token.TTL), second.ExpiresAt)
	assert.Len(t, w.mail.sent, 2)

	old, err := w.svc.ValidateInvitation(ctx, first.PlaintextToken)
	require.NoError(t, err)
	assert.Equal(t, "invalid", old.Reason)

	fresh, err := w.svc.ValidateInvitation(ctx, second.PlaintextToken)
	require.NoError(t, err)
	assert.True(t, fresh.Valid)

	_, err = w.svc.AcceptInvitation(ctx, domain.AcceptRequest{Token: second.PlaintextToken, Password: "correct horse"})
	require.NoError(t, err)

	_, err = w.svc.ResendInvitation(ctx, w.owner.ID, first.Seat.ID)
	assert.ErrorIs(t, err, domain.ErrNotPending)
}

func TestAcceptRejectsTokenRotatedAfterCheck(t *testing.T) {
	w := setup(t, config.ContractTypeIndividual)
	ctx := context.Background()
	first := w.invite(t, "member@example.com")

	var second *domain.Issued
	users := &usersDuring{Service: w.users}
	users.mutate = func() {
		var err error
		second, err = w.svc.ResendInvitation(ctx, w.owner.ID, first.Seat.ID)
		require.NoError(t, err)
	}
	racing := w.service(users)

	_, err := racing.AcceptInvitation(ctx, domain.AcceptRequest{Token: first.PlaintextToken, Password: "correct horse"})
	assert.ErrorIs(t, err, token.ErrInvalidToken)
	require.NotNil(t, second)

	seat, err := w.f.Seats.FindByID(ctx, first.Seat.ID)
	require.NoError(t, err)
	assert.Equal(t, seatdomain.SeatStatusPending, seat.Status)

	_, err = w.svc.AcceptInvitation(ctx, domain.AcceptRequest{Token: second.PlaintextToken, Password: "correct horse"})
	require.NoError(t, err)
}

func TestWrongTokenReportsInvalid(t *testing.T) {
	w := setup(t, config.ContractTypeIndividual)
	ctx := context.Background()
	issued := w.invite(t, "member@example.com")

	forged, err := token.Generate()
	require.NoError(t, err)
	require.NotEqual(t, issued.PlaintextToken, forged)

	res, err := w.svc.ValidateInvitation(ctx, forged)
	require.NoError(t, err)
	assert.Equal(t, domain.ValidateResult{Valid: false, Reason: "invalid"}, res)

	_, err = w.svc.AcceptInvitation(ctx, domain.AcceptRequest{Token: forged, Password: "correct horse"})
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}
