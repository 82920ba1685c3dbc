package listings_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/militex-client/apiclient"
	"github.com/jrsteele09/militex-client/internal/apistub"
	apperrors "github.com/jrsteele09/militex-client/internal/errors"
	"github.com/jrsteele09/militex-client/listings"
	"github.com/jrsteele09/militex-client/session"
	"github.com/jrsteele09/militex-client/users"
)

type fixture struct {
	stub        *apistub.Server
	store       *session.Store
	cars        *listings.Cars
	fundraisers *listings.Fundraisers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stub := apistub.New(apistub.WithLogger(zerolog.Nop()))
	require.NoError(t, stub.AddUser("sgt.pepper", "Lonely4Hearts", users.UserProfile{Email: "pepper@example.com"}))
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	store := session.NewStore(session.NewInMemoryRepo())
	client, err := apiclient.New(srv.URL, store, apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return &fixture{
		stub:        stub,
		store:       store,
		cars:        listings.NewCars(client),
		fundraisers: listings.NewFundraisers(client),
	}
}

func (f *fixture) signIn(t *testing.T, username string) {
	t.Helper()
	pair, err := f.stub.IssueTokens(username)
	require.NoError(t, err)
	require.NoError(t, f.store.SetTokens(context.Background(), pair.Access, pair.Refresh))
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	var httpErr *apiclient.HTTPError
	require.True(t, errors.As(err, &httpErr), "expected HTTPError, got %v", err)
	require.Equal(t, status, httpErr.Status)
}

func TestCars_ListAnonymous(t *testing.T) {
	f := newFixture(t)
	f.stub.AddCar(listings.Car{Make: "Jeep", Model: "Wrangler", Year: 2019, Price: 28500})
	f.stub.AddCar(listings.Car{Make: "Toyota", Model: "Tacoma", Year: 2021, Price: 34000})

	page, err := f.cars.List(context.Background(), listings.CarFilter{MaxPrice: 30000})
	require.NoError(t, err)
	require.Equal(t, 1, page.Count)
	require.Equal(t, "Wrangler", page.Results[0].Model)
	require.False(t, page.HasNext())
	require.Empty(t, f.stub.LastHeader(apistub.RouteCars).Get("Authorization"))
}

func TestCars_CreateGetDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, "sgt.pepper")

	car, err := f.cars.Create(ctx, listings.CarInput{
		Make:    "Ford",
		Model:   "F-150",
		Year:    2020,
		Price:   31000,
		Mileage: 42000,
	}, listings.Image{Name: "front.jpg", Content: strings.NewReader("jpeg")},
		listings.Image{Name: "back.jpg", Content: strings.NewReader("jpeg")})
	require.NoError(t, err)
	require.Equal(t, "sgt.pepper", car.Seller)
	require.Len(t, car.Images, 2)

	got, err := f.cars.Get(ctx, car.ID)
	require.NoError(t, err)
	require.Equal(t, car.ID, got.ID)

	require.NoError(t, f.cars.Delete(ctx, car.ID))
	_, err = f.cars.Get(ctx, car.ID)
	requireStatus(t, err, http.StatusNotFound)
}

func TestCars_CreateValidatesLocally(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "sgt.pepper")

	_, err := f.cars.Create(context.Background(), listings.CarInput{Make: "Ford", Year: 1850})
	var fieldErrs users.FieldErrors
	require.True(t, errors.As(err, &fieldErrs))
	require.ElementsMatch(t, []string{"model", "year", "price"}, fieldErrs.Fields())
	require.Equal(t, 0, f.stub.Calls(apistub.RouteCars))
}

func TestCars_DeleteOthersListing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.stub.AddUser("pvt.parts", "Sgt4Pepper!", users.UserProfile{}))
	car := f.stub.AddCar(listings.Car{Make: "Jeep", Model: "Gladiator", Year: 2022, Seller: "pvt.parts"})
	f.signIn(t, "sgt.pepper")

	requireStatus(t, f.cars.Delete(context.Background(), car.ID), http.StatusForbidden)
}

func TestCars_EmptyID(t *testing.T) {
	f := newFixture(t)
	_, err := f.cars.Get(context.Background(), "  ")
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestFundraisers_Donate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	fr := f.stub.AddFundraiser(listings.Fundraiser{Title: "Wheels for Veterans", Goal: 1000, Raised: 250})

	page, err := f.fundraisers.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	require.InDelta(t, 0.25, page.Results[0].Progress(), 1e-9)

	t.Run("requires a session", func(t *testing.T) {
		_, err := f.fundraisers.Donate(ctx, fr.ID, listings.Donation{Amount: 50})
		requireStatus(t, err, http.StatusUnauthorized)
	})

	t.Run("rejects non-positive amounts locally", func(t *testing.T) {
		_, err := f.fundraisers.Donate(ctx, fr.ID, listings.Donation{Amount: 0})
		var fieldErrs users.FieldErrors
		require.True(t, errors.As(err, &fieldErrs))
		require.Contains(t, fieldErrs, "amount")
	})

	t.Run("authenticated donation", func(t *testing.T) {
		f.signIn(t, "sgt.pepper")
		receipt, err := f.fundraisers.Donate(ctx, fr.ID, listings.Donation{Amount: 50, Message: "Semper Fi"})
		require.NoError(t, err)
		require.Equal(t, fr.ID, receipt.FundraiserID)
		require.InDelta(t, 300, receipt.Raised, 1e-9)

		got, err := f.fundraisers.Get(ctx, fr.ID)
		require.NoError(t, err)
		require.InDelta(t, 0.3, got.Progress(), 1e-9)
	})
}
