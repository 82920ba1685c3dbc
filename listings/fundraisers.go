package listings

import (
	"context"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"github.com/jrsteele09/militex-client/apiclient"
	"github.com/jrsteele09/militex-client/users"
)

type Fundraisers struct {
	client *apiclient.Client
}

func NewFundraisers(client *apiclient.Client) *Fundraisers {
	return &Fundraisers{client: client}
}

// List returns one page of fundraisers; page 0 means the first page.
func (f *Fundraisers) List(ctx context.Context, page int) (*Page[Fundraiser], error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	var out Page[Fundraiser]
	if err := f.client.Get(ctx, apiclient.RouteFundraisers, query, &out); err != nil {
		return nil, errors.Wrap(err, "[Fundraisers.List]")
	}
	return &out, nil
}

func (f *Fundraisers) Get(ctx context.Context, id string) (*Fundraiser, error) {
	path, err := itemPath(apiclient.RouteFundraisers, id)
	if err != nil {
		return nil, err
	}
	var out Fundraiser
	if err := f.client.Get(ctx, path, nil, &out); err != nil {
		return nil, errors.Wrap(err, "[Fundraisers.Get]")
	}
	return &out, nil
}

// Donate requires an authenticated session; the amount must be positive.
func (f *Fundraisers) Donate(ctx context.Context, id string, donation Donation) (*DonationReceipt, error) {
	if fieldErrs := users.Validate(donation); fieldErrs != nil {
		return nil, fieldErrs
	}
	path, err := itemPath(apiclient.RouteFundraisers, id, "donate")
	if err != nil {
		return nil, err
	}
	var receipt DonationReceipt
	if err := f.client.Post(ctx, path, donation, &receipt); err != nil {
		return nil, errors.Wrap(err, "[Fundraisers.Donate]")
	}
	return &receipt, nil
}
