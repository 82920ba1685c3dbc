package listings

import (
	"context"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/militex-client/apiclient"
	apperrors "github.com/jrsteele09/militex-client/internal/errors"
	"github.com/jrsteele09/militex-client/users"
)

// Cars is the vehicle listing endpoint. Every call goes through the shared client so it
// carries the session's bearer token and CSRF header.
type Cars struct {
	client *apiclient.Client
}

func NewCars(client *apiclient.Client) *Cars {
	return &Cars{client: client}
}

func (c *Cars) List(ctx context.Context, filter CarFilter) (*Page[Car], error) {
	var page Page[Car]
	if err := c.client.Get(ctx, apiclient.RouteCars, filter.Values(), &page); err != nil {
		return nil, errors.Wrap(err, "[Cars.List]")
	}
	return &page, nil
}

func (c *Cars) Get(ctx context.Context, id string) (*Car, error) {
	path, err := itemPath(apiclient.RouteCars, id)
	if err != nil {
		return nil, err
	}
	var car Car
	if err := c.client.Get(ctx, path, nil, &car); err != nil {
		return nil, errors.Wrap(err, "[Cars.Get]")
	}
	return &car, nil
}

// Create posts a new listing as multipart/form-data, one "images" part per image.
func (c *Cars) Create(ctx context.Context, input CarInput, images ...Image) (*Car, error) {
	if fieldErrs := users.Validate(input); fieldErrs != nil {
		return nil, fieldErrs
	}

	upload := &apiclient.Upload{Fields: input.Fields()}
	for _, img := range images {
		upload.Files = append(upload.Files, apiclient.File{Field: "images", Name: img.Name, Content: img.Content})
	}

	var car Car
	if err := c.client.Upload(ctx, apiclient.RouteCars, upload, &car); err != nil {
		return nil, errors.Wrap(err, "[Cars.Create]")
	}
	return &car, nil
}

func (c *Cars) Delete(ctx context.Context, id string) error {
	path, err := itemPath(apiclient.RouteCars, id)
	if err != nil {
		return err
	}
	return errors.Wrap(c.client.Delete(ctx, path), "[Cars.Delete]")
}

func itemPath(route, id string, suffix ...string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperrors.Wrapf(apperrors.ErrInvalidRequest, "empty id")
	}
	path := route + url.PathEscape(id) + "/"
	for _, s := range suffix {
		path += s + "/"
	}
	return path, nil
}
