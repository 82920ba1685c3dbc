package apistub

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jrsteele09/militex-client/listings"
	"github.com/jrsteele09/militex-client/users"
)

const pageSize = 10

func (s *Server) ListCars() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		s.mu.Lock()
		matched := make([]listings.Car, 0, len(s.cars))
		for _, car := range s.cars {
			if carMatches(car, q) {
				matched = append(matched, car)
			}
		}
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, paginate(r, matched))
	}
}

func (s *Server) GetCar() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		i := s.carIndex(chi.URLParam(r, "id"))
		if i < 0 {
			writeJSONError(w, http.StatusNotFound, "Not found.")
			return
		}
		writeJSON(w, http.StatusOK, s.cars[i])
	}
}

func (s *Server) CreateCar() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			writeJSONError(w, http.StatusBadRequest, "Multipart form parse error - "+err.Error())
			return
		}
		input := listings.CarInput{
			Make:        r.FormValue("make"),
			Model:       r.FormValue("model"),
			Location:    r.FormValue("location"),
			Description: r.FormValue("description"),
		}
		input.Year, _ = strconv.Atoi(r.FormValue("year"))
		input.Mileage, _ = strconv.Atoi(r.FormValue("mileage"))
		input.Price, _ = strconv.ParseFloat(r.FormValue("price"), 64)
		if fieldErrs := users.Validate(input); fieldErrs != nil {
			writeJSON(w, http.StatusBadRequest, fieldErrs)
			return
		}

		car := listings.Car{
			ID:          uuid.NewString(),
			Make:        input.Make,
			Model:       input.Model,
			Year:        input.Year,
			Price:       input.Price,
			Mileage:     input.Mileage,
			Location:    input.Location,
			Description: input.Description,
			Seller:      usernameFrom(r),
		}
		for _, fh := range r.MultipartForm.File["images"] {
			car.Images = append(car.Images, fmt.Sprintf("/media/cars/%s/%s", car.ID, path.Base(fh.Filename)))
		}
		writeJSON(w, http.StatusCreated, s.AddCar(car))
	}
}

func (s *Server) DeleteCar() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		i := s.carIndex(chi.URLParam(r, "id"))
		if i < 0 {
			writeJSONError(w, http.StatusNotFound, "Not found.")
			return
		}
		if s.cars[i].Seller != usernameFrom(r) {
			writeJSONError(w, http.StatusForbidden, "You do not have permission to perform this action.")
			return
		}
		s.cars = append(s.cars[:i], s.cars[i+1:]...)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) ListFundraisers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		all := append([]listings.Fundraiser(nil), s.fundraisers...)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, paginate(r, all))
	}
}

func (s *Server) GetFundraiser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		i := s.fundraiserIndex(chi.URLParam(r, "id"))
		if i < 0 {
			writeJSONError(w, http.StatusNotFound, "Not found.")
			return
		}
		writeJSON(w, http.StatusOK, s.fundraisers[i])
	}
}

func (s *Server) Donate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var donation listings.Donation
		if !decode(w, r, &donation) {
			return
		}
		if fieldErrs := users.Validate(donation); fieldErrs != nil {
			writeJSON(w, http.StatusBadRequest, fieldErrs)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		i := s.fundraiserIndex(chi.URLParam(r, "id"))
		if i < 0 {
			writeJSONError(w, http.StatusNotFound, "Not found.")
			return
		}
		s.fundraisers[i].Raised += donation.Amount
		s.donations++
		writeJSON(w, http.StatusCreated, listings.DonationReceipt{
			ID:           strconv.Itoa(s.donations),
			FundraiserID: s.fundraisers[i].ID,
			Amount:       donation.Amount,
			Raised:       s.fundraisers[i].Raised,
			CreatedAt:    s.now().UTC(),
		})
	}
}

func (s *Server) carIndex(id string) int {
	for i, car := range s.cars {
		if car.ID == id {
			return i
		}
	}
	return -1
}

func (s *Server) fundraiserIndex(id string) int {
	for i, f := range s.fundraisers {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func carMatches(car listings.Car, q url.Values) bool {
	if v := q.Get("make"); v != "" && !strings.EqualFold(car.Make, v) {
		return false
	}
	if v := q.Get("model"); v != "" && !strings.EqualFold(car.Model, v) {
		return false
	}
	if v := strings.ToLower(q.Get("search")); v != "" {
		text := strings.ToLower(car.Make + " " + car.Model + " " + car.Description + " " + car.Location)
		if !strings.Contains(text, v) {
			return false
		}
	}
	if n, err := strconv.Atoi(q.Get("min_year")); err == nil && car.Year < n {
		return false
	}
	if n, err := strconv.Atoi(q.Get("max_year")); err == nil && car.Year > n {
		return false
	}
	if f, err := strconv.ParseFloat(q.Get("min_price"), 64); err == nil && car.Price < f {
		return false
	}
	if f, err := strconv.ParseFloat(q.Get("max_price"), 64); err == nil && car.Price > f {
		return false
	}
	return true
}

func paginate[T any](r *http.Request, items []T) listings.Page[T] {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	out := listings.Page[T]{Count: len(items), Results: []T{}}
	start := (page - 1) * pageSize
	if start < len(items) {
		out.Results = items[start:min(start+pageSize, len(items))]
	}
	if start+pageSize < len(items) {
		next := pageURL(r, page+1)
		out.Next = &next
	}
	if page > 1 {
		prev := pageURL(r, page-1)
		out.Previous = &prev
	}
	return out
}

func pageURL(r *http.Request, page int) string {
	u := url.URL{Scheme: "http", Host: r.Host, Path: r.URL.Path}
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}
