package gateway

import (
	"strings"

	"github.com/Aidin1998/pincex_futures/internal/trading/model"
	"github.com/Aidin1998/pincex_futures/internal/trading/registry"
	"github.com/Aidin1998/pincex_futures/pkg/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// sanitize trims and upper-cases the free-text fields of a submission.
func (r *SubmitOrderRequest) sanitize() {
	r.InstrumentID = strings.ToUpper(strings.TrimSpace(r.InstrumentID))
	r.OwnerID = strings.TrimSpace(r.OwnerID)
	r.Side = model.Side(strings.ToUpper(strings.TrimSpace(string(r.Side))))
}

// RoundToTick rounds price to the nearest multiple of tick, halves away
// from zero. It reports whether the price changed.
func RoundToTick(price, tick decimal.Decimal) (decimal.Decimal, bool) {
	if !tick.IsPositive() {
		return price, false
	}
	if price.Mod(tick).IsZero() {
		return price, false
	}
	return price.Div(tick).Round(0).Mul(tick), true
}

// checkQuantity enforces the minimum size and its lot multiple.
func checkQuantity(qty decimal.Decimal, spec registry.Spec) error {
	if qty.LessThan(spec.MinQuantity) {
		return errors.InvalidArgument.
			Explain("quantity %s is below the minimum %s for %s", qty, spec.MinQuantity, spec.ID).
			WithField("gte", "quantity", "must be at least "+spec.MinQuantity.String())
	}
	if spec.MinQuantity.IsPositive() && !qty.Mod(spec.MinQuantity).IsZero() {
		return errors.InvalidArgument.
			Explain("quantity %s is not a multiple of %s for %s", qty, spec.MinQuantity, spec.ID).
			WithField("multiple", "quantity", "must be a multiple of "+spec.MinQuantity.String())
	}
	return nil
}

func positive(field string, v decimal.Decimal) error {
	if v.IsPositive() {
		return nil
	}
	return errors.InvalidArgument.
		Explain("%s must be positive, got %s", field, v).
		WithField("gt", field, "must be greater than 0")
}

func validationError(err error) error {
	out := errors.InvalidArgument.Explain("invalid request")
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			out = out.WithField(fe.Tag(), strings.ToLower(fe.Field()), fe.Error())
		}
	}
	return out
}
