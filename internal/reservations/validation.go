package reservations

import (
	"fmt"
	"sync"

	"cinereserve/internal/seats"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators adds the "seatid" rule to gin's validator. Layout
// bounds are checked later against the show; the rule only checks shape.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		err = v.RegisterValidation("seatid", validateSeatID)
	})
	return err
}

func validateSeatID(fl validator.FieldLevel) bool {
	_, err := seats.ParseSeatID(fl.Field().String())
	return err == nil
}
